package db

import "time"

// Settings keys
const (
	KeyConversations = "conversations"
	KeyOrder         = "order"
	KeyActiveID      = "active_id"
	KeyCooldownEnd   = "gemini_cooldown_end"
)

// Setting represents a configuration setting
type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SearchResult is one message matching a full-text query
type SearchResult struct {
	ConversationID string
	MessageID      string
	Role           string
	Snippet        string
}

// ThreadStats counts the indexed messages of one thread
type ThreadStats struct {
	ConversationID string
	Messages       int64
	UserMessages   int64
	ModelMessages  int64
}

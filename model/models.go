package model

import "time"

// DefaultConversationID is the id of the always-present catch-all thread
const DefaultConversationID = "everything-else"

// DefaultConversationTitle is the display title of the catch-all thread
const DefaultConversationTitle = "Everything else"

// Role identifies who authored a chat message
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Feedback is a thumbs vote left on a message or an insight
type Feedback string

const (
	FeedbackNone Feedback = ""
	FeedbackUp   Feedback = "up"
	FeedbackDown Feedback = "down"
)

// Triumph is an achievement event announced by the model
type Triumph struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// ChatMessage represents a single message in a conversation.
// Messages are treated as values: the reducer replaces a message instead of
// editing its slices in place.
type ChatMessage struct {
	ID          string   `json:"id"`
	Role        Role     `json:"role"`
	Text        string   `json:"text"`
	Images      []string `json:"images,omitempty"` // data URLs
	Feedback    Feedback `json:"feedback,omitempty"`
	IsFromPC    bool     `json:"isFromPC,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	Triumph     *Triumph `json:"triumph,omitempty"`
}

// HasImages reports whether any image was attached to the message
func (m ChatMessage) HasImages() bool {
	return len(m.Images) > 0
}

// InsightStatus is the lifecycle state of an insight tab
type InsightStatus string

const (
	StatusPlaceholder InsightStatus = "placeholder"
	StatusLoading     InsightStatus = "loading"
	StatusStreaming   InsightStatus = "streaming"
	StatusLoaded      InsightStatus = "loaded"
	StatusError       InsightStatus = "error"
)

// Insight is a named sub-document attached to a conversation
type Insight struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Content     string        `json:"content"`
	Status      InsightStatus `json:"status"`
	IsNew       bool          `json:"isNew,omitempty"`
	Feedback    Feedback      `json:"feedback,omitempty"`
	LastUpdated time.Time     `json:"lastUpdated"`
}

// Objective is the active goal tracked for a subject thread
type Objective struct {
	Description string `json:"description"`
	IsCompleted bool   `json:"isCompleted"`
}

// ModificationType says what a pending insight modification wants to do
type ModificationType string

const (
	ModificationAdd    ModificationType = "add"
	ModificationModify ModificationType = "modify"
	ModificationRemove ModificationType = "remove"
)

// PendingInsightModification is a rewrite proposed by the model that waits
// for explicit user confirmation before it touches an insight
type PendingInsightModification struct {
	ID      string           `json:"id"`
	Type    ModificationType `json:"type"`
	Title   string           `json:"title,omitempty"`
	Content string           `json:"content,omitempty"`
}

// DetectedTask is an actionable task derived from a model response
type DetectedTask struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Confidence  float64 `json:"confidence"`
	Source      string  `json:"source"`
}

// Conversation represents one chat thread and its insights
type Conversation struct {
	ID                       string             `json:"id"`
	Title                    string             `json:"title"`
	Messages                 []ChatMessage      `json:"messages"`
	Insights                 map[string]Insight `json:"insights,omitempty"`
	InsightsOrder            []string           `json:"insightsOrder,omitempty"`
	Genre                    string             `json:"genre,omitempty"`
	Progress                 *int               `json:"progress,omitempty"`
	Inventory                []string           `json:"inventory,omitempty"`
	ActiveObjective          *Objective         `json:"activeObjective,omitempty"`
	IsPinned                 bool               `json:"isPinned,omitempty"`
	CreatedAt                time.Time          `json:"createdAt"`
	LastInteractionTimestamp time.Time          `json:"lastInteractionTimestamp"`
	LastTrailerTimestamp     time.Time          `json:"lastTrailerTimestamp"`
}

// NewConversation creates an empty thread
func NewConversation(id, title string, now time.Time) Conversation {
	return Conversation{
		ID:        id,
		Title:     title,
		Messages:  []ChatMessage{},
		CreatedAt: now,
	}
}

// IsDefault reports whether this is the catch-all thread
func (c Conversation) IsDefault() bool {
	return c.ID == DefaultConversationID
}

// HasInsights reports whether insight tabs were ever instantiated
func (c Conversation) HasInsights() bool {
	return c.Insights != nil
}

// Activity returns the timestamp used for ordering
func (c Conversation) Activity() time.Time {
	if !c.LastInteractionTimestamp.IsZero() {
		return c.LastInteractionTimestamp
	}
	return c.CreatedAt
}

// Clone returns a copy that shares no mutable containers with c
func (c Conversation) Clone() Conversation {
	out := c
	out.Messages = append([]ChatMessage(nil), c.Messages...)
	if out.Messages == nil {
		out.Messages = []ChatMessage{}
	}
	if c.Insights != nil {
		out.Insights = make(map[string]Insight, len(c.Insights))
		for k, v := range c.Insights {
			out.Insights[k] = v
		}
	}
	if c.InsightsOrder != nil {
		out.InsightsOrder = append([]string{}, c.InsightsOrder...)
	}
	if c.Inventory != nil {
		out.Inventory = append([]string{}, c.Inventory...)
	}
	if c.Progress != nil {
		p := *c.Progress
		out.Progress = &p
	}
	if c.ActiveObjective != nil {
		o := *c.ActiveObjective
		out.ActiveObjective = &o
	}
	return out
}

// MessageIndex returns the position of a message or -1
func (c Conversation) MessageIndex(id string) int {
	for i, m := range c.Messages {
		if m.ID == id {
			return i
		}
	}
	return -1
}

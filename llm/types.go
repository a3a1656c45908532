package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Message represents a chat message
type Message struct {
	Role        string       `json:"role"` // "user" or "assistant" or "system"
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment represents an image attached to a message
type Attachment struct {
	MimeType string `json:"mime_type"` // "image/png", "image/jpeg"
	Data     []byte `json:"data"`      // raw bytes
}

// StreamResponse represents a chunk of streaming response
type StreamResponse struct {
	Content string
	Done    bool
	Error   error
}

// Provider interface defines the common interface for all text-generation providers
type Provider interface {
	// StreamChat sends messages and returns a channel for streaming responses.
	// The channel is closed after a Done or Error response, or when ctx ends.
	StreamChat(ctx context.Context, messages []Message) (<-chan StreamResponse, error)

	// Chat sends messages and returns the complete response (non-streaming)
	Chat(ctx context.Context, messages []Message) (string, error)

	// Name returns the provider name
	Name() string

	// Models returns the list of supported models
	Models() []string

	// ValidateConfig validates the provider configuration
	ValidateConfig() error
}

// Config represents provider configuration
type Config struct {
	ProviderName string // Display name for the provider
	APIKey       string
	BaseURL      string
	Model        string
	Models       []string // Available models list
	Timeout      int      // seconds
	MaxTokens    int
	Temperature  float64
}

// QuotaError reports that the provider rejected a request because a rate or
// quota limit was hit
type QuotaError struct {
	Provider string
	Err      error
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s quota exceeded: %v", e.Provider, e.Err)
}

func (e *QuotaError) Unwrap() error {
	return e.Err
}

// IsQuotaError reports whether err is, or wraps, a QuotaError
func IsQuotaError(err error) bool {
	var q *QuotaError
	return errors.As(err, &q)
}

func timeout(cfg Config) time.Duration {
	if cfg.Timeout <= 0 {
		return 120 * time.Second
	}
	return time.Duration(cfg.Timeout) * time.Second
}

// httpClient bounds dialing and the wait for response headers by the
// configured timeout. Bodies are not bounded, a stream may run longer.
// Non-streaming calls put the timeout on their context instead.
func httpClient(cfg Config) *http.Client {
	d := timeout(cfg)
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: d, KeepAlive: 30 * time.Second}).DialContext
	transport.ResponseHeaderTimeout = d
	return &http.Client{Transport: transport}
}

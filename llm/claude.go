package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	anthropicVersion  = "2023-06-01"
	statusOverloaded  = 529
	maxSSELineBytes   = 1 << 20
	defaultClaudeHost = "https://api.anthropic.com/v1"
)

// ClaudeProvider talks to the Anthropic Messages API over plain HTTP
type ClaudeProvider struct {
	config   Config
	endpoint string
	client   *http.Client
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
	Stream      bool               `json:"stream"`
}

// anthropicMessage carries either a string or a list of content blocks
type anthropicMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type anthropicBlock struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicReply struct {
	Content []anthropicBlock `json:"content"`
}

// anthropicEvent is one server-sent event of a streamed reply
type anthropicEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Text string `json:"text"`
	} `json:"delta"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewClaudeProvider creates a Claude provider. The API key is checked by
// ValidateConfig, not here.
func NewClaudeProvider(config Config) (*ClaudeProvider, error) {
	if config.MaxTokens == 0 {
		config.MaxTokens = 4096
	}
	if config.Temperature == 0 {
		config.Temperature = 0.7
	}
	if config.Model == "" {
		config.Model = "claude-3-5-sonnet-20241022"
	}
	if config.ProviderName == "" {
		config.ProviderName = "Claude"
	}
	host := strings.TrimSuffix(config.BaseURL, "/")
	if host == "" {
		host = defaultClaudeHost
	}

	return &ClaudeProvider{
		config:   config,
		endpoint: host + "/messages",
		client:   httpClient(config),
	}, nil
}

// StreamChat streams the reply as text deltas
func (p *ClaudeProvider) StreamChat(ctx context.Context, messages []Message) (<-chan StreamResponse, error) {
	body := p.newRequest(messages, true)
	ch := make(chan StreamResponse)

	go func() {
		defer close(ch)
		resp, err := p.post(ctx, body)
		if err != nil {
			send(ctx, ch, StreamResponse{Error: err})
			return
		}
		defer resp.Body.Close()
		if err := p.relay(ctx, resp.Body, ch); err != nil {
			send(ctx, ch, StreamResponse{Error: err})
		}
	}()

	return ch, nil
}

// Chat returns the whole reply at once
func (p *ClaudeProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout(p.config))
	defer cancel()

	resp, err := p.post(ctx, p.newRequest(messages, false))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var reply anthropicReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	var text strings.Builder
	for _, block := range reply.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", errors.New("no content in response")
	}
	return text.String(), nil
}

func (p *ClaudeProvider) Name() string {
	return p.config.ProviderName
}

func (p *ClaudeProvider) Models() []string {
	if len(p.config.Models) > 0 {
		return p.config.Models
	}
	return []string{
		"claude-3-5-sonnet-20241022",
		"claude-3-5-haiku-20241022",
		"claude-3-opus-20240229",
		"claude-3-haiku-20240307",
	}
}

func (p *ClaudeProvider) ValidateConfig() error {
	if p.config.APIKey == "" {
		return errors.New("API key is required")
	}
	return nil
}

// newRequest moves system turns into the system field; the API does not
// accept them inline
func (p *ClaudeProvider) newRequest(messages []Message, stream bool) anthropicRequest {
	req := anthropicRequest{
		Model:       p.config.Model,
		MaxTokens:   p.config.MaxTokens,
		Temperature: p.config.Temperature,
		Stream:      stream,
	}
	var system []string
	for _, msg := range messages {
		if msg.Role == "system" {
			system = append(system, msg.Content)
			continue
		}
		req.Messages = append(req.Messages, toAnthropic(msg))
	}
	req.System = strings.Join(system, "\n\n")
	return req
}

func toAnthropic(msg Message) anthropicMessage {
	if len(msg.Attachments) == 0 {
		return anthropicMessage{Role: msg.Role, Content: msg.Content}
	}
	blocks := make([]anthropicBlock, 0, len(msg.Attachments)+1)
	blocks = append(blocks, anthropicBlock{Type: "text", Text: msg.Content})
	for _, att := range msg.Attachments {
		blocks = append(blocks, anthropicBlock{
			Type: "image",
			Source: &anthropicSource{
				Type:      "base64",
				MediaType: att.MimeType,
				Data:      base64.StdEncoding.EncodeToString(att.Data),
			},
		})
	}
	return anthropicMessage{Role: msg.Role, Content: blocks}
}

// post sends one request and returns the response only when it is a 200
func (p *ClaudeProvider) post(ctx context.Context, body anthropicRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.config.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		return nil, p.quota(resp.StatusCode, fmt.Errorf("API error (status %d): %s", resp.StatusCode, data))
	}
	return resp, nil
}

// relay forwards the text deltas of an SSE body until message_stop
func (p *ClaudeProvider) relay(ctx context.Context, body io.Reader, ch chan<- StreamResponse) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELineBytes)
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)

		var ev anthropicEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			continue
		}
		switch ev.Type {
		case "content_block_delta":
			if ev.Delta.Text != "" && !send(ctx, ch, StreamResponse{Content: ev.Delta.Text}) {
				return nil
			}
		case "message_stop":
			send(ctx, ch, StreamResponse{Done: true})
			return nil
		case "error":
			err := fmt.Errorf("stream error: %s", data)
			if ev.Error != nil && ev.Error.Type == "overloaded_error" {
				return p.quota(statusOverloaded, err)
			}
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read error: %w", err)
	}
	send(ctx, ch, StreamResponse{Done: true})
	return nil
}

// quota wraps err in a QuotaError for rate-limit and overload statuses
func (p *ClaudeProvider) quota(status int, err error) error {
	if status == http.StatusTooManyRequests || status == statusOverloaded {
		return &QuotaError{Provider: p.Name(), Err: err}
	}
	return err
}

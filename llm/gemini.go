package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// GeminiProvider implements the Provider interface for Google Gemini
type GeminiProvider struct {
	client *genai.Client
	config Config
}

// NewGeminiProvider creates a new Gemini provider
func NewGeminiProvider(ctx context.Context, config Config) (*GeminiProvider, error) {
	if config.MaxTokens == 0 {
		config.MaxTokens = 8192
	}
	if config.Temperature == 0 {
		config.Temperature = 0.7
	}
	if config.Model == "" {
		config.Model = "gemini-2.5-flash"
	}
	if config.ProviderName == "" {
		config.ProviderName = "Gemini"
	}

	clientConfig := &genai.ClientConfig{
		APIKey:     config.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient(config),
	}
	if config.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{
		client: client,
		config: config,
	}, nil
}

// StreamChat implements streaming chat
func (p *GeminiProvider) StreamChat(ctx context.Context, messages []Message) (<-chan StreamResponse, error) {
	responseChan := make(chan StreamResponse)
	contents, cfg := p.convertMessages(messages)

	go func() {
		defer close(responseChan)

		for resp, err := range p.client.Models.GenerateContentStream(ctx, p.config.Model, contents, cfg) {
			if err != nil {
				send(ctx, responseChan, StreamResponse{Error: p.classify(fmt.Errorf("stream error: %w", err))})
				return
			}
			if text := resp.Text(); text != "" {
				if !send(ctx, responseChan, StreamResponse{Content: text}) {
					return
				}
			}
		}
		send(ctx, responseChan, StreamResponse{Done: true})
	}()

	return responseChan, nil
}

// Chat implements non-streaming chat
func (p *GeminiProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	contents, cfg := p.convertMessages(messages)

	ctx, cancel := context.WithTimeout(ctx, timeout(p.config))
	defer cancel()
	resp, err := p.client.Models.GenerateContent(ctx, p.config.Model, contents, cfg)
	if err != nil {
		return "", p.classify(fmt.Errorf("failed to generate content: %w", err))
	}

	text := resp.Text()
	if text == "" {
		return "", errors.New("no content in response")
	}
	return text, nil
}

// Name returns the provider name
func (p *GeminiProvider) Name() string {
	return p.config.ProviderName
}

// Models returns supported models
func (p *GeminiProvider) Models() []string {
	if len(p.config.Models) > 0 {
		return p.config.Models
	}
	return []string{
		"gemini-2.5-flash",
		"gemini-2.5-pro",
		"gemini-2.0-flash",
	}
}

// ValidateConfig validates the configuration
func (p *GeminiProvider) ValidateConfig() error {
	if p.config.APIKey == "" {
		return errors.New("API key is required")
	}
	return nil
}

// convertMessages converts our Message format to Gemini contents. System
// messages become the system instruction.
func (p *GeminiProvider) convertMessages(messages []Message) ([]*genai.Content, *genai.GenerateContentConfig) {
	var system []string
	contents := make([]*genai.Content, 0, len(messages))

	for _, msg := range messages {
		if msg.Role == "system" {
			system = append(system, msg.Content)
			continue
		}

		// Gemini uses "user" and "model" instead of "assistant"
		role := genai.Role(genai.RoleUser)
		if msg.Role == "assistant" {
			role = genai.RoleModel
		}

		parts := []*genai.Part{genai.NewPartFromText(msg.Content)}
		for _, att := range msg.Attachments {
			parts = append(parts, genai.NewPartFromBytes(att.Data, att.MimeType))
		}
		contents = append(contents, genai.NewContentFromParts(parts, role))
	}

	temp := float32(p.config.Temperature)
	cfg := &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: int32(p.config.MaxTokens),
		SafetySettings:  defaultSafetySettings(),
	}
	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	return contents, cfg
}

// defaultSafetySettings returns default safety settings
func defaultSafetySettings() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
	}

	settings := make([]*genai.SafetySetting, len(categories))
	for i, category := range categories {
		settings[i] = &genai.SafetySetting{
			Category:  category,
			Threshold: genai.HarmBlockThresholdBlockMediumAndAbove,
		}
	}
	return settings
}

// classify turns RESOURCE_EXHAUSTED responses into a QuotaError
func (p *GeminiProvider) classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && isQuotaStatus(apiErr.Code, apiErr.Status) {
		return &QuotaError{Provider: p.Name(), Err: err}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && isQuotaStatus(apiErrPtr.Code, apiErrPtr.Status) {
		return &QuotaError{Provider: p.Name(), Err: err}
	}
	return err
}

func isQuotaStatus(code int, status string) bool {
	return code == http.StatusTooManyRequests || status == "RESOURCE_EXHAUSTED"
}

package provider

import (
	"context"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/scholaris/paper-analysis-be/internal/config"
	"github.com/scholaris/paper-analysis-be/internal/domain"
)

const (
	xaiDefaultModel   = "grok-3"
	xaiDefaultBaseURL = "https://api.x.ai/v1"
)

// XAIProvider analyzes papers through the xAI API. The API speaks the OpenAI
// chat-completions wire format, so the same client library serves both.
type XAIProvider struct {
	apiKey  string
	model   string
	baseURL string
	client  *openai.Client
	limiter *rate.Limiter
}

// NewXAIProvider creates the xAI client. The API key falls back to the
// XAI_API_KEY environment variable when absent from config.
func NewXAIProvider(cfg *config.ProviderConfig) *XAIProvider {
	p := &XAIProvider{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: cfg.BaseURL,
		limiter: newLimiter(cfg.RequestsPerMinute),
	}
	if p.apiKey == "" {
		p.apiKey = os.Getenv("XAI_API_KEY")
	}
	if p.model == "" {
		p.model = xaiDefaultModel
	}
	if p.baseURL == "" {
		p.baseURL = xaiDefaultBaseURL
	}

	clientCfg := openai.DefaultConfig(p.apiKey)
	clientCfg.BaseURL = p.baseURL
	p.client = openai.NewClientWithConfig(clientCfg)

	return p
}

// Name returns the provider identifier
func (p *XAIProvider) Name() string {
	return domain.ProviderXAI
}

// Available reports whether an API key is configured
func (p *XAIProvider) Available() bool {
	return p.apiKey != ""
}

// Endpoint returns the API base URL
func (p *XAIProvider) Endpoint() string {
	return p.baseURL
}

// Analyze runs one chat completion against the configured Grok model
func (p *XAIProvider) Analyze(ctx context.Context, doc Document) (*Result, error) {
	if !p.Available() {
		return nil, fmt.Errorf("xai provider is not configured")
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait canceled: %w", err)
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: analysisSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(doc)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("xai chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("xai returned no analysis content")
	}

	return &Result{
		Provider: p.Name(),
		Model:    resp.Model,
		Summary:  resp.Choices[0].Message.Content,
	}, nil
}

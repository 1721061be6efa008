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
	openaiDefaultModel   = "gpt-4o"
	openaiDefaultBaseURL = "https://api.openai.com/v1"
)

// OpenAIProvider analyzes papers through the OpenAI chat completions API
type OpenAIProvider struct {
	apiKey  string
	model   string
	baseURL string
	client  *openai.Client
	limiter *rate.Limiter
}

// NewOpenAIProvider creates the OpenAI client. The API key falls back to the
// OPENAI_API_KEY environment variable when absent from config.
func NewOpenAIProvider(cfg *config.ProviderConfig) *OpenAIProvider {
	p := &OpenAIProvider{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: cfg.BaseURL,
		limiter: newLimiter(cfg.RequestsPerMinute),
	}
	if p.apiKey == "" {
		p.apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if p.model == "" {
		p.model = openaiDefaultModel
	}
	if p.baseURL == "" {
		p.baseURL = openaiDefaultBaseURL
	}

	clientCfg := openai.DefaultConfig(p.apiKey)
	clientCfg.BaseURL = p.baseURL
	p.client = openai.NewClientWithConfig(clientCfg)

	return p
}

// Name returns the provider identifier
func (p *OpenAIProvider) Name() string {
	return domain.ProviderOpenAI
}

// Available reports whether an API key is configured
func (p *OpenAIProvider) Available() bool {
	return p.apiKey != ""
}

// Endpoint returns the API base URL
func (p *OpenAIProvider) Endpoint() string {
	return p.baseURL
}

// Analyze runs one chat completion against the configured model
func (p *OpenAIProvider) Analyze(ctx context.Context, doc Document) (*Result, error) {
	if !p.Available() {
		return nil, fmt.Errorf("openai provider is not configured")
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
		return nil, fmt.Errorf("openai chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("openai returned no analysis content")
	}

	return &Result{
		Provider: p.Name(),
		Model:    resp.Model,
		Summary:  resp.Choices[0].Message.Content,
	}, nil
}

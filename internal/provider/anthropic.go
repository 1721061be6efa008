package provider

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"

	"github.com/scholaris/paper-analysis-be/internal/config"
	"github.com/scholaris/paper-analysis-be/internal/domain"
)

const (
	anthropicDefaultModel   = "claude-sonnet-4-20250514"
	anthropicDefaultBaseURL = "https://api.anthropic.com"
	anthropicMaxTokens      = 4096
)

// AnthropicProvider analyzes papers through the Anthropic Messages API
type AnthropicProvider struct {
	apiKey  string
	model   string
	baseURL string
	client  anthropic.Client
	limiter *rate.Limiter
}

// NewAnthropicProvider creates the Anthropic client. The API key falls back
// to the ANTHROPIC_API_KEY environment variable when absent from config.
func NewAnthropicProvider(cfg *config.ProviderConfig) *AnthropicProvider {
	p := &AnthropicProvider{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: cfg.BaseURL,
		limiter: newLimiter(cfg.RequestsPerMinute),
	}
	if p.apiKey == "" {
		p.apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if p.model == "" {
		p.model = anthropicDefaultModel
	}
	if p.baseURL == "" {
		p.baseURL = anthropicDefaultBaseURL
	}

	p.client = anthropic.NewClient(
		option.WithAPIKey(p.apiKey),
	)

	return p
}

// Name returns the provider identifier
func (p *AnthropicProvider) Name() string {
	return domain.ProviderAnthropic
}

// Available reports whether an API key is configured
func (p *AnthropicProvider) Available() bool {
	return p.apiKey != ""
}

// Endpoint returns the API base URL
func (p *AnthropicProvider) Endpoint() string {
	return p.baseURL
}

// Analyze runs one Messages API call against the configured Claude model
func (p *AnthropicProvider) Analyze(ctx context.Context, doc Document) (*Result, error) {
	if !p.Available() {
		return nil, fmt.Errorf("anthropic provider is not configured")
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait canceled: %w", err)
	}

	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: anthropicMaxTokens,
		System: []anthropic.TextBlockParam{
			{Text: analysisSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(doc))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic messages call failed: %w", err)
	}

	text := messageText(resp.Content)
	if text == "" {
		return nil, fmt.Errorf("anthropic returned no analysis content")
	}

	return &Result{
		Provider: p.Name(),
		Model:    string(resp.Model),
		Summary:  text,
	}, nil
}

// messageText joins the text blocks of a Messages response, skipping
// thinking and tool-use blocks. The union's type tag is a plain string.
func messageText(blocks []anthropic.ContentBlockUnion) string {
	var text strings.Builder
	for _, block := range blocks {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return text.String()
}

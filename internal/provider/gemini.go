package provider

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/scholaris/paper-analysis-be/internal/config"
	"github.com/scholaris/paper-analysis-be/internal/domain"
)

const (
	geminiDefaultModel   = "gemini-2.5-flash"
	geminiDefaultBaseURL = "https://generativelanguage.googleapis.com"
)

// GeminiProvider analyzes papers through the Google Gemini API
type GeminiProvider struct {
	apiKey  string
	model   string
	baseURL string
	client  *genai.Client
	limiter *rate.Limiter
}

// NewGeminiProvider creates the Gemini client. The API key falls back to the
// GEMINI_API_KEY environment variable when absent from config. An
// unconfigured provider skips client construction entirely.
func NewGeminiProvider(ctx context.Context, cfg *config.ProviderConfig) (*GeminiProvider, error) {
	p := &GeminiProvider{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: cfg.BaseURL,
		limiter: newLimiter(cfg.RequestsPerMinute),
	}
	if p.apiKey == "" {
		p.apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if p.model == "" {
		p.model = geminiDefaultModel
	}
	if p.baseURL == "" {
		p.baseURL = geminiDefaultBaseURL
	}

	if p.apiKey == "" {
		return p, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	p.client = client

	return p, nil
}

// Name returns the provider identifier
func (p *GeminiProvider) Name() string {
	return domain.ProviderGemini
}

// Available reports whether an API key is configured
func (p *GeminiProvider) Available() bool {
	return p.apiKey != "" && p.client != nil
}

// Endpoint returns the API base URL
func (p *GeminiProvider) Endpoint() string {
	return p.baseURL
}

// Analyze runs one GenerateContent call against the configured Gemini model
func (p *GeminiProvider) Analyze(ctx context.Context, doc Document) (*Result, error) {
	if !p.Available() {
		return nil, fmt.Errorf("gemini provider is not configured")
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait canceled: %w", err)
	}

	genCfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(analysisSystemPrompt, genai.RoleUser),
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(buildPrompt(doc)), genCfg)
	if err != nil {
		return nil, fmt.Errorf("gemini content generation failed: %w", err)
	}

	var text strings.Builder
	if resp != nil {
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					text.WriteString(part.Text)
				}
			}
			if text.Len() > 0 {
				break
			}
		}
	}

	if text.Len() == 0 {
		return nil, fmt.Errorf("gemini returned no analysis content")
	}

	return &Result{
		Provider: p.Name(),
		Model:    p.model,
		Summary:  text.String(),
	}, nil
}

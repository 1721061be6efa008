// Package provider holds the AI analysis provider clients. Each provider is
// an opaque, timeout-bounded callable: it receives a document and returns a
// structured analysis or an error. Providers without configured credentials
// report themselves unavailable and are skipped by probes and rejected at
// submission validation.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"

	"github.com/scholaris/paper-analysis-be/internal/config"
	"github.com/scholaris/paper-analysis-be/internal/domain"
)

// Document is the analysis input handed to every provider
type Document struct {
	PaperID string
	Title   string
	Text    string
}

// Result is a single provider's analysis output
type Result struct {
	Provider string
	Model    string
	Summary  string
}

// Provider is a named external analysis capability
type Provider interface {
	// Name returns the provider identifier from the enumerated set
	Name() string

	// Available reports whether the provider has credentials configured
	Available() bool

	// Endpoint returns the API base URL, used for reachability probes
	Endpoint() string

	// Analyze runs one bounded analysis call. The caller owns the timeout
	// through ctx.
	Analyze(ctx context.Context, doc Document) (*Result, error)
}

const analysisSystemPrompt = "You are an expert research assistant. " +
	"Analyze the given academic paper and produce a concise structured summary: " +
	"key contributions, methodology, limitations, and relevance."

// buildPrompt renders the document into the user prompt shared by all clients
func buildPrompt(doc Document) string {
	var b strings.Builder
	b.WriteString("Title: ")
	b.WriteString(doc.Title)
	b.WriteString("\n\n")
	b.WriteString(doc.Text)
	return b.String()
}

// newLimiter builds a per-provider rate limiter from a requests-per-minute
// setting; zero means no limit.
func newLimiter(rpm int) *rate.Limiter {
	if rpm <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := rpm / 5
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst)
}

// Registry maps provider identifiers to constructed clients. Built once at
// startup and validated against the enumerated provider set.
type Registry struct {
	providers map[string]Provider
	logger    *slog.Logger
}

// NewRegistry constructs all provider clients from config. It fails fast if a
// constructed client names an identifier outside the enumerated set, so a
// drifting client can never be reached by a validated job.
func NewRegistry(ctx context.Context, cfg *config.ProvidersConfig, logger *slog.Logger) (*Registry, error) {
	clients := []Provider{
		NewOpenAIProvider(&cfg.OpenAI),
		NewAnthropicProvider(&cfg.Anthropic),
		NewXAIProvider(&cfg.XAI),
	}

	gemini, err := NewGeminiProvider(ctx, &cfg.Gemini)
	if err != nil {
		return nil, fmt.Errorf("failed to construct gemini provider: %w", err)
	}
	clients = append(clients, gemini)

	r := &Registry{
		providers: make(map[string]Provider, len(clients)),
		logger:    logger,
	}

	for _, p := range clients {
		if !domain.IsKnownProvider(p.Name()) {
			return nil, fmt.Errorf("provider %q is not in the enumerated provider set", p.Name())
		}
		if _, dup := r.providers[p.Name()]; dup {
			return nil, fmt.Errorf("provider %q registered twice", p.Name())
		}
		r.providers[p.Name()] = p

		logger.Info("Provider registered",
			slog.String("provider", p.Name()),
			slog.Bool("available", p.Available()),
		)
	}

	return r, nil
}

// Get returns the provider for the given identifier
func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// Available returns the providers with configured credentials
func (r *Registry) Available() []Provider {
	var out []Provider
	for _, p := range r.providers {
		if p.Available() {
			out = append(out, p)
		}
	}
	return out
}

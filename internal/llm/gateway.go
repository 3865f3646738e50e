package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nikhilbhutani/voicerelay/internal/config"
	"github.com/nikhilbhutani/voicerelay/internal/metrics"
)

type gateway struct {
	providers        map[string]Provider
	defaultProvider  string
	defaultModel     string
	fallbackProvider string
	fallbackModel    string
	maxRetries       int
	backoff          func(attempt int) time.Duration
}

func NewGateway(cfg config.LLMConfig) Gateway {
	g := newGateway(cfg)

	if cfg.GeminiKey != "" {
		g.providers["gemini"] = NewGeminiProvider(cfg.GeminiKey, cfg.GeminiBaseURL)
	}
	if cfg.OpenAIKey != "" {
		g.providers["openai"] = NewOpenAIProvider(cfg.OpenAIKey, "")
	}
	if cfg.AnthropicKey != "" {
		g.providers["anthropic"] = NewAnthropicProvider(cfg.AnthropicKey)
	}
	if cfg.OllamaURL != "" {
		g.providers["ollama"] = NewOllamaProvider(cfg.OllamaURL)
	}

	return g
}

// NewGatewayWithProviders builds a gateway over an explicit provider set.
func NewGatewayWithProviders(cfg config.LLMConfig, providers ...Provider) Gateway {
	g := newGateway(cfg)
	for _, p := range providers {
		g.providers[p.Name()] = p
	}
	return g
}

func newGateway(cfg config.LLMConfig) *gateway {
	return &gateway{
		providers:        make(map[string]Provider),
		defaultProvider:  cfg.DefaultProvider,
		defaultModel:     cfg.DefaultModel,
		fallbackProvider: cfg.FallbackProvider,
		fallbackModel:    cfg.FallbackModel,
		maxRetries:       cfg.MaxRetries,
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt*attempt) * 500 * time.Millisecond
		},
	}
}

func (g *gateway) provider(name string) (Provider, error) {
	p, ok := g.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not configured", name)
	}
	return p, nil
}

func (g *gateway) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	providerName := req.Provider
	if providerName == "" {
		providerName = g.defaultProvider
		if req.Model == "" {
			req.Model = g.defaultModel
		}
	}

	resp, err := g.chatWithRetry(ctx, providerName, req)
	if err != nil && ctx.Err() == nil && g.fallbackProvider != "" && g.fallbackProvider != providerName {
		slog.Warn("primary provider failed, trying fallback",
			"primary", providerName,
			"fallback", g.fallbackProvider,
			"error", err,
		)
		fb := req
		fb.Provider = g.fallbackProvider
		fb.Model = g.fallbackModel
		fbResp, fbErr := g.chatWithRetry(ctx, g.fallbackProvider, fb)
		if fbErr != nil {
			return nil, errors.Join(err, fbErr)
		}
		return fbResp, nil
	}
	return resp, err
}

func (g *gateway) chatWithRetry(ctx context.Context, providerName string, req ChatRequest) (*ChatResponse, error) {
	p, err := g.provider(providerName)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(g.backoff(attempt)):
			}
			slog.Debug("retrying LLM call", "provider", providerName, "attempt", attempt)
		}

		resp, err := p.ChatCompletion(ctx, req)
		if err == nil {
			metrics.RecordLLMRequest(providerName, "success", resp.InputTokens, resp.OutputTokens)
			return resp, nil
		}
		metrics.RecordLLMRequest(providerName, "error", 0, 0)
		lastErr = err
		if IsPermanent(err) || errors.Is(err, context.Canceled) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("all retries exhausted for %s: %w", providerName, lastErr)
}

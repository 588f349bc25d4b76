package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"habitcoach/model"
	"habitcoach/provider"
)

// Upstream is a model provider the coach API forwards chat requests to.
type Upstream interface {
	// Complete answers one validated chat request. Rate limiting by the
	// provider is reported by wrapping model.ErrRateLimited.
	Complete(ctx context.Context, req provider.ChatRequest) (Completion, error)
	Name() string
	Model() string
}

// Completion is an upstream's answer.
type Completion struct {
	Text  string
	Model string
	Usage provider.Usage
}

// UpstreamConfig selects and configures an upstream.
type UpstreamConfig struct {
	Provider string // openai, openrouter, anthropic or ollama
	Model    string
	BaseURL  string
	APIKey   string
}

// NewUpstream builds the upstream named by cfg.Provider.
func NewUpstream(cfg UpstreamConfig, logger *zap.Logger) (Upstream, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return NewOpenAIUpstream(cfg)
	case "openrouter":
		return NewOpenRouterUpstream(cfg)
	case "anthropic":
		return NewAnthropicUpstream(cfg)
	case "ollama", "":
		return NewOllamaUpstream(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown upstream provider: %s", cfg.Provider)
	}
}

// classifyStatus wraps err with model.ErrRateLimited when the provider
// answered 429.
func classifyStatus(upstream string, status int, err error) error {
	if status == http.StatusTooManyRequests {
		return fmt.Errorf("%s: %w: %v", upstream, model.ErrRateLimited, err)
	}
	return fmt.Errorf("%s request failed: %w", upstream, err)
}

func isRateLimited(err error) bool {
	return errors.Is(err, model.ErrRateLimited)
}

package server

import (
	"context"
	"errors"
	"strings"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"

	"habitcoach/ollama"
	"habitcoach/provider"
)

// OllamaUpstream answers with a catalog model on an Ollama runtime, which
// lets the coach API run without any cloud account.
type OllamaUpstream struct {
	client *ollama.Client
	entry  ollama.CatalogEntry
	logger *zap.Logger
}

func NewOllamaUpstream(cfg UpstreamConfig, logger *zap.Logger) (*OllamaUpstream, error) {
	entry, err := ollama.LookupModel(cfg.Model)
	if err != nil {
		return nil, err
	}
	client, err := ollama.NewClient(cfg.BaseURL, nil)
	if err != nil {
		return nil, err
	}
	return &OllamaUpstream{client: client, entry: entry, logger: logger.Named("ollama")}, nil
}

func (u *OllamaUpstream) Name() string  { return "ollama" }
func (u *OllamaUpstream) Model() string { return u.entry.Name }

func (u *OllamaUpstream) Complete(ctx context.Context, req provider.ChatRequest) (Completion, error) {
	opts := ollama.GenerateOptions{
		MaxTokens:   req.MaxTokens,
		Temperature: req.TemperatureOr(DefaultTemperature),
	}

	var text strings.Builder
	stats, err := u.client.Chat(ctx, u.entry.Name, provider.CoachMessages(req.Message, req.Context), opts, func(chunk string) error {
		text.WriteString(chunk)
		return nil
	})
	if err != nil {
		var statusErr api.StatusError
		if errors.As(err, &statusErr) {
			return Completion{}, classifyStatus(u.Name(), statusErr.StatusCode, err)
		}
		return Completion{}, classifyStatus(u.Name(), 0, err)
	}

	u.logger.Debug("completion finished",
		zap.Int("prompt_tokens", stats.PromptTokens),
		zap.Int("completion_tokens", stats.CompletionTokens))

	return Completion{
		Text:  strings.TrimSpace(text.String()),
		Model: stats.Model,
		Usage: provider.Usage{
			PromptTokens:     stats.PromptTokens,
			CompletionTokens: stats.CompletionTokens,
			TotalTokens:      stats.PromptTokens + stats.CompletionTokens,
		},
	}, nil
}

// Ping reports whether the runtime answers.
func (u *OllamaUpstream) Ping(ctx context.Context) error {
	return u.client.Ping(ctx)
}

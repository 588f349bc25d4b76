package server

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"habitcoach/provider"
)

// AnthropicUpstream answers through the Anthropic messages API.
type AnthropicUpstream struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropicUpstream creates an Anthropic upstream.
// The default base URL is https://api.anthropic.com. Requests are not retried.
func NewAnthropicUpstream(cfg UpstreamConfig) (*AnthropicUpstream, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-haiku-latest"
	}

	client := anthropic.NewClient(
		option.WithBaseURL(cfg.BaseURL),
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	)

	return &AnthropicUpstream{client: client, model: anthropic.Model(cfg.Model)}, nil
}

func (u *AnthropicUpstream) Name() string  { return "anthropic" }
func (u *AnthropicUpstream) Model() string { return string(u.model) }

func (u *AnthropicUpstream) Complete(ctx context.Context, req provider.ChatRequest) (Completion, error) {
	params := anthropic.MessageNewParams{
		Model:     u.model,
		MaxTokens: int64(req.MaxTokens),
		System: []anthropic.TextBlockParam{
			{Text: provider.CoachPreamble},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(provider.BuildUserContent(req.Message, req.Context))),
		},
		Temperature: anthropic.Float(req.TemperatureOr(DefaultTemperature)),
	}

	msg, err := u.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return Completion{}, classifyStatus(u.Name(), apiErr.StatusCode, err)
		}
		return Completion{}, classifyStatus(u.Name(), 0, err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	prompt := int(msg.Usage.InputTokens)
	completion := int(msg.Usage.OutputTokens)
	return Completion{
		Text:  text.String(),
		Model: string(msg.Model),
		Usage: provider.Usage{
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      prompt + completion,
		},
	}, nil
}

package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"habitcoach/provider"
)

// OpenAIUpstream answers through the OpenAI chat completions API.
type OpenAIUpstream struct {
	client openai.Client
	name   string
	model  string
}

// NewOpenAIUpstream creates an OpenAI upstream.
// The default base URL is https://api.openai.com/v1 and the default model
// gpt-4o-mini. Requests are not retried.
func NewOpenAIUpstream(cfg UpstreamConfig) (*OpenAIUpstream, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	return newOpenAICompatible("openai", cfg), nil
}

// NewOpenRouterUpstream creates an upstream for OpenRouter, which speaks the
// OpenAI protocol. The default model is a small instruct model.
func NewOpenRouterUpstream(cfg UpstreamConfig) (*OpenAIUpstream, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenRouter API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "meta-llama/llama-3.2-3b-instruct"
	}
	return newOpenAICompatible("openrouter", cfg), nil
}

func newOpenAICompatible(name string, cfg UpstreamConfig) *OpenAIUpstream {
	client := openai.NewClient(
		option.WithBaseURL(cfg.BaseURL),
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	)
	return &OpenAIUpstream{client: client, name: name, model: cfg.Model}
}

func (u *OpenAIUpstream) Name() string  { return u.name }
func (u *OpenAIUpstream) Model() string { return u.model }

func (u *OpenAIUpstream) Complete(ctx context.Context, req provider.ChatRequest) (Completion, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(u.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(provider.CoachPreamble),
			openai.UserMessage(provider.BuildUserContent(req.Message, req.Context)),
		},
		MaxCompletionTokens: openai.Int(int64(req.MaxTokens)),
		Temperature:         openai.Float(req.TemperatureOr(DefaultTemperature)),
	}

	resp, err := u.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return Completion{}, classifyStatus(u.Name(), apiErr.StatusCode, err)
		}
		return Completion{}, classifyStatus(u.Name(), 0, err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, fmt.Errorf("%s returned no choices", u.name)
	}

	return Completion{
		Text:  resp.Choices[0].Message.Content,
		Model: resp.Model,
		Usage: provider.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
)

const DefaultHost = "http://localhost:11434"

// Client is a thin wrapper around the Ollama API used as the local
// inference runtime.
type Client struct {
	client  *api.Client
	http    *http.Client
	baseURL string
}

// StreamCallback receives generated text in arrival order.
type StreamCallback func(chunk string) error

// ProgressCallback receives pull progress updates.
type ProgressCallback func(status string, completed, total int64)

// GenerateOptions bounds a single generation.
type GenerateOptions struct {
	MaxTokens     int
	Temperature   float64
	ContextWindow int
	KeepAlive     time.Duration
}

func (o GenerateOptions) toMap() map[string]any {
	opts := map[string]any{
		"temperature": o.Temperature,
	}
	if o.MaxTokens > 0 {
		opts["num_predict"] = o.MaxTokens
	}
	if o.ContextWindow > 0 {
		opts["num_ctx"] = o.ContextWindow
	}
	return opts
}

func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultHost
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid Ollama URL %q: scheme and host required", baseURL)
	}

	return &Client{
		client:  api.NewClient(parsedURL, httpClient),
		http:    httpClient,
		baseURL: baseURL,
	}, nil
}

// BaseURL returns the runtime address this client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Pull downloads the model if it is missing and verifies it otherwise.
func (c *Client) Pull(ctx context.Context, model string, progress ProgressCallback) error {
	req := &api.PullRequest{Model: model}

	err := c.client.Pull(ctx, req, func(resp api.ProgressResponse) error {
		if progress != nil {
			progress(resp.Status, resp.Completed, resp.Total)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to pull %s: %w", model, err)
	}
	return nil
}

// ChatStats summarises a finished generation.
type ChatStats struct {
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Chat streams a chat completion for messages and hands each chunk to callback.
func (c *Client) Chat(ctx context.Context, model string, messages []api.Message, opts GenerateOptions, callback StreamCallback) (ChatStats, error) {
	req := &api.ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   func(b bool) *bool { return &b }(true),
		Options:  opts.toMap(),
	}
	if opts.KeepAlive > 0 {
		req.KeepAlive = &api.Duration{Duration: opts.KeepAlive}
	}

	stats := ChatStats{Model: model}
	respFunc := func(resp api.ChatResponse) error {
		if resp.Done {
			stats.PromptTokens = resp.PromptEvalCount
			stats.CompletionTokens = resp.EvalCount
		}
		if callback != nil {
			return callback(resp.Message.Content)
		}
		return nil
	}

	if err := c.client.Chat(ctx, req, respFunc); err != nil {
		return stats, err
	}
	return stats, nil
}

// Unload asks the runtime to evict the model from memory right away.
func (c *Client) Unload(ctx context.Context, model string) error {
	req := &api.GenerateRequest{
		Model:     model,
		KeepAlive: &api.Duration{Duration: 0},
	}

	err := c.client.Generate(ctx, req, func(api.GenerateResponse) error { return nil })
	if err != nil {
		return fmt.Errorf("failed to unload %s: %w", model, err)
	}
	return nil
}

type ModelInfo struct {
	Name string
	Size int64
}

func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	resp, err := c.client.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	models := make([]ModelInfo, len(resp.Models))
	for i, model := range resp.Models {
		models[i] = ModelInfo{
			Name: model.Name,
			Size: model.Size,
		}
	}

	return models, nil
}

func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := c.client.List(ctx)
	return err
}

// CloseIdleConnections drops pooled connections to the runtime.
func (c *Client) CloseIdleConnections() {
	c.http.CloseIdleConnections()
}

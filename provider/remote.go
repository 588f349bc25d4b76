package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"habitcoach/model"
)

const (
	DefaultCloudURL      = "http://localhost:8787"
	DefaultHealthTimeout = 5 * time.Second
	userAgent            = "habitcoach/1"
	maxResponseBytes     = 1 << 20
)

// RemoteConfig configures the cloud coach API backend.
type RemoteConfig struct {
	BaseURL       string
	APIKey        string
	MaxTokens     int
	Temperature   *float64 // nil selects DefaultTemperature
	HealthTimeout time.Duration
	HTTPClient    *http.Client
}

// RemoteBackend answers prompts through the coach API over HTTP JSON.
type RemoteBackend struct {
	cfg    RemoteConfig
	http   *http.Client
	logger *zap.Logger

	mu        sync.Mutex
	state     model.LoadState
	lastModel string
}

// NewRemoteBackend creates a cloud backend. The base URL is validated on
// each call; a bad setting surfaces as ErrInvalidURL.
func NewRemoteBackend(cfg RemoteConfig, logger *zap.Logger) *RemoteBackend {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultCloudURL
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 300
	}
	if cfg.Temperature == nil {
		cfg.Temperature = Float(DefaultTemperature)
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = DefaultHealthTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RemoteBackend{
		cfg:    cfg,
		http:   httpClient,
		logger: logger.Named("cloud"),
		state:  model.LoadUnloaded,
	}
}

func (r *RemoteBackend) Name() string { return string(model.ModeCloud) }

func (r *RemoteBackend) State() model.LoadState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// LastModel returns the upstream model named in the most recent reply.
func (r *RemoteBackend) LastModel() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastModel
}

func (r *RemoteBackend) setState(s model.LoadState) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

func (r *RemoteBackend) endpoint(path string) (string, error) {
	base, err := url.Parse(strings.TrimSpace(r.cfg.BaseURL))
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrInvalidURL, err)
	}
	if (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return "", fmt.Errorf("%w: %q", model.ErrInvalidURL, r.cfg.BaseURL)
	}
	return base.JoinPath(path).String(), nil
}

func (r *RemoteBackend) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if r.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	}
}

// Load probes GET {base}/health. Only HTTP 200 counts as ready.
func (r *RemoteBackend) Load(ctx context.Context) error {
	r.setState(model.LoadLoading)

	if err := r.probe(ctx); err != nil {
		r.setState(model.LoadFailed)
		r.logger.Warn("health probe failed", zap.Error(err))
		return &model.LoadError{Backend: r.Name(), Err: err}
	}

	r.setState(model.LoadReady)
	r.logger.Info("coach API reachable", zap.String("base_url", r.cfg.BaseURL))
	return nil
}

func (r *RemoteBackend) probe(ctx context.Context) error {
	endpoint, err := r.endpoint("health")
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.HealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidURL, err)
	}
	r.setHeaders(req)

	resp, err := r.http.Do(req)
	if err != nil {
		return fmt.Errorf("coach API unreachable: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("coach API health check returned %d", resp.StatusCode)
	}
	return nil
}

// Generate posts the prompt to {base}/chat and returns the reply text.
// Status codes map onto the model error kinds; nothing is retried.
func (r *RemoteBackend) Generate(ctx context.Context, prompt, promptContext string) (string, error) {
	endpoint, err := r.endpoint("chat")
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(ChatRequest{
		Message:     prompt,
		Context:     promptContext,
		MaxTokens:   r.cfg.MaxTokens,
		Temperature: r.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrInvalidRequest, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrInvalidRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")
	r.setHeaders(req)

	resp, err := r.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("coach API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("%w: reading body: %v", model.ErrInvalidResponse, err)
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := statusError(resp.StatusCode)
		r.logger.Warn("coach API error",
			zap.Int("status", resp.StatusCode),
			zap.String("request_id", resp.Header.Get("X-Request-ID")),
			zap.String("message", errorMessage(body)))
		return "", statusErr
	}

	var chat ChatResponse
	if err := json.Unmarshal(body, &chat); err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrInvalidResponse, err)
	}

	r.mu.Lock()
	r.lastModel = chat.Model
	r.mu.Unlock()

	r.logger.Debug("coach API reply",
		zap.String("model", chat.Model),
		zap.Int("total_tokens", chat.Usage.TotalTokens))

	return chat.Response, nil
}

// statusError maps a non-200 status to its error kind.
func statusError(code int) error {
	switch code {
	case http.StatusTooManyRequests:
		return model.ErrRateLimited
	case http.StatusBadRequest:
		return model.ErrBadRequest
	case http.StatusInternalServerError:
		return model.ErrServerError
	default:
		return &model.UnknownStatusError{Code: code}
	}
}

// errorMessage pulls a human-readable message out of an error body, if any.
func errorMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return strings.TrimSpace(string(body))
	}
	for _, path := range []string{"error.message", "error", "message"} {
		if v := gjson.GetBytes(body, path); v.Exists() && v.Type == gjson.String {
			return v.String()
		}
	}
	return ""
}

// Release drops pooled connections and marks the backend unloaded.
func (r *RemoteBackend) Release(ctx context.Context) error {
	r.setState(model.LoadUnloaded)
	r.http.CloseIdleConnections()
	return nil
}

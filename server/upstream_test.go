package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"habitcoach/provider"
	"habitcoach/provider/testutil"
)

var cookieRequest = provider.ChatRequest{
	Message:     "I want a cookie",
	Context:     "craving",
	MaxTokens:   120,
	Temperature: provider.Float(0.5),
}

// fakeAPI serves one canned JSON answer on path and records request bodies.
type fakeAPI struct {
	mu     sync.Mutex
	status int
	body   string
	bodies []map[string]any
	auth   []string
}

func newFakeAPI(t *testing.T, path string, status int, body string) (*fakeAPI, *httptest.Server) {
	t.Helper()
	api := &fakeAPI{status: status, body: body}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != path {
			http.NotFound(w, r)
			return
		}
		var decoded map[string]any
		_ = json.NewDecoder(r.Body).Decode(&decoded)

		api.mu.Lock()
		api.bodies = append(api.bodies, decoded)
		api.auth = append(api.auth, r.Header.Get("Authorization")+r.Header.Get("X-Api-Key"))
		status, body := api.status, api.body
		api.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return api, srv
}

func (a *fakeAPI) lastBody(t *testing.T) map[string]any {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()
	require.NotEmpty(t, a.bodies)
	return a.bodies[len(a.bodies)-1]
}

func TestNewUpstream(t *testing.T) {
	tests := []struct {
		name    string
		cfg     UpstreamConfig
		want    string
		wantErr bool
	}{
		{"openai", UpstreamConfig{Provider: "openai", APIKey: "k"}, "openai", false},
		{"openai without key", UpstreamConfig{Provider: "openai"}, "", true},
		{"openrouter", UpstreamConfig{Provider: "OpenRouter", APIKey: "k"}, "openrouter", false},
		{"openrouter without key", UpstreamConfig{Provider: "openrouter"}, "", true},
		{"anthropic", UpstreamConfig{Provider: "Anthropic", APIKey: "k"}, "anthropic", false},
		{"anthropic without key", UpstreamConfig{Provider: "anthropic"}, "", true},
		{"ollama default", UpstreamConfig{}, "ollama", false},
		{"ollama unknown model", UpstreamConfig{Provider: "ollama", Model: "zzzzzz"}, "", true},
		{"unknown", UpstreamConfig{Provider: "bard"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up, err := NewUpstream(tt.cfg, nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, up.Name())
			assert.NotEmpty(t, up.Model())
		})
	}
}

func TestOpenAIUpstream(t *testing.T) {
	api, srv := newFakeAPI(t, "/chat/completions", http.StatusOK, `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"created": 1700000000,
		"model": "gpt-4o-mini-2024-07-18",
		"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "Try a short walk."}}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
	}`)

	up, err := NewOpenAIUpstream(UpstreamConfig{BaseURL: srv.URL, APIKey: "sk-test"})
	require.NoError(t, err)

	got, err := up.Complete(context.Background(), cookieRequest)
	require.NoError(t, err)
	assert.Equal(t, Completion{
		Text:  "Try a short walk.",
		Model: "gpt-4o-mini-2024-07-18",
		Usage: provider.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, got)

	body := api.lastBody(t)
	assert.Equal(t, "gpt-4o-mini", body["model"])
	assert.EqualValues(t, 120, body["max_completion_tokens"])
	assert.EqualValues(t, 0.5, body["temperature"])

	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "Context: craving\n\nI want a cookie", messages[1].(map[string]any)["content"])
	assert.Equal(t, "Bearer sk-test", api.auth[0])
}

func TestOpenAIUpstream_StatusMapping(t *testing.T) {
	tests := []struct {
		status      int
		rateLimited bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusBadRequest, false},
		{http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			_, srv := newFakeAPI(t, "/chat/completions", tt.status,
				`{"error":{"message":"nope","type":"x","code":"y"}}`)
			up, err := NewOpenAIUpstream(UpstreamConfig{BaseURL: srv.URL, APIKey: "sk-test"})
			require.NoError(t, err)

			_, err = up.Complete(context.Background(), cookieRequest)
			require.Error(t, err)
			assert.Equal(t, tt.rateLimited, isRateLimited(err))
		})
	}
}

func TestAnthropicUpstream(t *testing.T) {
	api, srv := newFakeAPI(t, "/v1/messages", http.StatusOK, `{
		"id": "msg_1",
		"type": "message",
		"role": "assistant",
		"model": "claude-3-5-haiku-20241022",
		"content": [{"type": "text", "text": "Try a short walk."}],
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 10, "output_tokens": 5}
	}`)

	up, err := NewAnthropicUpstream(UpstreamConfig{BaseURL: srv.URL, APIKey: "ant-test"})
	require.NoError(t, err)

	got, err := up.Complete(context.Background(), cookieRequest)
	require.NoError(t, err)
	assert.Equal(t, Completion{
		Text:  "Try a short walk.",
		Model: "claude-3-5-haiku-20241022",
		Usage: provider.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, got)

	body := api.lastBody(t)
	assert.Equal(t, "claude-3-5-haiku-latest", body["model"])
	assert.EqualValues(t, 120, body["max_tokens"])
	system, ok := body["system"].([]any)
	require.True(t, ok)
	assert.Equal(t, provider.CoachPreamble, system[0].(map[string]any)["text"])
	assert.Equal(t, "ant-test", api.auth[0])
}

func TestAnthropicUpstream_RateLimited(t *testing.T) {
	_, srv := newFakeAPI(t, "/v1/messages", http.StatusTooManyRequests,
		`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`)
	up, err := NewAnthropicUpstream(UpstreamConfig{BaseURL: srv.URL, APIKey: "ant-test"})
	require.NoError(t, err)

	_, err = up.Complete(context.Background(), cookieRequest)
	assert.True(t, isRateLimited(err))
}

func TestOllamaUpstream(t *testing.T) {
	rt := testutil.NewOllamaRuntime(t, "Try a ", "short walk.")

	up, err := NewOllamaUpstream(UpstreamConfig{BaseURL: rt.URL(), Model: "gemma"}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "gemma3:1b", up.Model())
	require.NoError(t, up.Ping(context.Background()))

	got, err := up.Complete(context.Background(), cookieRequest)
	require.NoError(t, err)
	assert.Equal(t, Completion{
		Text:  "Try a short walk.",
		Model: "gemma3:1b",
		Usage: provider.Usage{PromptTokens: 12, CompletionTokens: 4, TotalTokens: 16},
	}, got)

	bodies := rt.ChatBodies()
	require.Len(t, bodies, 1)
	opts := bodies[0]["options"].(map[string]any)
	assert.EqualValues(t, 120, opts["num_predict"])

	rt.SetChatError("model crashed")
	_, err = up.Complete(context.Background(), cookieRequest)
	require.Error(t, err)
	assert.False(t, isRateLimited(err))
}

package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"habitcoach/provider"
)

// CoachAPI is a scriptable fake of the coach API.
type CoachAPI struct {
	Server *httptest.Server

	mu           sync.Mutex
	HealthStatus int
	ChatStatus   int
	Reply        provider.ChatResponse
	Requests     []provider.ChatRequest
	Headers      []http.Header
}

// NewCoachAPI starts a fake coach API that is healthy and answers reply.
// It is closed automatically when the test ends.
func NewCoachAPI(t *testing.T, reply string) *CoachAPI {
	t.Helper()

	api := &CoachAPI{
		HealthStatus: http.StatusOK,
		ChatStatus:   http.StatusOK,
		Reply: provider.ChatResponse{
			Response:  reply,
			Usage:     provider.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
			Model:     "x",
			Timestamp: "t",
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		status := api.HealthStatus
		api.mu.Unlock()
		w.WriteHeader(status)
	})
	mux.HandleFunc("POST /chat", func(w http.ResponseWriter, r *http.Request) {
		var req provider.ChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		api.mu.Lock()
		api.Requests = append(api.Requests, req)
		api.Headers = append(api.Headers, r.Header.Clone())
		status := api.ChatStatus
		reply := api.Reply
		api.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status == http.StatusOK {
			_ = json.NewEncoder(w).Encode(reply)
			return
		}
		_ = json.NewEncoder(w).Encode(provider.ErrorResponse{Error: http.StatusText(status)})
	})

	api.Server = httptest.NewServer(mux)
	t.Cleanup(api.Server.Close)
	return api
}

// URL returns the fake's base URL.
func (a *CoachAPI) URL() string { return a.Server.URL }

// SetHealth changes the status returned by GET /health.
func (a *CoachAPI) SetHealth(status int) {
	a.mu.Lock()
	a.HealthStatus = status
	a.mu.Unlock()
}

// SetChatStatus changes the status returned by POST /chat.
func (a *CoachAPI) SetChatStatus(status int) {
	a.mu.Lock()
	a.ChatStatus = status
	a.mu.Unlock()
}

// ChatRequests returns the decoded chat payloads received so far.
func (a *CoachAPI) ChatRequests() []provider.ChatRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]provider.ChatRequest(nil), a.Requests...)
}

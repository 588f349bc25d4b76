package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// OllamaRuntime fakes the subset of the Ollama API the local backend uses.
type OllamaRuntime struct {
	Server *httptest.Server

	mu         sync.Mutex
	PullDelay  time.Duration
	PullError  string
	ChatChunks []string
	ChatError  string
	pulled     []string
	unloaded   []string
	chatBodies  []map[string]any
	pullDone    chan struct{}
	pullStarted chan struct{}
}

// NewOllamaRuntime starts a fake runtime that pulls instantly and streams chunks.
func NewOllamaRuntime(t *testing.T, chunks ...string) *OllamaRuntime {
	t.Helper()

	rt := &OllamaRuntime{
		ChatChunks: chunks,
		pullDone:    make(chan struct{}, 16),
		pullStarted: make(chan struct{}, 16),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/pull", rt.handlePull)
	mux.HandleFunc("POST /api/chat", rt.handleChat)
	mux.HandleFunc("POST /api/generate", rt.handleGenerate)
	mux.HandleFunc("GET /api/tags", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3.2:1b","size":1300000000}]}`))
	})

	rt.Server = httptest.NewServer(mux)
	t.Cleanup(rt.Server.Close)
	return rt
}

func (rt *OllamaRuntime) URL() string { return rt.Server.URL }

func writeLine(w http.ResponseWriter, v any) {
	_ = json.NewEncoder(w).Encode(v)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func (rt *OllamaRuntime) handlePull(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Model string `json:"model"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	rt.mu.Lock()
	delay, pullErr := rt.PullDelay, rt.PullError
	rt.mu.Unlock()
	rt.pullStarted <- struct{}{}

	defer func() { rt.pullDone <- struct{}{} }()

	w.Header().Set("Content-Type", "application/x-ndjson")
	writeLine(w, map[string]any{"status": "pulling manifest"})

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if pullErr != "" {
		writeLine(w, map[string]any{"error": pullErr})
		return
	}

	rt.mu.Lock()
	rt.pulled = append(rt.pulled, body.Model)
	rt.mu.Unlock()
	writeLine(w, map[string]any{"status": "success"})
}

func (rt *OllamaRuntime) handleChat(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	rt.mu.Lock()
	rt.chatBodies = append(rt.chatBodies, body)
	chunks, chatErr := rt.ChatChunks, rt.ChatError
	rt.mu.Unlock()

	if chatErr != "" {
		w.WriteHeader(http.StatusInternalServerError)
		writeLine(w, map[string]any{"error": chatErr})
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	for _, c := range chunks {
		writeLine(w, map[string]any{
			"model":   body["model"],
			"message": map[string]any{"role": "assistant", "content": c},
			"done":    false,
		})
	}
	writeLine(w, map[string]any{
		"model":             body["model"],
		"message":           map[string]any{"role": "assistant", "content": ""},
		"done":              true,
		"prompt_eval_count": 12,
		"eval_count":        4,
	})
}

func (rt *OllamaRuntime) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Model string `json:"model"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	rt.mu.Lock()
	rt.unloaded = append(rt.unloaded, body.Model)
	rt.mu.Unlock()

	w.Header().Set("Content-Type", "application/x-ndjson")
	writeLine(w, map[string]any{"model": body.Model, "response": "", "done": true, "done_reason": "unload"})
}

// PullStarted receives once per pull, after the pull has read its settings.
func (rt *OllamaRuntime) PullStarted() <-chan struct{} {
	return rt.pullStarted
}

// SetPullDelay makes every pull block for d or until the request is cancelled.
func (rt *OllamaRuntime) SetPullDelay(d time.Duration) {
	rt.mu.Lock()
	rt.PullDelay = d
	rt.mu.Unlock()
}

// SetPullError makes pulls fail with msg.
func (rt *OllamaRuntime) SetPullError(msg string) {
	rt.mu.Lock()
	rt.PullError = msg
	rt.mu.Unlock()
}

// SetChatError makes chat requests fail with msg.
func (rt *OllamaRuntime) SetChatError(msg string) {
	rt.mu.Lock()
	rt.ChatError = msg
	rt.mu.Unlock()
}

// SetChatChunks replaces the streamed chunks.
func (rt *OllamaRuntime) SetChatChunks(chunks ...string) {
	rt.mu.Lock()
	rt.ChatChunks = chunks
	rt.mu.Unlock()
}

// PullFinished is signalled each time a pull handler returns.
func (rt *OllamaRuntime) PullFinished() <-chan struct{} { return rt.pullDone }

func (rt *OllamaRuntime) Pulled() []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return append([]string(nil), rt.pulled...)
}

func (rt *OllamaRuntime) Unloaded() []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return append([]string(nil), rt.unloaded...)
}

// ChatBodies returns the decoded chat request bodies.
func (rt *OllamaRuntime) ChatBodies() []map[string]any {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return append([]map[string]any(nil), rt.chatBodies...)
}

package ollama_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habitcoach/ollama"
	"habitcoach/provider/testutil"
)

func TestLookupModel(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"empty selects default", "", "llama3.2:1b", false},
		{"exact", "gemma3:1b", "gemma3:1b", false},
		{"case insensitive", " QWEN2.5:0.5B ", "qwen2.5:0.5b", false},
		{"fuzzy family", "qwen", "qwen2.5:0.5b", false},
		{"fuzzy gemma", "gemma", "gemma3:1b", false},
		{"unknown", "zzzz", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := ollama.LookupModel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, entry.Name)
		})
	}
}

func TestDefaultModelIsFirstCatalogEntry(t *testing.T) {
	assert.Equal(t, ollama.Catalog[0], ollama.DefaultModel())
}

func TestNewClient(t *testing.T) {
	c, err := ollama.NewClient("", nil)
	require.NoError(t, err)
	assert.Equal(t, ollama.DefaultHost, c.BaseURL())

	_, err = ollama.NewClient("localhost:11434", nil)
	assert.Error(t, err)
}

func TestClient_PullReportsProgress(t *testing.T) {
	rt := testutil.NewOllamaRuntime(t)
	c, err := ollama.NewClient(rt.URL(), nil)
	require.NoError(t, err)

	var statuses []string
	err = c.Pull(context.Background(), "llama3.2:1b", func(status string, completed, total int64) {
		statuses = append(statuses, status)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"pulling manifest", "success"}, statuses)
	assert.Equal(t, []string{"llama3.2:1b"}, rt.Pulled())
}

func TestClient_PullError(t *testing.T) {
	rt := testutil.NewOllamaRuntime(t)
	rt.SetPullError("disk full")
	c, err := ollama.NewClient(rt.URL(), nil)
	require.NoError(t, err)

	err = c.Pull(context.Background(), "llama3.2:1b", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestClient_ChatStreamsInOrder(t *testing.T) {
	rt := testutil.NewOllamaRuntime(t, "Breathe ", "for ", "a minute.")
	c, err := ollama.NewClient(rt.URL(), nil)
	require.NoError(t, err)

	var out strings.Builder
	stats, err := c.Chat(context.Background(), "qwen2.5:0.5b",
		[]api.Message{{Role: "user", Content: "I want a cookie"}},
		ollama.GenerateOptions{MaxTokens: 64, Temperature: 0.5, ContextWindow: 1024, KeepAlive: time.Minute},
		func(chunk string) error {
			out.WriteString(chunk)
			return nil
		})
	require.NoError(t, err)

	assert.Equal(t, "Breathe for a minute.", out.String())
	assert.Equal(t, ollama.ChatStats{Model: "qwen2.5:0.5b", PromptTokens: 12, CompletionTokens: 4}, stats)

	bodies := rt.ChatBodies()
	require.Len(t, bodies, 1)
	opts, ok := bodies[0]["options"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 64, opts["num_predict"])
	assert.EqualValues(t, 1024, opts["num_ctx"])
	assert.EqualValues(t, 0.5, opts["temperature"])
	assert.Equal(t, "1m0s", bodies[0]["keep_alive"])
}

func TestClient_ChatError(t *testing.T) {
	rt := testutil.NewOllamaRuntime(t)
	rt.SetChatError("model not found")
	c, err := ollama.NewClient(rt.URL(), nil)
	require.NoError(t, err)

	_, err = c.Chat(context.Background(), "llama3.2:1b", nil, ollama.GenerateOptions{}, nil)
	assert.Error(t, err)
}

func TestClient_UnloadListPing(t *testing.T) {
	rt := testutil.NewOllamaRuntime(t)
	c, err := ollama.NewClient(rt.URL(), nil)
	require.NoError(t, err)
	defer c.CloseIdleConnections()

	require.NoError(t, c.Unload(context.Background(), "gemma3:1b"))
	assert.Equal(t, []string{"gemma3:1b"}, rt.Unloaded())

	models, err := c.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []ollama.ModelInfo{{Name: "llama3.2:1b", Size: 1300000000}}, models)

	assert.NoError(t, c.Ping(context.Background()))
}

package provider_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habitcoach/model"
	"habitcoach/provider"
	"habitcoach/provider/testutil"
)

func newLocal(t *testing.T, rt *testutil.OllamaRuntime, modelName string) *provider.LocalBackend {
	t.Helper()
	local, err := provider.NewLocalBackend(provider.LocalConfig{
		Host:        rt.URL(),
		Model:       modelName,
		MaxTokens:   64,
		Temperature: provider.Float(0.7),
	}, nil)
	require.NoError(t, err)
	return local
}

func TestLocalBackendLoadPullsCatalogModel(t *testing.T) {
	rt := testutil.NewOllamaRuntime(t, "ok")
	local := newLocal(t, rt, "")

	require.NoError(t, local.Load(context.Background()))
	assert.Equal(t, []string{"llama3.2:1b"}, rt.Pulled())
	assert.Equal(t, model.LoadReady, local.State())
}

func TestLocalBackendLoadResolvesFuzzyName(t *testing.T) {
	rt := testutil.NewOllamaRuntime(t, "ok")
	local := newLocal(t, rt, "qwen")

	require.NoError(t, local.Load(context.Background()))
	assert.Equal(t, []string{"qwen2.5:0.5b"}, rt.Pulled())
}

func TestLocalBackendLoadFailure(t *testing.T) {
	rt := testutil.NewOllamaRuntime(t)
	rt.SetPullError("disk full")
	local := newLocal(t, rt, "")

	err := local.Load(context.Background())
	require.Error(t, err)

	var loadErr *model.LoadError
	require.True(t, errors.As(err, &loadErr), "want *model.LoadError, got %T", err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, model.LoadFailed, local.State())
}

func TestLocalBackendLoadUnknownModel(t *testing.T) {
	rt := testutil.NewOllamaRuntime(t)
	local := newLocal(t, rt, "zzzz-not-a-model")

	err := local.Load(context.Background())
	require.Error(t, err)
	assert.Empty(t, rt.Pulled(), "nothing outside the catalog is pulled")
}

func TestLocalBackendLoadCancelled(t *testing.T) {
	rt := testutil.NewOllamaRuntime(t)
	rt.SetPullDelay(5 * time.Second)
	local := newLocal(t, rt, "")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.Error(t, local.Load(ctx))
	assert.Equal(t, model.LoadFailed, local.State())
}

func TestLocalBackendGenerateConcatenatesChunks(t *testing.T) {
	rt := testutil.NewOllamaRuntime(t, "Drink ", "a glass ", "of water.")
	local := newLocal(t, rt, "")
	require.NoError(t, local.Load(context.Background()))

	reply, err := local.Generate(context.Background(), "I want a cookie", "craving")
	require.NoError(t, err)
	assert.Equal(t, "Drink a glass of water.", reply)

	bodies := rt.ChatBodies()
	require.Len(t, bodies, 1)

	messages, ok := bodies[0]["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, provider.CoachPreamble, messages[0].(map[string]any)["content"])
	assert.Equal(t, "Context: craving\n\nI want a cookie", messages[1].(map[string]any)["content"])

	options, ok := bodies[0]["options"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 64, options["num_predict"])
	assert.EqualValues(t, 0.7, options["temperature"])
	assert.EqualValues(t, 2048, options["num_ctx"])
	assert.Equal(t, "10m0s", bodies[0]["keep_alive"])
}

func TestLocalBackendHonoursZeroTemperature(t *testing.T) {
	rt := testutil.NewOllamaRuntime(t, "ok")
	local, err := provider.NewLocalBackend(provider.LocalConfig{
		Host:        rt.URL(),
		Temperature: provider.Float(0),
		KeepAlive:   time.Minute,
	}, nil)
	require.NoError(t, err)
	require.NoError(t, local.Load(context.Background()))

	_, err = local.Generate(context.Background(), "hello", "")
	require.NoError(t, err)

	bodies := rt.ChatBodies()
	require.Len(t, bodies, 1)
	options := bodies[0]["options"].(map[string]any)
	assert.EqualValues(t, 0, options["temperature"])
	assert.Equal(t, "1m0s", bodies[0]["keep_alive"])
}

func TestLocalBackendGenerateFallbacks(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(rt *testutil.OllamaRuntime)
	}{
		{"empty output", func(rt *testutil.OllamaRuntime) { rt.SetChatChunks(" ", "") }},
		{"runtime error", func(rt *testutil.OllamaRuntime) { rt.SetChatError("model crashed") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := testutil.NewOllamaRuntime(t, "unused")
			local := newLocal(t, rt, "")
			require.NoError(t, local.Load(context.Background()))
			tt.prepare(rt)

			reply, err := local.Generate(context.Background(), "hello", "")
			require.NoError(t, err)
			assert.Equal(t, model.LocalFallbackResponse, reply)
		})
	}
}

func TestLocalBackendGenerateBeforeLoad(t *testing.T) {
	rt := testutil.NewOllamaRuntime(t, "unused")
	local := newLocal(t, rt, "")

	_, err := local.Generate(context.Background(), "hello", "")
	var genErr *model.GenerationError
	assert.True(t, errors.As(err, &genErr))
}

func TestLocalBackendReleaseUnloadsModel(t *testing.T) {
	rt := testutil.NewOllamaRuntime(t, "ok")
	local := newLocal(t, rt, "")
	require.NoError(t, local.Load(context.Background()))

	require.NoError(t, local.Release(context.Background()))
	assert.Equal(t, []string{"llama3.2:1b"}, rt.Unloaded())
	assert.Equal(t, model.LoadUnloaded, local.State())

	// Releasing an unloaded backend does not touch the runtime.
	require.NoError(t, local.Release(context.Background()))
	assert.Len(t, rt.Unloaded(), 1)
}

// startSlowLoad begins a Load that blocks in the runtime's pull.
func startSlowLoad(t *testing.T, rt *testutil.OllamaRuntime, local *provider.LocalBackend) <-chan error {
	t.Helper()
	rt.SetPullDelay(200 * time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- local.Load(context.Background()) }()

	select {
	case <-rt.PullStarted():
	case <-time.After(2 * time.Second):
		t.Fatal("pull never reached the runtime")
	}
	return done
}

func TestLocalBackendReleaseDuringLoad(t *testing.T) {
	rt := testutil.NewOllamaRuntime(t, "ok")
	local := newLocal(t, rt, "")
	done := startSlowLoad(t, rt, local)

	require.NoError(t, local.Release(context.Background()))
	assert.Empty(t, rt.Unloaded(), "nothing was loaded yet")

	var loadErr *model.LoadError
	require.True(t, errors.As(<-done, &loadErr))
	assert.Equal(t, model.LoadUnloaded, local.State())

	_, err := local.Generate(context.Background(), "hello", "")
	var genErr *model.GenerationError
	assert.True(t, errors.As(err, &genErr))
}

func TestLocalBackendLateLoadDoesNotOverwriteNewer(t *testing.T) {
	rt := testutil.NewOllamaRuntime(t, "ok")
	local := newLocal(t, rt, "")
	done := startSlowLoad(t, rt, local)

	rt.SetPullDelay(0)
	rt.SetPullError("disk full")
	require.Error(t, local.Load(context.Background()))
	assert.Equal(t, model.LoadFailed, local.State())

	// the first pull still succeeds, but too late to count
	require.Error(t, <-done)
	assert.Equal(t, model.LoadFailed, local.State())
}


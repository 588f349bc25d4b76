package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habitcoach/model"
	"habitcoach/provider"
)

func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(envDataDir, "")
	t.Setenv(envOllamaHost, "")
	t.Setenv(envCloudURL, "")
	t.Setenv(envBackend, "")
	return home
}

func TestLoad_FirstRunWritesTemplates(t *testing.T) {
	home := isolateHome(t)

	cfg, err := Load()
	require.NoError(t, err)

	dataDir := filepath.Join(home, ".local", "share", "habitcoach")
	assert.Equal(t, dataDir, cfg.DataDir())
	assert.FileExists(t, filepath.Join(home, ".config", "habitcoach", "settings.toml"))
	assert.FileExists(t, filepath.Join(dataDir, "config.toml"))

	info, err := os.Stat(dataDir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm())

	assert.Equal(t, model.ModeLocal, cfg.Backend())
	assert.Equal(t, 30*time.Second, cfg.LoadTimeout())
	assert.Equal(t, 5*time.Second, cfg.HealthTimeout())
}

func TestLoad_TemplateParsesToDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(UserConfigPath(dir), []byte(GenerateUserConfigTemplate()), 0600))

	cfg, err := LoadUserConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, DefaultUserConfig(), cfg)
}

func TestLoad_DataDirOverride(t *testing.T) {
	isolateHome(t)
	dataDir := t.TempDir()
	t.Setenv(envDataDir, dataDir)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, dataDir, cfg.DataDir())
	assert.FileExists(t, UserConfigPath(dataDir))
}

func TestEnvOverrides(t *testing.T) {
	t.Run("all set", func(t *testing.T) {
		t.Setenv(envOllamaHost, "http://gpu-box:11434")
		t.Setenv(envCloudURL, "https://coach.example.com")
		t.Setenv(envBackend, "cloud")

		cfg := &Config{User: *DefaultUserConfig()}
		cfg.applyEnvOverrides()

		assert.Equal(t, "http://gpu-box:11434", cfg.User.Local.Host)
		assert.Equal(t, "https://coach.example.com", cfg.User.Cloud.BaseURL)
		assert.Equal(t, model.ModeCloud, cfg.Backend())
	})

	t.Run("empty values keep the file settings", func(t *testing.T) {
		t.Setenv(envOllamaHost, "")
		t.Setenv(envCloudURL, "")
		t.Setenv(envBackend, "")

		cfg := &Config{User: *DefaultUserConfig()}
		cfg.applyEnvOverrides()

		assert.Equal(t, *DefaultUserConfig(), cfg.User)
	})

	t.Run("unknown backend falls back to default", func(t *testing.T) {
		t.Setenv(envBackend, "quantum")

		cfg := &Config{User: *DefaultUserConfig()}
		cfg.applyEnvOverrides()

		assert.Equal(t, model.DefaultMode, cfg.Backend())
	})
}

func TestPreferences_EnvBackendWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, NewPreferenceFile(dir).SaveMode(model.ModeLocal))

	t.Setenv(envBackend, "cloud")
	cfg := &Config{DataDirectory: dir, User: *DefaultUserConfig()}
	cfg.applyEnvOverrides()

	prefs := cfg.Preferences()
	mode, err := prefs.LoadMode()
	require.NoError(t, err)
	assert.Equal(t, model.ModeCloud, mode)

	// saving still goes to the file
	require.NoError(t, prefs.SaveMode(model.ModeLocal))
	mode, err = NewPreferenceFile(dir).LoadMode()
	require.NoError(t, err)
	assert.Equal(t, model.ModeLocal, mode)
}

func TestPreferences_InvalidEnvBackendUsesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, NewPreferenceFile(dir).SaveMode(model.ModeCloud))

	t.Setenv(envBackend, "quantum")
	cfg := &Config{DataDirectory: dir, User: *DefaultUserConfig()}
	cfg.applyEnvOverrides()

	mode, err := cfg.Preferences().LoadMode()
	require.NoError(t, err)
	assert.Equal(t, model.ModeCloud, mode)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want time.Duration
	}{
		{"empty", "", time.Minute},
		{"valid", "45s", 45 * time.Second},
		{"garbage", "soon", time.Minute},
		{"negative", "-3s", time.Minute},
		{"zero", "0s", time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseDuration(tt.in, time.Minute))
		})
	}
}

func TestProviderConfig(t *testing.T) {
	cfg := &Config{User: *DefaultUserConfig()}
	cfg.User.Coach.HealthTimeout = "2s"

	pc := cfg.ProviderConfig("secret")

	assert.Equal(t, "http://localhost:11434", pc.Local.Host)
	assert.Equal(t, "llama3.2:1b", pc.Local.Model)
	assert.Equal(t, 256, pc.Local.MaxTokens)
	assert.Equal(t, 2048, pc.Local.ContextWindow)
	assert.Equal(t, "http://localhost:8787", pc.Remote.BaseURL)
	assert.Equal(t, "secret", pc.Remote.APIKey)
	assert.Equal(t, 300, pc.Remote.MaxTokens)
	assert.Equal(t, 2*time.Second, pc.Remote.HealthTimeout)
}

func TestProviderConfig_ZeroTemperature(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(UserConfigPath(dir), []byte("[local]\ntemperature = 0\n"), 0600))

	user, err := LoadUserConfig(dir)
	require.NoError(t, err)
	cfg := &Config{User: *user}
	pc := cfg.ProviderConfig("")

	require.NotNil(t, pc.Local.Temperature)
	assert.Zero(t, *pc.Local.Temperature)
	require.NotNil(t, pc.Remote.Temperature)
	assert.Equal(t, provider.DefaultTemperature, *pc.Remote.Temperature)
}

func TestPreferenceFile(t *testing.T) {
	dir := t.TempDir()
	prefs := NewPreferenceFile(dir)

	mode, err := prefs.LoadMode()
	require.NoError(t, err)
	assert.Equal(t, model.ModeLocal, mode)

	require.NoError(t, prefs.SaveMode(model.ModeCloud))

	mode, err = prefs.LoadMode()
	require.NoError(t, err)
	assert.Equal(t, model.ModeCloud, mode)

	// Other settings survive the rewrite.
	user, err := LoadUserConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "llama3.2:1b", user.Local.Model)
	assert.Equal(t, "30s", user.Coach.LoadTimeout)

	assert.Error(t, prefs.SaveMode(model.BackendMode("quantum")))
}

func TestPreferenceFile_RejectsUnknownPersistedMode(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(UserConfigPath(dir), []byte("[coach]\nbackend = \"quantum\"\n"), 0600))

	_, err := NewPreferenceFile(dir).LoadMode()
	assert.Error(t, err)
}

func TestKeybindings(t *testing.T) {
	dir := t.TempDir()

	kb, err := LoadKeybindings(dir)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "keybindings.toml"))
	assert.Equal(t, "ctrl+t", kb.GetActionKey(ActionToggleBackend))
	assert.Equal(t, "Ctrl+T", kb.DisplayActionKey(ActionToggleBackend))
	assert.Equal(t, "", kb.GetActionKey("fly"))

	override := "[actions]\ntoggle_backend = \"ctrl+b\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keybindings.toml"), []byte(override), 0600))

	kb, err = LoadKeybindings(dir)
	require.NoError(t, err)
	assert.Equal(t, "ctrl+b", kb.GetActionKey(ActionToggleBackend))
	assert.Equal(t, "enter", kb.GetActionKey(ActionSend))

	bad := "[actions]\nfly = \"ctrl+f\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keybindings.toml"), []byte(bad), 0600))
	_, err = LoadKeybindings(dir)
	assert.Error(t, err)
}

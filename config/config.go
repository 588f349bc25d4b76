package config

import (
	"fmt"
	"os"
	"time"

	"habitcoach/model"
	"habitcoach/provider"
)

type SystemConfig struct {
	DataDirectory string `toml:"data_directory"`
}

type CoachSettings struct {
	Backend       string `toml:"backend"`
	LoadTimeout   string `toml:"load_timeout"`
	HealthTimeout string `toml:"health_timeout"`
}

type LocalSettings struct {
	Host          string  `toml:"host"`
	Model         string  `toml:"model"`
	MaxTokens     int      `toml:"max_tokens"`
	Temperature   *float64 `toml:"temperature,omitempty"`
	ContextWindow int      `toml:"context_window"`
}

type CloudSettings struct {
	BaseURL     string   `toml:"base_url"`
	MaxTokens   int      `toml:"max_tokens"`
	Temperature *float64 `toml:"temperature,omitempty"`
}

type SecuritySettings struct {
	Method     string `toml:"method"`
	SSHKeyPath string `toml:"ssh_key_path,omitempty"`
}

type UserConfig struct {
	Coach    CoachSettings    `toml:"coach"`
	Local    LocalSettings    `toml:"local"`
	Cloud    CloudSettings    `toml:"cloud"`
	Security SecuritySettings `toml:"security"`
}

type Config struct {
	DataDirectory string
	User          UserConfig

	// backendOverride is HABITCOACH_BACKEND when it names a known mode.
	backendOverride model.BackendMode
}

const (
	DefaultLoadTimeout = 30 * time.Second
	envDataDir         = "HABITCOACH_DATA_DIR"
	envOllamaHost      = "HABITCOACH_OLLAMA_HOST"
	envCloudURL        = "HABITCOACH_CLOUD_URL"
	envBackend         = "HABITCOACH_BACKEND"
	envDebug           = "HABITCOACH_DEBUG"
)

func (c *Config) DataDir() string {
	return ExpandPath(c.DataDirectory)
}

// Backend returns the persisted backend preference, falling back to the
// default for empty or unknown values.
func (c *Config) Backend() model.BackendMode {
	mode, err := model.ParseBackendMode(c.User.Coach.Backend)
	if err != nil {
		return model.DefaultMode
	}
	return mode
}

func (c *Config) LoadTimeout() time.Duration {
	return parseDuration(c.User.Coach.LoadTimeout, DefaultLoadTimeout)
}

func (c *Config) HealthTimeout() time.Duration {
	return parseDuration(c.User.Coach.HealthTimeout, provider.DefaultHealthTimeout)
}

// ProviderConfig translates the user settings into backend settings.
// apiKey is sent as a bearer token to the coach API when non-empty.
func (c *Config) ProviderConfig(apiKey string) provider.Config {
	return provider.Config{
		Local: provider.LocalConfig{
			Host:          c.User.Local.Host,
			Model:         c.User.Local.Model,
			MaxTokens:     c.User.Local.MaxTokens,
			Temperature:   c.User.Local.Temperature,
			ContextWindow: c.User.Local.ContextWindow,
		},
		Remote: provider.RemoteConfig{
			BaseURL:       c.User.Cloud.BaseURL,
			APIKey:        apiKey,
			MaxTokens:     c.User.Cloud.MaxTokens,
			Temperature:   c.User.Cloud.Temperature,
			HealthTimeout: c.HealthTimeout(),
		},
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func (c *Config) applyEnvOverrides() {
	if host := os.Getenv(envOllamaHost); host != "" {
		c.User.Local.Host = host
	}
	if url := os.Getenv(envCloudURL); url != "" {
		c.User.Cloud.BaseURL = url
	}
	if backend := os.Getenv(envBackend); backend != "" {
		c.User.Coach.Backend = backend
		if mode, err := model.ParseBackendMode(backend); err == nil {
			c.backendOverride = mode
		}
	}
}

// Preferences returns the backend preference store for the data directory.
// A valid HABITCOACH_BACKEND takes precedence over the persisted value.
func (c *Config) Preferences() *PreferenceFile {
	prefs := NewPreferenceFile(c.DataDir())
	if c.backendOverride != "" {
		return prefs.WithOverride(c.backendOverride)
	}
	return prefs
}

func CheckDebug() bool {
	debug := os.Getenv(envDebug)
	return debug == "true" || debug == "1"
}

// Load reads the system config (creating it on first run), then the user
// config in the data directory, then applies environment overrides.
func Load() (*Config, error) {
	systemCfg, err := LoadSystemConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load system config: %w", err)
	}

	cfg := &Config{DataDirectory: systemCfg.DataDirectory}
	if dataDir := os.Getenv(envDataDir); dataDir != "" {
		cfg.DataDirectory = dataDir
	}

	dataDir := cfg.DataDir()
	if err := EnsureDataDirPermissions(dataDir); err != nil {
		return nil, fmt.Errorf("failed to prepare data directory: %w", err)
	}

	userCfg, err := LoadUserConfig(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}
	cfg.User = *userCfg
	cfg.applyEnvOverrides()

	return cfg, nil
}

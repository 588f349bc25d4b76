package config

import "habitcoach/provider"

func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		DataDirectory: "~/.local/share/habitcoach",
	}
}

func DefaultUserConfig() *UserConfig {
	return &UserConfig{
		Coach: CoachSettings{
			Backend:       "local",
			LoadTimeout:   "30s",
			HealthTimeout: "5s",
		},
		Local: LocalSettings{
			Host:          "http://localhost:11434",
			Model:         "llama3.2:1b",
			MaxTokens:     256,
			Temperature:   provider.Float(provider.DefaultTemperature),
			ContextWindow: 2048,
		},
		Cloud: CloudSettings{
			BaseURL:     "http://localhost:8787",
			MaxTokens:   300,
			Temperature: provider.Float(provider.DefaultTemperature),
		},
		Security: SecuritySettings{
			Method: string(SecurityPlainText),
		},
	}
}

func GenerateSystemConfigTemplate() string {
	return `# habitcoach System Configuration
# Location: ~/.config/habitcoach/settings.toml
# This file uses TOML format: https://toml.io

# Directory where the user config, credentials and logs are stored
data_directory = "~/.local/share/habitcoach"
`
}

func GenerateUserConfigTemplate() string {
	return `# habitcoach User Configuration
# Location: <data_directory>/config.toml
# This file uses TOML format: https://toml.io

[coach]
# Which backend answers: "local" (on-device Ollama) or "cloud" (coach API)
backend = "local"

# How long to wait for the local model to load before giving up
load_timeout = "30s"

# How long the cloud health check may take
health_timeout = "5s"

[local]
# Ollama runtime URL
host = "http://localhost:11434"

# Model from the built-in catalog (see: habitcoach models)
model = "llama3.2:1b"
max_tokens = 256
temperature = 0.7
context_window = 2048

[cloud]
# Coach API base URL (see: habitcoach serve)
base_url = "http://localhost:8787"
max_tokens = 300
temperature = 0.7

[security]
# How credentials are stored: "plaintext" or "ssh_key"
method = "plaintext"
`
}

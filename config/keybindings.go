package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// KeyBindingsConfig holds optional per-action overrides for the chat screen.
type KeyBindingsConfig struct {
	Actions map[string]string `toml:"actions"`
}

// Chat screen actions.
const (
	ActionSend          = "send"
	ActionToggleBackend = "toggle_backend"
	ActionReload        = "reload"
	ActionClearError    = "clear_error"
	ActionCopyReply     = "copy_reply"
	ActionQuit          = "quit"
	ActionCancel        = "cancel"
)

// actionRegistry maps action names to their default keys.
// Users can override any of these in the [actions] section of keybindings.toml
var actionRegistry = map[string]string{
	ActionSend:          "enter",
	ActionToggleBackend: "ctrl+t",
	ActionReload:        "ctrl+r",
	ActionClearError:    "ctrl+e",
	ActionCopyReply:     "ctrl+y",
	ActionQuit:          "ctrl+c",
	ActionCancel:        "esc",
}

func DefaultKeybindings() *KeyBindingsConfig {
	return &KeyBindingsConfig{Actions: map[string]string{}}
}

// LoadKeybindings loads keybindings from the data directory, writing the
// commented template on first run.
func LoadKeybindings(dataDir string) (*KeyBindingsConfig, error) {
	cfg := DefaultKeybindings()
	keybindingsPath := filepath.Join(dataDir, "keybindings.toml")

	if !FileExists(keybindingsPath) {
		if err := writeTemplate(dataDir, keybindingsPath, GenerateKeybindingsTemplate()); err != nil {
			return nil, fmt.Errorf("failed to create keybindings: %w", err)
		}
		return cfg, nil
	}

	if _, err := toml.DecodeFile(keybindingsPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse keybindings: %w", err)
	}
	if cfg.Actions == nil {
		cfg.Actions = map[string]string{}
	}

	for action := range cfg.Actions {
		if _, ok := actionRegistry[action]; !ok {
			return nil, fmt.Errorf("unknown keybinding action %q", action)
		}
	}
	return cfg, nil
}

func GenerateKeybindingsTemplate() string {
	return `# habitcoach Keybindings Configuration
# Location: <data_directory>/keybindings.toml
# This file uses TOML format: https://toml.io

[actions]
# Uncomment to override a default:
#   send = "enter"
#   toggle_backend = "ctrl+t"
#   reload = "ctrl+r"
#   clear_error = "ctrl+e"
#   copy_reply = "ctrl+y"
#   quit = "ctrl+c"
#   cancel = "esc"
`
}

// GetActionKey returns the keybinding for an action.
// Checks user overrides first, then falls back to the registry defaults.
func (kb *KeyBindingsConfig) GetActionKey(action string) string {
	if kb != nil && kb.Actions != nil {
		if override, exists := kb.Actions[action]; exists && override != "" {
			return override
		}
	}
	return actionRegistry[action]
}

// DisplayActionKey returns a display-friendly version of an action's keybinding
// Example: "ctrl+t" -> "Ctrl+T"
func (kb *KeyBindingsConfig) DisplayActionKey(action string) string {
	key := kb.GetActionKey(action)
	if key == "" {
		return ""
	}
	return capitalizeKeybinding(key)
}

func capitalizeKeybinding(key string) string {
	parts := strings.Split(key, "+")
	var result []string
	for _, part := range parts {
		if part == "" {
			continue
		}
		if len(part) == 1 {
			result = append(result, strings.ToUpper(part))
			continue
		}
		result = append(result, strings.ToUpper(part[:1])+part[1:])
	}
	return strings.Join(result, "+")
}

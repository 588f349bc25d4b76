package provider

import (
	"fmt"

	"go.uber.org/zap"

	"habitcoach/model"
)

// Config holds the settings for both backends.
type Config struct {
	Local  LocalConfig
	Remote RemoteConfig
}

// NewBackend creates the backend for mode.
//
// Supported modes:
//   - model.ModeLocal: Ollama runtime with a catalog model
//   - model.ModeCloud: coach API over HTTP JSON
//
// Example:
//
//	b, err := provider.NewBackend(model.ModeCloud, provider.Config{
//	    Remote: provider.RemoteConfig{BaseURL: "http://localhost:8787"},
//	}, logger)
func NewBackend(mode model.BackendMode, cfg Config, logger *zap.Logger) (model.Backend, error) {
	switch mode {
	case model.ModeLocal:
		local, err := NewLocalBackend(cfg.Local, logger)
		if err != nil {
			return nil, err
		}
		return local, nil
	case model.ModeCloud:
		return NewRemoteBackend(cfg.Remote, logger), nil
	default:
		return nil, fmt.Errorf("unknown backend mode: %s", mode)
	}
}

// NewBackends creates one backend per mode, keyed by mode.
func NewBackends(cfg Config, logger *zap.Logger) (map[model.BackendMode]model.Backend, error) {
	backends := make(map[model.BackendMode]model.Backend, 2)
	for _, mode := range []model.BackendMode{model.ModeLocal, model.ModeCloud} {
		b, err := NewBackend(mode, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s backend: %w", mode, err)
		}
		backends[mode] = b
	}
	return backends, nil
}

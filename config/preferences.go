package config

import (
	"fmt"

	"habitcoach/model"
)

// PreferenceFile persists the backend preference in the user config.
type PreferenceFile struct {
	dataDir  string
	override model.BackendMode
}

func NewPreferenceFile(dataDir string) *PreferenceFile {
	return &PreferenceFile{dataDir: dataDir}
}

// WithOverride returns a copy whose LoadMode reports mode instead of the
// file. SaveMode still writes the file.
func (p *PreferenceFile) WithOverride(mode model.BackendMode) *PreferenceFile {
	return &PreferenceFile{dataDir: p.dataDir, override: mode}
}

// LoadMode reads [coach] backend. An unset value yields model.DefaultMode.
func (p *PreferenceFile) LoadMode() (model.BackendMode, error) {
	if p.override != "" {
		return p.override, nil
	}
	cfg, err := LoadUserConfig(p.dataDir)
	if err != nil {
		return "", err
	}
	if cfg.Coach.Backend == "" {
		return model.DefaultMode, nil
	}
	return model.ParseBackendMode(cfg.Coach.Backend)
}

// SaveMode rewrites [coach] backend, keeping the rest of the file.
func (p *PreferenceFile) SaveMode(mode model.BackendMode) error {
	if _, err := model.ParseBackendMode(string(mode)); err != nil {
		return err
	}

	cfg, err := LoadUserConfig(p.dataDir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Coach.Backend = string(mode)

	if err := SaveUserConfig(cfg, p.dataDir); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

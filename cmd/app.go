package cmd

import (
	"fmt"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"habitcoach/coach"
	"habitcoach/config"
	"habitcoach/provider"
)

// coachCredentialID names the stored bearer token for the coach API.
const coachCredentialID = "coach"

// app is the wiring shared by the chat and ask commands.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	dispatcher *coach.Dispatcher
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := config.NewDebugLogger(cfg.DataDir())

	creds, err := openCredentials(cfg)
	if err != nil {
		logger.Warn("credentials unavailable, calling the coach API without a token", zap.Error(err))
	}
	apiKey := ""
	if creds != nil {
		apiKey = creds.Get(coachCredentialID)
	}

	backends, err := provider.NewBackends(cfg.ProviderConfig(apiKey), logger)
	if err != nil {
		return nil, err
	}

	d, err := coach.New(backends, cfg.Preferences(), coach.Options{
		LoadTimeout: cfg.LoadTimeout(),
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	return &app{cfg: cfg, logger: logger, dispatcher: d}, nil
}

func (a *app) close() {
	_ = a.logger.Sync()
}

// openCredentials loads the credential store. HABITCOACH_SSH_PASSPHRASE
// unlocks a passphrase-protected SSH key.
func openCredentials(cfg *config.Config) (*config.CredentialStore, error) {
	return config.OpenCredentialStore(cfg, viper.GetString("ssh_passphrase"))
}

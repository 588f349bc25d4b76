package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"habitcoach/model"
	"habitcoach/ollama"
)

// LocalConfig configures the local runtime backend.
type LocalConfig struct {
	Host          string
	Model         string
	MaxTokens     int
	Temperature   *float64 // nil selects DefaultTemperature
	ContextWindow int
	KeepAlive     time.Duration
}

var errLoadSuperseded = errors.New("load superseded by a later load or release")

// LocalBackend answers prompts with a small model running in the local
// Ollama runtime.
type LocalBackend struct {
	client *ollama.Client
	cfg    LocalConfig
	logger *zap.Logger

	limitsOnce sync.Once
	limits     ollama.GenerateOptions

	mu      sync.Mutex
	state   model.LoadState
	entry   ollama.CatalogEntry
	loadSeq uint64 // bumped by every Load and Release
}

// NewLocalBackend creates a local backend. The model is not fetched until Load.
func NewLocalBackend(cfg LocalConfig, logger *zap.Logger) (*LocalBackend, error) {
	client, err := ollama.NewClient(cfg.Host, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidURL, err)
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 256
	}
	if cfg.Temperature == nil {
		cfg.Temperature = Float(DefaultTemperature)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &LocalBackend{
		client: client,
		cfg:    cfg,
		logger: logger.Named("local"),
		state:  model.LoadUnloaded,
	}, nil
}

func (l *LocalBackend) Name() string { return string(model.ModeLocal) }

func (l *LocalBackend) State() model.LoadState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Model returns the catalog entry the backend resolves to.
func (l *LocalBackend) Model() (ollama.CatalogEntry, error) {
	return ollama.LookupModel(l.cfg.Model)
}

// applyResourceLimits fixes the per-request runtime limits the first time
// the backend is used.
func (l *LocalBackend) applyResourceLimits() {
	l.limitsOnce.Do(func() {
		ctxWindow := l.cfg.ContextWindow
		if ctxWindow <= 0 {
			ctxWindow = 2048
		}
		keepAlive := l.cfg.KeepAlive
		if keepAlive <= 0 {
			keepAlive = 10 * time.Minute
		}
		l.limits = ollama.GenerateOptions{
			MaxTokens:     l.cfg.MaxTokens,
			Temperature:   *l.cfg.Temperature,
			ContextWindow: ctxWindow,
			KeepAlive:     keepAlive,
		}
		l.logger.Debug("runtime limits applied",
			zap.Int("num_ctx", ctxWindow),
			zap.Duration("keep_alive", keepAlive))
	})
}

// finishLoad records the outcome of load seq. It reports false when a
// later Load or Release has taken over, leaving the state untouched.
func (l *LocalBackend) finishLoad(seq uint64, s model.LoadState, entry ollama.CatalogEntry) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if seq != l.loadSeq {
		return false
	}
	l.state = s
	l.entry = entry
	return true
}

// Load fetches the catalog model into the runtime. Failures are not retried.
// A load overtaken by another Load or Release leaves no trace on the state.
func (l *LocalBackend) Load(ctx context.Context) error {
	l.applyResourceLimits()

	l.mu.Lock()
	l.loadSeq++
	seq := l.loadSeq
	l.state = model.LoadLoading
	l.entry = ollama.CatalogEntry{}
	l.mu.Unlock()

	entry, err := l.Model()
	if err != nil {
		l.finishLoad(seq, model.LoadFailed, ollama.CatalogEntry{})
		return &model.LoadError{Backend: l.Name(), Err: err}
	}

	l.logger.Info("loading model", zap.String("model", entry.Name))

	lastStatus := ""
	err = l.client.Pull(ctx, entry.Name, func(status string, completed, total int64) {
		if status != lastStatus {
			lastStatus = status
			l.logger.Debug("pull progress",
				zap.String("status", status),
				zap.Int64("completed", completed),
				zap.Int64("total", total))
		}
	})
	// A cancelled stream can end without an error; only "success" means
	// the model is in place.
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err == nil && lastStatus != "success" {
		err = fmt.Errorf("pull of %s ended before completion (last status %q)", entry.Name, lastStatus)
	}
	if err != nil {
		l.finishLoad(seq, model.LoadFailed, ollama.CatalogEntry{})
		return &model.LoadError{Backend: l.Name(), Err: err}
	}

	if !l.finishLoad(seq, model.LoadReady, entry) {
		l.logger.Info("load superseded, result dropped", zap.String("model", entry.Name))
		return &model.LoadError{Backend: l.Name(), Err: errLoadSuperseded}
	}

	l.logger.Info("model ready", zap.String("model", entry.Name))
	return nil
}

// Generate streams a reply and concatenates the chunks in arrival order.
// Runtime failures and empty output yield model.LocalFallbackResponse.
func (l *LocalBackend) Generate(ctx context.Context, prompt, promptContext string) (string, error) {
	l.applyResourceLimits()

	l.mu.Lock()
	entry := l.entry
	ready := l.state == model.LoadReady
	l.mu.Unlock()

	if !ready {
		return "", &model.GenerationError{Backend: l.Name(), Err: fmt.Errorf("model not loaded")}
	}

	var out strings.Builder
	_, err := l.client.Chat(ctx, entry.Name, CoachMessages(prompt, promptContext), l.limits, func(chunk string) error {
		out.WriteString(chunk)
		return nil
	})
	if err != nil {
		l.logger.Warn("generation failed", zap.String("model", entry.Name), zap.Error(err))
		return model.LocalFallbackResponse, nil
	}

	reply := strings.TrimSpace(out.String())
	if reply == "" {
		l.logger.Warn("generation returned no text", zap.String("model", entry.Name))
		return model.LocalFallbackResponse, nil
	}
	return reply, nil
}

// Release evicts the model from the runtime. A load still in flight is
// abandoned.
func (l *LocalBackend) Release(ctx context.Context) error {
	l.mu.Lock()
	l.loadSeq++
	entry := l.entry
	wasReady := l.state == model.LoadReady
	l.state = model.LoadUnloaded
	l.entry = ollama.CatalogEntry{}
	l.mu.Unlock()

	defer l.client.CloseIdleConnections()

	if !wasReady {
		return nil
	}
	if err := l.client.Unload(ctx, entry.Name); err != nil {
		l.logger.Warn("unload failed", zap.String("model", entry.Name), zap.Error(err))
		return err
	}
	l.logger.Info("model released", zap.String("model", entry.Name))
	return nil
}

package config

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewDebugLogger returns a file logger writing to <dataDir>/debug.log when
// HABITCOACH_DEBUG is set, and a no-op logger otherwise. The chat TUI owns
// the terminal, so it never logs to stderr.
func NewDebugLogger(dataDir string) *zap.Logger {
	if !CheckDebug() {
		return zap.NewNop()
	}

	logPath := DebugLogPath(dataDir)
	// 0600: the log may contain prompts
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not open debug log at %s: %v\n", logPath, err)
		return zap.NewNop()
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(f), zapcore.DebugLevel)

	logger := zap.New(core, zap.AddCaller())
	logger.Info("debug logging started", zap.String("path", logPath))
	return logger
}

// NewServerLogger returns a JSON logger on stderr for the coach API.
func NewServerLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}

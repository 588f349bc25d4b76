// Package server implements the coach API consumed by the cloud backend.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"habitcoach/storage"
)

const (
	DefaultAddr           = "127.0.0.1:8787"
	DefaultMaxTokens      = 300
	DefaultTemperature    = 0.7
	MaxTokensLimit        = 2048
	MaxTemperature        = 2.0
	defaultUsageLimit     = 50
	maxRequestBytes       = 64 << 10
	defaultRequestTimeout = 60 * time.Second
	shutdownTimeout       = 10 * time.Second
)

// Config configures the coach API.
type Config struct {
	Addr string
	// APIKey, when set, must be presented as a bearer token.
	APIKey string
	// RateLimit is the sustained chat requests per second; 0 disables limiting.
	RateLimit float64
	Burst     int
	// RequestTimeout bounds one upstream call.
	RequestTimeout time.Duration
}

// Server is the coach API.
type Server struct {
	cfg      Config
	upstream Upstream
	usage    storage.UsageRepository
	limiter  *rate.Limiter
	logger   *zap.Logger
	http     *http.Server
	now      func() time.Time
}

// New wires a server. usage may be nil, in which case nothing is recorded.
func New(cfg Config, upstream Upstream, usage storage.UsageRepository, logger *zap.Logger) (*Server, error) {
	if upstream == nil {
		return nil, fmt.Errorf("upstream is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
		if cfg.Burst <= 0 {
			cfg.Burst = 1
		}
	}

	s := &Server{
		cfg:      cfg,
		upstream: upstream,
		usage:    usage,
		limiter:  rate.NewLimiter(limit, cfg.Burst),
		logger:   logger.Named("server"),
		now:      time.Now,
	}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the routed handler with request ID, logging and auth
// middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("POST /chat", s.authMiddleware(http.HandlerFunc(s.handleChat)))
	mux.Handle("GET /usage", s.authMiddleware(http.HandlerFunc(s.handleUsage)))

	// Chain: request ID -> logging -> routes
	return s.requestIDMiddleware(s.loggingMiddleware(mux))
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("coach API listening",
			zap.String("addr", ln.Addr().String()),
			zap.String("upstream", s.upstream.Name()),
			zap.String("model", s.upstream.Model()))
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("shutting down coach API")
		return s.http.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

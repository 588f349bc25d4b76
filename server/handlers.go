package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"habitcoach/provider"
	"habitcoach/storage"
)

type ctxKey int

const requestIDKey ctxKey = iota

// Pinger is implemented by upstreams that can report their own health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// UsageEntry is the JSON form of a usage record.
type UsageEntry struct {
	ID               string    `json:"id"`
	RequestID        string    `json:"requestId"`
	Upstream         string    `json:"upstream"`
	Model            string    `json:"model"`
	PromptTokens     int       `json:"promptTokens"`
	CompletionTokens int       `json:"completionTokens"`
	TotalTokens      int       `json:"totalTokens"`
	Status           int       `json:"status"`
	Error            string    `json:"error,omitempty"`
	LatencyMs        int64     `json:"latencyMs"`
	CreatedAt        time.Time `json:"createdAt"`
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// requestIDMiddleware echoes a valid incoming X-Request-ID or assigns a new one.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", requestID(r.Context())))
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey != "" && r.Header.Get("Authorization") != "Bearer "+s.cfg.APIKey {
			s.writeError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	s.writeJSON(w, status, provider.ErrorResponse{Error: msg, RequestID: requestID(r.Context())})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.upstream.(Pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			s.logger.Warn("upstream unhealthy", zap.Error(err))
			s.writeJSON(w, http.StatusServiceUnavailable, provider.HealthResponse{Status: "unavailable", Model: s.upstream.Model()})
			return
		}
	}
	s.writeJSON(w, http.StatusOK, provider.HealthResponse{Status: "ok", Model: s.upstream.Model()})
}

// validateChat applies defaults and bounds to a decoded chat request.
func validateChat(req *provider.ChatRequest) error {
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return fmt.Errorf("message is required")
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = DefaultMaxTokens
	}
	if req.MaxTokens < 1 || req.MaxTokens > MaxTokensLimit {
		return fmt.Errorf("maxTokens must be between 1 and %d", MaxTokensLimit)
	}
	if req.Temperature == nil {
		req.Temperature = provider.Float(DefaultTemperature)
	}
	if *req.Temperature < 0 || *req.Temperature > MaxTemperature {
		return fmt.Errorf("temperature must be between 0 and %g", MaxTemperature)
	}
	return nil
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	start := s.now()
	rec := storage.UsageRecord{
		RequestID: requestID(r.Context()),
		Upstream:  s.upstream.Name(),
		Model:     s.upstream.Model(),
	}

	// The usage record is saved before the response is written.
	fail := func(status int, msg string) {
		rec.Status = status
		rec.Error = msg
		rec.LatencyMs = s.now().Sub(start).Milliseconds()
		s.recordUsage(r.Context(), rec)
		s.writeError(w, r, status, msg)
	}

	if !s.limiter.Allow() {
		fail(http.StatusTooManyRequests, "rate limited")
		return
	}

	var req provider.ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		fail(http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validateChat(&req); err != nil {
		fail(http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	completion, err := s.upstream.Complete(ctx, req)
	if err != nil {
		s.logger.Warn("upstream failed",
			zap.String("upstream", s.upstream.Name()),
			zap.String("request_id", rec.RequestID),
			zap.Error(err))
		if isRateLimited(err) {
			fail(http.StatusTooManyRequests, "upstream rate limited")
			return
		}
		fail(http.StatusInternalServerError, "upstream failure")
		return
	}

	if completion.Model != "" {
		rec.Model = completion.Model
	}
	rec.Status = http.StatusOK
	rec.PromptTokens = completion.Usage.PromptTokens
	rec.CompletionTokens = completion.Usage.CompletionTokens
	rec.TotalTokens = completion.Usage.TotalTokens
	rec.LatencyMs = s.now().Sub(start).Milliseconds()
	s.recordUsage(r.Context(), rec)

	s.writeJSON(w, http.StatusOK, provider.ChatResponse{
		Response:  completion.Text,
		Usage:     completion.Usage,
		Model:     rec.Model,
		Timestamp: s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) recordUsage(ctx context.Context, rec storage.UsageRecord) {
	if s.usage == nil {
		return
	}
	// The client may already be gone; the record is still wanted.
	if err := s.usage.Save(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Warn("failed to record usage", zap.String("request_id", rec.RequestID), zap.Error(err))
	}
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.usage == nil {
		s.writeJSON(w, http.StatusOK, []UsageEntry{})
		return
	}

	filter := storage.UsageFilter{
		Limit:    defaultUsageLimit,
		Upstream: r.URL.Query().Get("upstream"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}
	filter.FailedOnly = r.URL.Query().Get("failed") == "true"

	records, err := s.usage.Fetch(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to fetch usage", zap.Error(err))
		s.writeError(w, r, http.StatusInternalServerError, "failed to fetch usage")
		return
	}

	entries := make([]UsageEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, UsageEntry{
			ID:               rec.ID,
			RequestID:        rec.RequestID,
			Upstream:         rec.Upstream,
			Model:            rec.Model,
			PromptTokens:     rec.PromptTokens,
			CompletionTokens: rec.CompletionTokens,
			TotalTokens:      rec.TotalTokens,
			Status:           rec.Status,
			Error:            rec.Error,
			LatencyMs:        rec.LatencyMs,
			CreatedAt:        rec.CreatedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, entries)
}

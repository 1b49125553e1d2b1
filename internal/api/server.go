package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/progress-tracker/internal/id"
	"github.com/JakeFAU/progress-tracker/internal/metrics"
	"github.com/JakeFAU/progress-tracker/internal/policy/ratelimit"
	"github.com/JakeFAU/progress-tracker/internal/progress"
)

const requestTimeout = 10 * time.Second

// Board reads step boards.
type Board interface {
	Get(ctx context.Context, subject string) (progress.Snapshot, error)
	Subjects() []string
}

// Jobs starts and cancels simulated jobs.
type Jobs interface {
	Run(ctx context.Context, subject string) error
	Cancel(ctx context.Context, subject string) bool
}

// Server wires HTTP handlers to the in-memory board.
type Server struct {
	router  chi.Router
	board   Board
	jobs    Jobs
	logger  *zap.Logger
	limiter *ratelimit.Limiter
	ids     id.Generator
}

// Option customizes a Server.
type Option func(*Server)

// WithRateLimit throttles progress queries per subject. Throttled queries get
// 429 Too Many Requests, which pollers treat as a transient failure.
func WithRateLimit(l *ratelimit.Limiter) Option {
	return func(s *Server) {
		s.limiter = l
	}
}

// NewServer constructs a Server with middleware and routes.
func NewServer(board Board, jobs Jobs, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		board:  board,
		jobs:   jobs,
		logger: logger,
		ids:    id.NewGenerator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/progress", func(r chi.Router) {
		r.With(s.rateLimitMiddleware).Get("/{subject_id}", s.getProgress)
		r.Post("/stop/{subject_id}", s.stopProgress)
		r.Post("/start/{subject_id}", s.startProgress)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

type envelopeDTO struct {
	Success  bool               `json:"success"`
	Progress *progress.Snapshot `json:"progress,omitempty"`
	Message  string             `json:"message,omitempty"`
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// getProgress answers with success:false when nothing is tracked so pollers
// treat it as a finished job rather than an error.
func (s *Server) getProgress(w http.ResponseWriter, r *http.Request) {
	subject := chi.URLParam(r, "subject_id")
	snap, err := s.board.Get(r.Context(), subject)
	if err != nil {
		metrics.ObserveQuery(false)
		writeJSON(w, http.StatusOK, envelopeDTO{Success: false, Message: "no progress tracked for subject"})
		return
	}
	metrics.ObserveQuery(true)
	writeJSON(w, http.StatusOK, envelopeDTO{Success: true, Progress: &snap})
}

func (s *Server) stopProgress(w http.ResponseWriter, r *http.Request) {
	subject := chi.URLParam(r, "subject_id")
	found := s.jobs.Cancel(r.Context(), subject)
	if s.limiter != nil {
		s.limiter.Forget(subject)
	}
	metrics.ObserveStop(found)
	metrics.SetTrackedSubjects(len(s.board.Subjects()))
	s.logger.Info("progress tracking stopped", zap.String("subject", subject), zap.Bool("found", found))
	writeJSON(w, http.StatusOK, envelopeDTO{Success: true})
}

func (s *Server) startProgress(w http.ResponseWriter, r *http.Request) {
	subject := chi.URLParam(r, "subject_id")
	if err := s.jobs.Run(r.Context(), subject); err != nil {
		s.logger.Warn("start simulated job failed", zap.String("subject", subject), zap.Error(err))
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	metrics.ObserveJobStarted()
	metrics.SetTrackedSubjects(len(s.board.Subjects()))
	writeJSON(w, http.StatusAccepted, envelopeDTO{Success: true})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject := chi.URLParam(r, "subject_id")
		if !s.limiter.Allow(subject) {
			metrics.ObserveRateLimited()
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "too many progress queries")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = s.ids.MustNewID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID returns the request ID stored by the middleware, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Debug("request completed",
				zap.String("request_id", RequestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.String("request_id", RequestID(r.Context())),
						zap.Any("error", rec),
					)
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelopeDTO{Success: false, Message: msg})
}

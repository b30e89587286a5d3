// Package api exposes the HTTP interface for the scrape service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitedigest/internal/metrics"
	"github.com/JakeFAU/sitedigest/internal/scraper"
)

const (
	defaultListLimit = 10
	maxListLimit     = 100
)

// Enqueuer accepts queue items for asynchronous processing.
type Enqueuer interface {
	Enqueue(ctx context.Context, item scraper.QueueItem) error
}

// Runner executes one workflow synchronously.
type Runner interface {
	Run(ctx context.Context, seedURL string) *scraper.WorkflowState
}

// Config controls HTTP server behavior.
type Config struct {
	AuthEnabled    bool
	APIKey         string
	RequestTimeout time.Duration
	SyncTimeout    time.Duration
}

// Server wires HTTP handlers to the dispatcher and job store.
type Server struct {
	router   chi.Router
	jobStore scraper.JobStore
	queue    Enqueuer
	runner   Runner
	idGen    scraper.IDGenerator
	clock    scraper.Clock
	cfg      Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	jobStore scraper.JobStore,
	queue Enqueuer,
	runner Runner,
	idGen scraper.IDGenerator,
	clock scraper.Clock,
	cfg Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.SyncTimeout == 0 {
		cfg.SyncTimeout = 5 * time.Minute
	}
	s := &Server{
		jobStore: jobStore,
		queue:    queue,
		runner:   runner,
		idGen:    idGen,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.AuthEnabled {
			r.Use(apiKeyMiddleware(cfg.APIKey))
		}
		r.With(timeoutMiddleware(cfg.RequestTimeout)).Post("/scrape", s.submitScrape)
		r.With(timeoutMiddleware(cfg.SyncTimeout)).Post("/scrape/sync", s.scrapeSync)
		r.Route("/jobs", func(r chi.Router) {
			r.Use(timeoutMiddleware(cfg.RequestTimeout))
			r.Get("/", s.listJobs)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/", s.getJob)
				r.Delete("/", s.deleteJob)
				r.Get("/result", s.getJobResult)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The store round trip doubles as a downstream probe.
	if _, err := s.jobStore.ListJobs(r.Context(), "", 1); err != nil {
		writeError(w, http.StatusServiceUnavailable, "job store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type scrapeRequest struct {
	URL string `json:"url"`
}

func (s *Server) submitScrape(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeScrapeRequest(w, r)
	if !ok {
		return
	}
	jobID, err := s.idGen.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("generate job id: %v", err))
		return
	}
	now := s.clock.Now()
	job := scraper.Job{
		ID:        jobID,
		Status:    scraper.JobStatusPending,
		URL:       req.URL,
		CreatedAt: now,
	}
	if err := s.jobStore.CreateJob(r.Context(), job); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("create job: %v", err))
		return
	}
	queueCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	item := scraper.QueueItem{
		JobID:     jobID,
		SeedURL:   req.URL,
		Submitted: now,
	}
	if err := s.queue.Enqueue(queueCtx, item); err != nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Sprintf("enqueue job: %v", err))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":     jobID,
		"status":     string(scraper.JobStatusPending),
		"message":    "job accepted",
		"created_at": now,
	})
}

func (s *Server) scrapeSync(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeScrapeRequest(w, r)
	if !ok {
		return
	}
	final := s.runner.Run(r.Context(), req.URL)
	if final.Status == scraper.WorkflowFailed {
		writeError(w, http.StatusInternalServerError, final.LastError())
		return
	}
	writeJSON(w, http.StatusOK, final.Result())
}

func (s *Server) decodeScrapeRequest(w http.ResponseWriter, r *http.Request) (scrapeRequest, bool) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return scrapeRequest{}, false
	}
	trimmed := strings.TrimSpace(req.URL)
	if trimmed == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return scrapeRequest{}, false
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		writeError(w, http.StatusBadRequest, "url must use http or https")
		return scrapeRequest{}, false
	}
	req.URL = trimmed
	return req, true
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobStore.GetJob(r.Context(), jobID)
	if err != nil {
		writeJobStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) getJobResult(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobStore.GetJob(r.Context(), jobID)
	if err != nil {
		writeJobStoreError(w, err)
		return
	}
	switch job.Status {
	case scraper.JobStatusPending, scraper.JobStatusRunning:
		writeError(w, http.StatusTooEarly, fmt.Sprintf("job is %s", job.Status))
	case scraper.JobStatusFailed:
		writeError(w, http.StatusInternalServerError, job.ErrorText)
	default:
		if job.Result == nil {
			writeError(w, http.StatusNotFound, "result not available")
			return
		}
		writeJSON(w, http.StatusOK, job.Result)
	}
}

func (s *Server) deleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if err := s.jobStore.DeleteJob(r.Context(), jobID); err != nil {
		writeJobStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID, "status": "deleted"})
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxListLimit {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxListLimit))
			return
		}
		limit = parsed
	}
	status := scraper.JobStatus(r.URL.Query().Get("status"))
	switch status {
	case "", scraper.JobStatusPending, scraper.JobStatusRunning, scraper.JobStatusCompleted, scraper.JobStatusFailed:
	default:
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}

	jobs, err := s.jobStore.ListJobs(r.Context(), status, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []scraper.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": len(jobs), "jobs": jobs})
}

func writeJobStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, scraper.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			duration := time.Since(start)
			metrics.ObserveHTTPRequest(r.Method, r.URL.Path, ww.status, duration)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Duration("duration", duration),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
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

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

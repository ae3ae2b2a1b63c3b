// Package api provides the awardd HTTP server: change-event intake, dry-run
// previews, stored progress and notifications, the award catalog, health and
// Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hearthboard/awards/internal/app/awards"
	"github.com/hearthboard/awards/internal/app/batch"
	"github.com/hearthboard/awards/internal/domain"
	"github.com/hearthboard/awards/internal/health"
)

// Evaluator is the part of the batch manager the API drives.
type Evaluator interface {
	HandleEvent(ev domain.ChangeEvent) error
	Flush(ctx context.Context) (batch.FlushResult, error)
	DryRun(ctx context.Context, actorID string) (awards.Report, error)
	Pending() int
}

// ProgressReader exposes stored award state to clients.
type ProgressReader interface {
	ListProgress(ctx context.Context, actorID string) ([]domain.ProgressRecord, error)
	ListNotifications(ctx context.Context, actorID string, pendingOnly bool) ([]domain.AwardNotification, error)
	MarkShown(ctx context.Context, id string) error
}

// Server is the awardd HTTP API server.
type Server struct {
	eval           Evaluator
	store          ProgressReader
	catalog        domain.Catalog
	health         *health.Checker
	limiter        *RateLimiter
	metricsEnabled bool
	logger         *slog.Logger
}

// NewServer creates a new API server.
func NewServer(eval Evaluator, store ProgressReader, catalog domain.Catalog, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{
		eval:    eval,
		store:   store,
		catalog: catalog,
		logger:  logger.With("component", "api"),
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetHealth reports checker statuses on /health instead of a bare "ok".
func (s *Server) SetHealth(c *health.Checker) { s.health = c }

// SetRateLimiter limits event intake per client address.
func (s *Server) SetRateLimiter(rl *RateLimiter) { s.limiter = rl }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if s.limiter != nil {
				r.Use(s.limiter.Middleware)
			}
			r.Post("/events", s.handleEvents)
		})
		r.Post("/flush", s.handleFlush)
		r.Get("/awards", s.handleAwards)

		r.Route("/actors/{id}", func(r chi.Router) {
			r.Get("/preview", s.handlePreview)
			r.Get("/progress", s.handleProgress)
			r.Get("/notifications", s.handleNotifications)
		})
		r.Post("/notifications/{id}/shown", s.handleNotificationShown)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	status, code := "ok", http.StatusOK
	if !s.health.IsHealthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status":  status,
		"pending": s.eval.Pending(),
		"checks":  s.health.Statuses(),
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}

// corsMiddleware adds CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

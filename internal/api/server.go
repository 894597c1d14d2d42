// Package api exposes the HTTP interface for the screenshot service.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/snapvault/snapvault/internal/capture"
	"github.com/snapvault/snapvault/internal/ingest"
	"github.com/snapvault/snapvault/internal/jobstore"
	"github.com/snapvault/snapvault/internal/metrics"
	"github.com/snapvault/snapvault/internal/storage"
	"github.com/snapvault/snapvault/internal/worker"
)

const (
	requestTimeout  = 60 * time.Second
	enqueueTimeout  = 5 * time.Second
	maxUploadBytes  = 10 << 20
	downloadURLTTL  = time.Hour
	defaultPageSize = 50
	maxPageSize     = 500
)

// Enqueuer hands accepted jobs to the processing pool.
type Enqueuer interface {
	Enqueue(ctx context.Context, req worker.JobRequest) error
}

// IDGenerator mints job IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Server wires HTTP handlers to the dispatcher and stores.
type Server struct {
	router   chi.Router
	jobs     jobstore.Store
	blobs    storage.Store
	enqueuer Enqueuer
	idGen    IDGenerator
	clock    capture.Clock
	maxRows  int
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes. maxRows bounds
// how many rows an uploaded URL list may carry; zero applies the default.
func NewServer(
	jobs jobstore.Store,
	blobs storage.Store,
	enqueuer Enqueuer,
	idGen IDGenerator,
	clock capture.Clock,
	maxRows int,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRows <= 0 {
		maxRows = ingest.DefaultMaxRows
	}
	s := &Server{
		jobs:     jobs,
		blobs:    blobs,
		enqueuer: enqueuer,
		idGen:    idGen,
		clock:    clock,
		maxRows:  maxRows,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(requestTimeout))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.submitJob)
			r.Get("/", s.listJobs)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/", s.getJob)
				r.Get("/download", s.downloadArchive)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

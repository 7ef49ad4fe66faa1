// Package server exposes the extraction pipeline over HTTP: upload a
// contract, poll the job, fetch the metadata record or its XLSX export.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/contractlens/extractor/constants"
	"github.com/contractlens/extractor/internal/common"
	"github.com/contractlens/extractor/internal/coordinator"
	"github.com/contractlens/extractor/internal/jobs"
)

// Extractor is the pipeline surface the server needs. Satisfied by
// *coordinator.Coordinator.
type Extractor interface {
	Extract(ctx context.Context, path string, opts coordinator.Options) (*coordinator.Result, error)
}

// Server handles the HTTP API and drives asynchronous extraction jobs.
type Server struct {
	cfg      common.ServerConfig
	defaults common.ExtractionConfig // pipeline defaults for requests without overrides
	store    *jobs.Store
	coord    Extractor
	logger   *slog.Logger

	sem chan struct{} // bounds concurrent extractions
	wg  sync.WaitGroup

	extractTimeout time.Duration
}

// New returns a Server.
func New(cfg common.ServerConfig, defaults common.ExtractionConfig, store *jobs.Store, coord Extractor, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if defaults.Method == "" {
		defaults.Method = constants.MethodHybrid
	}
	if defaults.Mode == "" {
		defaults.Mode = constants.ModeMultimodal
	}
	if defaults.Engine == "" {
		defaults.Engine = constants.OCRLocal
	}
	maxConcurrent := cfg.MaxConcurrentExtract
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Server{
		cfg:            cfg,
		defaults:       defaults,
		store:          store,
		coord:          coord,
		logger:         logger,
		sem:            make(chan struct{}, maxConcurrent),
		extractTimeout: 10 * time.Minute,
	}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/extract", s.handleExtract)
		r.Get("/jobs", s.handleListJobs)
		r.Route("/jobs/{jobID}", func(r chi.Router) {
			r.Get("/", s.handleJob)
			r.Get("/result", s.handleResult)
			r.Get("/logs", s.handleLogs)
			r.Get("/export", s.handleExport)
		})
	})
	return r
}

// Wait blocks until all in-flight extraction jobs finish. Called during
// shutdown after the listener stops.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http.request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

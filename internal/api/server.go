// SPDX-License-Identifier: MIT

// Package api exposes the separation daemon over HTTP: job submission and
// inspection, artifact downloads, health probes and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AshishAbrahamSamuel/Music-Source-Seperation-using-NMF/internal/config"
	"github.com/AshishAbrahamSamuel/Music-Source-Seperation-using-NMF/internal/health"
	"github.com/AshishAbrahamSamuel/Music-Source-Seperation-using-NMF/internal/jobs"
	xglog "github.com/AshishAbrahamSamuel/Music-Source-Seperation-using-NMF/internal/log"
	"github.com/AshishAbrahamSamuel/Music-Source-Seperation-using-NMF/internal/separate"
)

// JobService is the subset of the job manager the handlers need.
type JobService interface {
	Submit(ctx context.Context, req separate.Request) (*jobs.Job, error)
	Get(ctx context.Context, id string) (*jobs.Job, error)
	List(ctx context.Context, limit int) ([]*jobs.Job, error)
	Cancel(ctx context.Context, id string) error
}

// Server serves the HTTP API.
type Server struct {
	cfg    config.AppConfig
	jobs   JobService
	health *health.Manager
	http   *http.Server
}

// New builds a Server; Router is wired but not yet listening.
func New(cfg config.AppConfig, jobs JobService, hm *health.Manager) *Server {
	s := &Server{cfg: cfg, jobs: jobs, health: hm}
	s.http = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Router returns the chi handler, exported for httptest.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(requestLogger)

	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if s.cfg.RateLimit > 0 {
			r.Use(httprate.Limit(
				s.cfg.RateLimit,
				time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
					writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
				}),
			))
		}
		r.Post("/jobs", s.handleSubmitJob)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Delete("/jobs/{id}", s.handleCancelJob)
		r.Get("/jobs/{id}/artifacts/{name}", s.handleDownloadArtifact)
	})
	return r
}

// ListenAndServe blocks until ctx is canceled, then drains connections
// within the configured shutdown timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	logger := xglog.WithComponent("api")

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str(xglog.FieldEvent, "api.listen").
			Str("addr", s.cfg.ListenAddr).
			Msg("HTTP API listening")
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	logger.Info().Str(xglog.FieldEvent, "api.shutdown").Msg("shutting down HTTP API")
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

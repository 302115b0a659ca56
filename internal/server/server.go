// Package server exposes the meeting pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/stewardlabs/meeting-steward/internal/config"
	"github.com/stewardlabs/meeting-steward/internal/storage"
)

// Server hosts the meeting API.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	logger     *slog.Logger
}

// New assembles the router and middleware chain around the analysis
// runner and the store. The health endpoint stays outside the API key
// check so probes keep working on a locked-down deployment.
func New(cfg config.ServerConfig, runner Analyzer, store storage.MeetingStore, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	timeout := cfg.RequestTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}

	a := &api{
		runner:  runner,
		store:   store,
		logger:  logger,
		version: version,
		started: time.Now(),
	}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "meeting-steward")
	})

	r.Get("/healthz", a.handleHealth)

	r.Group(func(r chi.Router) {
		if len(cfg.APIKeys) > 0 {
			r.Use(APIKeyMiddleware(cfg.APIKeys))
		}
		r.Use(TimeoutMiddleware(timeout))

		r.Route("/v1", func(r chi.Router) {
			r.Route("/meetings", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(ConcurrencyLimit(cfg.MaxConcurrent))
					r.Post("/text", a.handleAnalyzeText)
					r.Post("/audio", a.handleAnalyzeAudio)
				})
				r.Get("/", a.handleListMeetings)
				r.Get("/{id}", a.handleGetMeeting)
			})
			r.Get("/status", a.handleStatus)
		})
	})

	return &Server{
		router: r,
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Router exposes the assembled mux, mainly for tests.
func (s *Server) Router() http.Handler { return s.router }

// Start serves until Shutdown is called or the listener fails.
func (s *Server) Start() error {
	s.logger.Info("server listening", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

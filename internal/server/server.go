// Package server exposes the engine as a JSON HTTP API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/splitpilot/splitpilot/internal/engine"
	"github.com/splitpilot/splitpilot/internal/store"
)

type Server struct {
	engine    *engine.Engine
	store     store.Store
	logger    *zap.Logger
	router    *chi.Mux
	validate  *validator.Validate
	metrics   *metrics
	registry  *prometheus.Registry
	port      int
	startTime time.Time
}

func New(eng *engine.Engine, s store.Store, logger *zap.Logger, port int) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := prometheus.NewRegistry()
	srv := &Server{
		engine:    eng,
		store:     s,
		logger:    logger,
		router:    chi.NewRouter(),
		validate:  validator.New(),
		metrics:   newMetrics(registry),
		registry:  registry,
		port:      port,
		startTime: time.Now(),
	}

	srv.setupMiddleware()
	srv.setupRoutes()
	return srv
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Post("/api/assign", s.handleAssign)
	s.router.Post("/api/convert", s.handleConvert)
	s.router.Post("/api/tests/{id}/decide", s.handleDecide)
	s.router.Get("/api/tests/{id}/results", s.handleResults)
	s.router.Get("/api/tests", s.handleListTests)

	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
}

// Start blocks serving HTTP until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.Int("port", s.port))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

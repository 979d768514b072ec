// Package api serves the dog catalog as a small JSON HTTP API.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	mw "github.com/tphakala/dogs-go/internal/api/middleware"
	"github.com/tphakala/dogs-go/internal/catalog"
	"github.com/tphakala/dogs-go/internal/errors"
	"github.com/tphakala/dogs-go/internal/logger"
	"github.com/tphakala/dogs-go/internal/observability"
)

const shutdownTimeout = 10 * time.Second

// Catalog is the data-access surface served by the API.
type Catalog interface {
	GetBreeds(ctx context.Context) ([]catalog.Breed, error)
	GetBreedImages(ctx context.Context, breed string, count int) ([]catalog.Image, error)
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Server is the HTTP server for the catalog API.
type Server struct {
	echo       *echo.Echo
	controller *Controller
	listen     string
	log        logger.Logger
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithMetrics exposes m on /metrics and records request metrics.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) {
		s.echo.Use(mw.Metrics(m.HTTP))
		s.echo.GET("/metrics", echo.WrapHandler(m.Handler()))
	}
}

// WithHealthCheck adds a named dependency check to /api/v1/health.
func WithHealthCheck(name string, check HealthCheck) ServerOption {
	return func(s *Server) {
		s.controller.checks[name] = check
	}
}

// NewServer builds the echo instance and registers all routes.
func NewServer(listen string, cat Catalog, log logger.Logger, opts ...ServerOption) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		listen: listen,
		log:    log,
		controller: &Controller{
			catalog: cat,
			log:     log,
			checks:  make(map[string]HealthCheck),
			started: time.Now(),
		},
	}

	e.Use(echomw.Recover())
	e.Use(mw.TraceID())
	e.Use(mw.NewRequestLoggerWithSkipper(log, func(c echo.Context) bool {
		return c.Path() == "/metrics"
	}))

	// options first so the metrics middleware wraps every route
	for _, opt := range opts {
		opt(s)
	}
	s.controller.register(e.Group("/api/v1"))
	return s
}

// Handler returns the server's http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server starting", logger.String("address", s.listen))
		errCh <- s.echo.Start(s.listen)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.New(err).
			Component("api").
			Category(errors.CategoryNetwork).
			Context("operation", "listen").
			Context("address", s.listen).
			Build()
	case <-ctx.Done():
	}

	s.log.Info("stopping http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return errors.New(err).
			Component("api").
			Context("operation", "shutdown").
			Build()
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Package server assembles the HTTP API around a resolver service
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/hollomancer/sbir-analytics-sub004/internal/middleware"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/routes/crosswalk"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/routes/health"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/routes/match"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/routes/reference"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/routes/review"
)

type Config struct {
	AppName           string
	Port              int
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	MaxHeaderBytes    int
	BodyLimit         string
	AllowOrigins      []string
	AllowMethods      []string
}

// Server is the HTTP API. It is a startup dependency: Start listens in the
// background and Stop shuts down gracefully.
type Server struct {
	cfg     Config
	echo    *echo.Echo
	http    *http.Server
	logger  ectologger.Logger
	checker *health.Checker
	errs    chan error
}

// New registers every route on a fresh echo instance. Handlers resolve their
// dependencies from the container containerID. metrics may be nil.
func New(cfg Config, containerID string, checker *health.Checker, metrics http.Handler, logger ectologger.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(echomiddleware.Recover())
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Container(containerID))
	e.Use(middleware.Logger(logger))
	if cfg.BodyLimit != "" {
		e.Use(echomiddleware.BodyLimit(cfg.BodyLimit))
	}
	if len(cfg.AllowOrigins) > 0 {
		e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
			AllowOrigins: cfg.AllowOrigins,
			AllowMethods: cfg.AllowMethods,
		}))
	}

	checker.RegisterRoutes(e)
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics))
	}

	api := e.Group("/api/v1")
	match.Register(api.Group("/match"))
	reference.Register(api.Group("/references"))
	crosswalk.Register(api.Group("/crosswalk"))
	review.Register(api.Group("/reviews"))

	return &Server{
		cfg:     cfg,
		echo:    e,
		logger:  logger,
		checker: checker,
		errs:    make(chan error, 1),
		http: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           e,
			ReadTimeout:       cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			MaxHeaderBytes:    cfg.MaxHeaderBytes,
		},
	}
}

// Echo returns the router, e.g. for tests
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Errors reports a listener that stopped on its own
func (s *Server) Errors() <-chan error {
	return s.errs
}

func (s *Server) GetName() string {
	return "http"
}

func (s *Server) DependsOn() []string {
	return nil
}

func (s *Server) Start(ctx context.Context) error {
	go func() {
		s.logger.WithField("addr", s.http.Addr).Info("HTTP server listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errs <- err
		}
	}()
	s.checker.SetReady(true)
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.checker.SetReady(false)
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

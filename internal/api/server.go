package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/bakkerme/relaypipe/internal/core"
	"github.com/bakkerme/relaypipe/internal/runner"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// StatusProvider is the read-only view of a running pipeline.
type StatusProvider interface {
	Status() runner.Status
	LastCycle() *core.Cycle
}

// Server exposes pipeline status over HTTP. It has no control endpoints.
type Server struct {
	status StatusProvider
	logger *slog.Logger
	echo   *echo.Echo
}

func NewServer(status StatusProvider, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug("status request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))

	server := &Server{
		status: status,
		logger: logger,
		echo:   e,
	}
	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	api := s.echo.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/status", s.handleStatus)
	api.GET("/cycles/last", s.handleLastCycle)
}

// Handler returns the underlying HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("status api listening", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "relaypipe",
	})
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.status.Status())
}

func (s *Server) handleLastCycle(c echo.Context) error {
	cycle := s.status.LastCycle()
	if cycle == nil {
		return c.JSON(http.StatusNotFound, map[string]interface{}{
			"message": "no cycle has finished yet",
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"cycle":  cycle,
		"counts": cycle.Counts(),
	})
}

// Package api hosts the service's HTTP surface: health, Prometheus metrics
// and the versioned operational API.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/truckwatch/fleet-alerts/internal/errors"
	"github.com/truckwatch/fleet-alerts/internal/logger"
)

// HealthCheck probes one dependency. A non-nil error marks the service
// unhealthy.
type HealthCheck func(ctx context.Context) error

// Routes mounts a versioned API on its group.
type Routes interface {
	Register(g *echo.Group)
}

// Config configures the HTTP server.
type Config struct {
	Listen string
	// Checks are run by /health, keyed by dependency name.
	Checks map[string]HealthCheck
}

// Server wraps the echo instance.
type Server struct {
	echo   *echo.Echo
	listen string
	checks map[string]HealthCheck
	log    logger.Logger
}

// NewServer creates the server and registers every route. gatherer backs
// /metrics; v1 is mounted under /api/v1 when non-nil.
func NewServer(cfg Config, gatherer prometheus.Gatherer, v1 Routes, log logger.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		listen: cfg.Listen,
		checks: cfg.Checks,
		log:    log.With(logger.String("component", "http")),
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/health" || c.Path() == "/metrics"
		},
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			fields := []logger.Field{
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.Int("status", v.Status),
				logger.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				s.log.Warn("request failed", append(fields, logger.Error(v.Error))...)
				return nil
			}
			s.log.Debug("request", fields...)
			return nil
		},
	}))

	e.GET("/health", s.health)
	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	if v1 != nil {
		v1.Register(e.Group("/api/v1"))
	}
	return s
}

func (s *Server) health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	return c.JSON(status, map[string]any{
		"status": overall,
		"checks": results,
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until Shutdown is called. A clean shutdown returns nil.
func (s *Server) Start() error {
	s.log.Info("http server listening", logger.String("listen", s.listen))
	if err := s.echo.Start(s.listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Newf("http server: %w", err).Component("http").Category(errors.CategoryNetwork).Build()
	}
	return nil
}

// Shutdown stops accepting connections and waits for active requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

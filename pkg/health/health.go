// Package health exposes liveness and Prometheus metrics over HTTP while a
// load run is active.
package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Ramsey-B/clover/pkg/database"
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult represents the result of a health check
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Response represents a health check response
type Response struct {
	Status     Status                 `json:"status"`
	Checks     map[string]CheckResult `json:"checks,omitempty"`
	ReportedAt time.Time              `json:"reported_at"`
}

// Server serves /health, /ready and /metrics while a run is in flight.
type Server struct {
	echo   *echo.Echo
	db     database.DB
	logger ectologger.Logger
}

// NewServer creates the listener but does not start it.
func NewServer(db database.DB, logger ectologger.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{echo: e, db: db, logger: logger}

	e.GET("/health", s.handleHealth)
	e.GET("/ready", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return s
}

// Start serves on the given port until Shutdown.
func (s *Server) Start(port int) {
	go func() {
		addr := fmt.Sprintf(":%d", port)
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Warnf("Metrics listener stopped")
		}
	}()
}

// Shutdown stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	checks := map[string]CheckResult{}
	status := StatusHealthy
	code := http.StatusOK

	start := time.Now()
	if err := s.db.PingContext(ctx); err != nil {
		checks["database"] = CheckResult{Status: StatusUnhealthy, Message: err.Error()}
		status = StatusUnhealthy
		code = http.StatusServiceUnavailable
	} else {
		checks["database"] = CheckResult{Status: StatusHealthy, Latency: time.Since(start).String()}
	}

	return c.JSON(code, Response{
		Status:     status,
		Checks:     checks,
		ReportedAt: time.Now().UTC(),
	})
}

package health

import (
	"context"
	"errors"
	"net/http"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
)

// Server exposes /metrics and the health routes
type Server struct {
	echo   *echo.Echo
	addr   string
	logger ectologger.Logger
}

// NewServer builds the ops server. serviceName labels the otel spans.
func NewServer(addr, serviceName string, checker *Checker, logger ectologger.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(otelecho.Middleware(serviceName))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	checker.RegisterRoutes(e)

	return &Server{echo: e, addr: addr, logger: logger}
}

// Handler returns the underlying http handler
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves in the background until Shutdown
func (s *Server) Start() {
	go func() {
		s.logger.Infof("Ops server listening on %s", s.addr)
		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("Ops server stopped")
		}
	}()
}

// Shutdown stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

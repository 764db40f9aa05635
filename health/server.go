package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger checks a dependency, typically the store.
type Pinger interface {
	Ping(ctx context.Context) error
}

type healthResponse struct {
	State string `json:"status"`
	*Status
	Store string `json:"store,omitempty"`
}

// Server exposes health and Prometheus metrics over HTTP.
type Server struct {
	echo    *echo.Echo
	monitor *Monitor
	store   Pinger
	addr    string
	logger  *slog.Logger
}

// NewServer builds the HTTP server for port. store may be nil.
func NewServer(port int, monitor *Monitor, store Pinger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10,
	}))
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 30 * time.Second
	e.Server.IdleTimeout = 60 * time.Second

	s := &Server{
		echo:    e,
		monitor: monitor,
		store:   store,
		addr:    fmt.Sprintf(":%d", port),
		logger:  logger.With("component", "http"),
	}
	e.GET("/api/health", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	return s
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) handleHealth(c echo.Context) error {
	st := s.monitor.Current()
	resp := healthResponse{State: "ok", Status: st}
	code := http.StatusOK
	if !st.Healthy {
		resp.State = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	if s.store != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			resp.State = "unhealthy"
			resp.Store = err.Error()
			code = http.StatusServiceUnavailable
		} else {
			resp.Store = "ok"
		}
	}
	return c.JSON(code, resp)
}

// Start serves in the background.
func (s *Server) Start() {
	go func() {
		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", "error", err)
		}
	}()
	s.logger.Info("server listening", "addr", s.addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

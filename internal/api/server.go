// Package api assembles the local HTTP surface consumed by UI clients.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/lusk/luskd/internal/config"
	"github.com/lusk/luskd/internal/health"
	"github.com/lusk/luskd/internal/history"
	"github.com/lusk/luskd/internal/logger"
	"github.com/lusk/luskd/internal/request"
	"github.com/lusk/luskd/internal/websocket"
)

// Server is the local HTTP API server.
type Server struct {
	echo      *echo.Echo
	cfg       config.ServerConfig
	logger    zerolog.Logger
	handlers  *request.Handlers
	history   *history.Handlers
	monitor   *health.Monitor
	hub       *websocket.Hub
	logStream *logger.StreamWriter
}

// New creates the API server and registers all routes.
func New(cfg config.ServerConfig, log zerolog.Logger, handlers *request.Handlers, historyHandlers *history.Handlers, monitor *health.Monitor, hub *websocket.Hub, logStream *logger.StreamWriter) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:      e,
		cfg:       cfg,
		logger:    log.With().Str("component", "api").Logger(),
		handlers:  handlers,
		history:   historyHandlers,
		monitor:   monitor,
		hub:       hub,
		logStream: logStream,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.health)
	s.echo.GET("/ws", s.hub.HandleWS)

	v1 := s.echo.Group("/api/v1")
	s.handlers.RegisterRoutes(v1)
	s.history.RegisterRoutes(v1)
	v1.GET("/health/server", s.monitor.HandleStatus)
	v1.GET("/logs/recent", s.recentLogs)
}

// Start runs the server until Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.logger.Info().Str("addr", addr).Msg("starting API server")
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server failed: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}

// health reports liveness.
// GET /health
func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": config.Version,
	})
}

// recentLogs returns the buffered recent log entries.
// GET /api/v1/logs/recent
func (s *Server) recentLogs(c echo.Context) error {
	return c.JSON(http.StatusOK, s.logStream.Recent())
}

// PiBear - LINE companion bot with memory and scheduled pushes
// License: MIT
//
// Copyright (c) 2026 PiBear contributors

package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/dotsetgreg/pibear/pkg/logger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type Options struct {
	Host     string
	Port     int
	ImageDir string
	// Webhook handles POST /callback. A nil webhook answers 503.
	Webhook http.Handler
	// Ready reports whether background services have started.
	Ready func() bool
}

// Server is the public HTTP surface: the LINE callback, static images and
// health checks.
type Server struct {
	echo *echo.Echo
	addr string
	opts Options
}

func NewServer(opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.DebugCF("gateway", "Request handled", map[string]interface{}{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency_ms": v.Latency.Milliseconds(),
				"request_id": v.RequestID,
			})
			return nil
		},
	}))

	s := &Server{
		echo: e,
		addr: net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
		opts: opts,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.echo.POST("/callback", s.handleCallback)
	s.echo.GET("/Pic/:filename", s.handleImage)
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/ready", s.handleReady)
}

func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) Addr() string { return s.addr }

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	logger.InfoCF("gateway", "HTTP server listening", map[string]interface{}{"addr": s.addr})
	if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleCallback(c echo.Context) error {
	if s.opts.Webhook == nil {
		return c.String(http.StatusServiceUnavailable, "LINE channel disabled")
	}
	s.opts.Webhook.ServeHTTP(c.Response(), c.Request())
	return nil
}

// handleImage serves files from the image directory. Only the base name of
// the requested path is used.
func (s *Server) handleImage(c echo.Context) error {
	name := filepath.Base(c.Param("filename"))
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return echo.ErrNotFound
	}
	return c.File(filepath.Join(s.opts.ImageDir, name))
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(c echo.Context) error {
	if s.opts.Ready != nil && !s.opts.Ready() {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "starting"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
}

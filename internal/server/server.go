// Package server provides the HTTP API for docqd.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/docqd/internal/agent"
	"github.com/fyrsmithlabs/docqd/internal/ingest"
	"github.com/fyrsmithlabs/docqd/internal/notes"
	"github.com/fyrsmithlabs/docqd/internal/vectorstore"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// Config holds HTTP server configuration.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// Deps are the collaborators the API surfaces.
type Deps struct {
	Agent     *agent.Orchestrator
	Ingest    *ingest.Service
	Notes     *notes.Synthesizer
	Extractor ingest.PageExtractor
	Index     vectorstore.Index
}

// Server exposes the chat, ingest, and notes APIs over HTTP.
type Server struct {
	echo    *echo.Echo
	deps    Deps
	metrics *Metrics
	logger  *zap.Logger
	config  Config
}

// NewServer creates the HTTP server.
func NewServer(deps Deps, cfg Config, logger *zap.Logger) (*Server, error) {
	if deps.Agent == nil {
		return nil, fmt.Errorf("agent orchestrator is required")
	}
	if deps.Ingest == nil {
		return nil, fmt.Errorf("ingest service is required")
	}
	if deps.Notes == nil {
		return nil, fmt.Errorf("notes synthesizer is required")
	}
	if deps.Index == nil {
		return nil, fmt.Errorf("index is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	metrics := NewMetrics(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(metrics.Middleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", responseStatus(c, err)),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:    e,
		deps:    deps,
		metrics: metrics,
		logger:  logger,
		config:  cfg,
	}
	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))

	s.echo.POST("/chat", s.handleChat)
	s.echo.POST("/chat/stream", s.handleChatStream)
	s.echo.POST("/ingest", s.handleIngest)
	s.echo.POST("/notes", s.handleNotes)
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info("starting http server", zap.String("addr", s.config.Addr))
	return s.echo.Start(s.config.Addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	return s.echo.Shutdown(ctx)
}

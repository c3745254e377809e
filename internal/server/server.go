// Package server serves the ranked process table over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ngenohkevin/hivetop/config"
	"github.com/ngenohkevin/hivetop/internal/monitor"
)

// Server represents the HTTP server. It is a monitor presenter: every frame
// becomes the current table and is pushed to event stream clients.
type Server struct {
	cfg        *config.Config
	router     *gin.Engine
	handlers   *Handlers
	limiter    *RateLimiter
	hub        *hub
	logger     *slog.Logger
	httpServer *http.Server
}

// New creates a new server instance. metrics, when not nil, is mounted on /metrics.
func New(cfg *config.Config, metrics http.Handler, logger *slog.Logger) *Server {
	// Set Gin mode based on log level
	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "server.Server")

	h := newHub()
	s := &Server{
		cfg:      cfg,
		router:   gin.New(),
		handlers: NewHandlers(h, metrics),
		hub:      h,
		logger:   logger,
	}
	if cfg.HTTP.RateLimitRPS > 0 {
		s.limiter = NewRateLimiter(cfg.HTTP.RateLimitRPS)
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(RecoveryMiddleware(s.logger))
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware(s.cfg.HTTP.AllowedOrigins))
	if s.limiter != nil {
		s.router.Use(RateLimitMiddleware(s.limiter))
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handlers.HealthCheck)
	s.router.GET("/metrics", s.handlers.Metrics)

	api := s.router.Group("/api")
	{
		api.GET("/processes", s.handlers.ListProcesses)
		api.GET("/events", s.handlers.StreamEvents)
	}
}

// Present publishes a frame
func (s *Server) Present(_ context.Context, f monitor.Frame) error {
	s.hub.publish(f)
	return nil
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.HTTP.ReadTimeout,
		WriteTimeout: s.cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.cfg.Addr())
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.hub.close()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down HTTP server")
	// event streams only end when their subscription closes
	s.hub.close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the Gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

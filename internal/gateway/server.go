package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ensembleai/agentgate/internal/config"
	"github.com/ensembleai/agentgate/internal/middleware"
	"github.com/ensembleai/agentgate/internal/observability"
)

// ginModeOnce ensures gin.SetMode is called once across server instances.
var ginModeOnce sync.Once

// Pipeline handles requests that fall through to the gateway. The gateway
// satisfies it directly; the command wraps it for config hot reload.
type Pipeline interface {
	Handle(c *gin.Context)
}

// Server is the HTTP shell around the gateway pipeline. Health and metrics
// endpoints are served directly; everything else runs through the pipeline.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	pipeline   Pipeline
	logger     observability.Logger
	cfg        config.ServerConfig

	mu      sync.Mutex
	running bool
}

// NewServer creates a server hosting the given pipeline.
func NewServer(cfg *config.Config, gw Pipeline, logger observability.Logger) *Server {
	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	engine := gin.New()
	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(logger),
		middleware.Logging(logger),
	)
	if cfg.CORS.Enabled {
		cc := middleware.DefaultCORSConfig()
		if len(cfg.CORS.AllowedOrigins) > 0 {
			cc.AllowedOrigins = cfg.CORS.AllowedOrigins
		}
		if len(cfg.CORS.AllowedMethods) > 0 {
			cc.AllowedMethods = cfg.CORS.AllowedMethods
		}
		if len(cfg.CORS.AllowedHeaders) > 0 {
			cc.AllowedHeaders = cfg.CORS.AllowedHeaders
		}
		if cfg.CORS.MaxAge > 0 {
			cc.MaxAge = cfg.CORS.MaxAge
		}
		engine.Use(middleware.CORS(cc))
	}

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/readyz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	engine.NoRoute(gw.Handle)

	return &Server{
		engine:   engine,
		pipeline: gw,
		logger:   logger,
		cfg:      cfg.Server,
	}
}

// Engine returns the underlying gin engine. Intended for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Start runs the server until it is stopped or fails. It blocks.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}

	s.httpServer = &http.Server{
		Addr:         s.cfg.Address,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("starting HTTP server",
		observability.String("address", s.cfg.Address))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.logger.Info("stopping HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return nil
}

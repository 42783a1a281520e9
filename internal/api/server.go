// Package api serves the relay's OpenAI-compatible HTTP surface: chat
// completions with provider failover, the static model listing, and a
// health probe. Rate limiting and quota gating happen here, before any
// provider attempt.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nghyane/llm-relay/internal/config"
	"github.com/nghyane/llm-relay/internal/gateway"
	"github.com/nghyane/llm-relay/internal/logging"
	"github.com/nghyane/llm-relay/internal/quota"
	"github.com/nghyane/llm-relay/internal/ratelimit"
	"github.com/nghyane/llm-relay/internal/registry"
)

// Server is the relay HTTP server.
type Server struct {
	engine       *gin.Engine
	server       *http.Server
	cfg          *config.Config
	limiter      *ratelimit.Limiter
	gate         quota.Gate
	orchestrator *gateway.Orchestrator
	creds        registry.CredentialSource
}

// NewServer wires the HTTP surface over its collaborators. All routing and
// middleware setup happens here; Start only binds the listener.
func NewServer(cfg *config.Config, limiter *ratelimit.Limiter, gate quota.Gate, orchestrator *gateway.Orchestrator, creds registry.CredentialSource) *Server {
	engine := gin.New()
	engine.Use(logging.GinLogger(), logging.GinRecovery(), corsMiddleware(cfg.AllowedOrigins))

	s := &Server{
		engine:       engine,
		cfg:          cfg,
		limiter:      limiter,
		gate:         gate,
		orchestrator: orchestrator,
		creds:        creds,
	}
	s.registerRoutes()

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: engine,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/", s.handleHealth)
	s.engine.GET("/v1/models", s.handleModels)
	s.engine.POST("/v1/chat/completions", s.handleChatCompletion)
}

// Handler exposes the routing tree, used by tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	logging.Infof("listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"providers": len(registry.AvailableProviders(s.creds)),
	})
}

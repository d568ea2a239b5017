// Package api exposes the bot's minimal HTTP+WS surface: a liveness probe,
// a diagnostics snapshot, a bearer-token mint endpoint, and the BotEvent
// WebSocket feed. There is no dashboard, no REST trading surface, and no
// multi-tenant auth — a single operator holds one admin secret.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"kraken-autotrade/config"
	"kraken-autotrade/internal/database"
	"kraken-autotrade/internal/events"
	"kraken-autotrade/internal/logging"
	"kraken-autotrade/internal/wsauth"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// DiagnosticsProvider supplies the per-pair scan snapshot and collaborator
// health rendered by GET /diagnostics. The trading engine implements this;
// api depends only on the interface to avoid an import cycle.
type DiagnosticsProvider interface {
	Diagnostics(ctx context.Context) map[string]interface{}
}

// Server is the bot's HTTP+WS surface. One instance is constructed in
// main.go and injected with its collaborators, per SPEC_FULL.md §10's
// no-package-level-singletons note.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     config.ServerConfig
	repo       *database.Repository
	hub        *wsHub
	wsAuth     *wsauth.Manager
	diag       DiagnosticsProvider
	log        *logging.Logger
	startedAt  time.Time
}

// NewServer wires the gin router and the WebSocket hub, subscribing the hub
// to bus so every published BotEvent fans out to connected clients.
func NewServer(cfg config.ServerConfig, repo *database.Repository, bus *events.Bus, wsAuth *wsauth.Manager, diag DiagnosticsProvider, log *logging.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	if cfg.AllowedOrigins == "" || cfg.AllowedOrigins == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = []string{cfg.AllowedOrigins}
	}
	router.Use(cors.New(corsCfg))

	s := &Server{
		router:    router,
		config:    cfg,
		repo:      repo,
		hub:       newWSHub(),
		wsAuth:    wsAuth,
		diag:      diag,
		log:       log.WithComponent("api"),
		startedAt: time.Now(),
	}

	go s.hub.run()
	go s.hub.subscribe(bus)

	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.GET("/healthz", s.handleHealthz)
	s.router.GET("/diagnostics", s.handleDiagnostics)
	s.router.POST("/auth/token", s.handleMintToken)
	s.router.GET("/ws/events", s.handleWebSocket)
}

// Start begins serving HTTP on config.Host:config.Port. It blocks until the
// server stops; callers run it in a goroutine and use Shutdown to stop it.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
	}

	s.log.Info("api server listening", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully drains in-flight requests and closes WS connections.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, time.Duration(s.config.ShutdownTimeout)*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) handleHealthz(c *gin.Context) {
	if err := s.repo.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "uptime_seconds": int(time.Since(s.startedAt).Seconds())})
}

func (s *Server) handleDiagnostics(c *gin.Context) {
	base := gin.H{"ws_clients": s.hub.clientCount()}
	if s.diag == nil {
		base["engine"] = "not ready"
		c.JSON(http.StatusOK, base)
		return
	}
	for k, v := range s.diag.Diagnostics(c.Request.Context()) {
		base[k] = v
	}
	c.JSON(http.StatusOK, base)
}

type mintTokenRequest struct {
	Secret string `json:"secret" binding:"required"`
}

// handleMintToken exchanges the operator's admin secret for a short-lived
// WS bearer token (spec.md §6).
func (s *Server) handleMintToken(c *gin.Context) {
	var req mintTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "secret is required"})
		return
	}

	if err := s.wsAuth.VerifyAdminSecret(req.Secret); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid admin secret"})
		return
	}

	token, expiresAt, err := s.wsAuth.MintToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mint token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "expires_at": expiresAt})
}

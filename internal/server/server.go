// Package server exposes the recommendation engine over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	outingerrors "outing/internal/errors"
	"outing/internal/logging"
	"outing/internal/orchestrator"
)

// EngineFactory builds a fresh session-scoped engine. Each session gets its
// own orchestrator so rejection lists and preference signals stay isolated.
type EngineFactory func() *orchestrator.Orchestrator

// Config controls the HTTP listener.
type Config struct {
	Addr         string
	Debug        bool
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns the standard listener settings.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		EnableCORS:   true,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}
}

// Server serves recommendation runs and session management endpoints.
type Server struct {
	factory    EngineFactory
	runContext orchestrator.RunContext
	logger     *logging.Logger

	engine     *gin.Engine
	httpServer *http.Server
	startTime  time.Time

	mu       sync.RWMutex
	sessions map[string]*orchestrator.Orchestrator
}

// New builds a Server. The factory must be non-nil.
func New(factory EngineFactory, rc orchestrator.RunContext, cfg Config, logger *logging.Logger) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	if cfg.EnableCORS {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
		engine.Use(cors.New(corsConfig))
	}

	s := &Server{
		factory:    factory,
		runContext: rc,
		logger:     logging.OrNop(logger),
		engine:     engine,
		startTime:  time.Now(),
		sessions:   make(map[string]*orchestrator.Orchestrator),
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	s.setupRoutes()
	return s
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.engine.Group("/v1")
	v1.POST("/recommend", s.handleRecommend)

	sessions := v1.Group("/sessions")
	{
		sessions.POST("", s.handleCreateSession)
		sessions.DELETE("/:id", s.handleDeleteSession)
		sessions.POST("/:id/recommend", s.handleSessionRecommend)
		sessions.POST("/:id/reject", s.handleReject)
		sessions.POST("/:id/preferences", s.handlePreference)
	}
}

// Start blocks serving HTTP until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server stopping")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	})
}

type recommendRequest struct {
	Prompt string `json:"prompt" binding:"required"`
}

type rejectRequest struct {
	VenueID string `json:"venue_id" binding:"required"`
}

type preferenceRequest struct {
	Key   string `json:"key" binding:"required"`
	Value any    `json:"value"`
}

// handleRecommend runs one anonymous recommendation with no session state.
func (s *Server) handleRecommend(c *gin.Context) {
	var req recommendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s.respondWithRun(c, s.factory(), req.Prompt)
}

func (s *Server) handleCreateSession(c *gin.Context) {
	id := uuid.NewString()
	s.mu.Lock()
	s.sessions[id] = s.factory()
	s.mu.Unlock()

	s.logger.Info("session created", "session_id", id)
	c.JSON(http.StatusCreated, gin.H{"session_id": id})
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	id := c.Param("id")
	s.mu.Lock()
	_, found := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !found {
		sessionNotFound(c, id)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleSessionRecommend(c *gin.Context) {
	engine, ok := s.session(c)
	if !ok {
		return
	}
	var req recommendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s.respondWithRun(c, engine, req.Prompt)
}

func (s *Server) handleReject(c *gin.Context) {
	engine, ok := s.session(c)
	if !ok {
		return
	}
	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	engine.RejectOption(req.VenueID)
	c.JSON(http.StatusOK, gin.H{"rejected_options": engine.RejectedOptions()})
}

func (s *Server) handlePreference(c *gin.Context) {
	engine, ok := s.session(c)
	if !ok {
		return
	}
	var req preferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	engine.SetPreferenceSignal(req.Key, req.Value)
	c.Status(http.StatusNoContent)
}

func (s *Server) session(c *gin.Context) (*orchestrator.Orchestrator, bool) {
	id := c.Param("id")
	s.mu.RLock()
	engine, found := s.sessions[id]
	s.mu.RUnlock()
	if !found {
		sessionNotFound(c, id)
		return nil, false
	}
	return engine, true
}

func (s *Server) respondWithRun(c *gin.Context, engine *orchestrator.Orchestrator, prompt string) {
	result := engine.Run(c.Request.Context(), prompt, s.runContext)
	c.JSON(statusFor(result), result)
}

// statusFor maps a run outcome to an HTTP status. Caller mistakes are 400,
// upstream trouble is 502, everything else that failed is 500. A run that
// completed, even with no venues to offer, is 200.
func statusFor(result *orchestrator.Result) int {
	if result.Status != orchestrator.StatusError {
		return http.StatusOK
	}
	if result.Err == nil {
		return http.StatusInternalServerError
	}
	switch result.Err.Code {
	case outingerrors.CodeInvalidInput, outingerrors.CodeValidation:
		return http.StatusBadRequest
	case outingerrors.CodeAPITimeout, outingerrors.CodeAPIConnection,
		outingerrors.CodeAPIRateLimit, outingerrors.CodeAPIAuth,
		outingerrors.CodeAPIServer, outingerrors.CodeAPIBadResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error": outingerrors.NewErrorResponse(outingerrors.CodeInvalidInput, err.Error(), ""),
	})
}

func sessionNotFound(c *gin.Context, id string) {
	c.JSON(http.StatusNotFound, gin.H{
		"error": outingerrors.NewErrorResponse(
			outingerrors.CodeInvalidInput, fmt.Sprintf("unknown session %q", id), ""),
	})
}

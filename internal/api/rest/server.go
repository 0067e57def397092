package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/KevinKickass/OpenControllerCore/internal/api/websocket"
	"github.com/KevinKickass/OpenControllerCore/internal/auth"
	"github.com/KevinKickass/OpenControllerCore/internal/config"
	"github.com/KevinKickass/OpenControllerCore/internal/interfaces"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	router        *gin.Engine
	controller    interfaces.Controller
	logger        *zap.Logger
	server        *http.Server
	wsHub         *websocket.Hub
	authenticator *auth.Authenticator
	startedAt     time.Time
}

func NewServer(cfg *config.Config, controller interfaces.Controller, authenticator *auth.Authenticator, wsHub *websocket.Hub, logger *zap.Logger) *Server {
	if cfg.Log.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		router:        gin.New(),
		controller:    controller,
		logger:        logger,
		wsHub:         wsHub,
		authenticator: authenticator,
		startedAt:     time.Now(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("Starting REST API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("REST server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(gin.Recovery())
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware())

	// Public routes (no auth required)
	s.router.GET("/health", s.healthCheck)

	v1 := s.router.Group("/api/v1")
	{
		// ==================== SYSTEM (OPERATOR+) ====================
		system := v1.Group("/system")
		system.Use(s.authenticator.AuthMiddleware())
		system.Use(auth.RequirePermission(auth.PermOperator))
		{
			system.GET("/status", s.getSystemStatus)
		}

		// ==================== CONFIG ====================
		cfg := v1.Group("/config")
		cfg.Use(s.authenticator.AuthMiddleware())
		{
			cfg.GET("/:block/:section/:index", auth.RequirePermission(auth.PermOperator), s.getConfig)
			cfg.PUT("/:block/:section/:index", auth.RequirePermission(auth.PermTechnician), s.setConfig)
		}

		// ==================== BACKUP / RESTORE / SYSEX (ADMIN) ====================
		admin := v1.Group("")
		admin.Use(s.authenticator.AuthMiddleware())
		admin.Use(auth.RequirePermission(auth.PermAdmin))
		{
			admin.POST("/backup", s.backup)
			admin.POST("/restore", s.restore)
			admin.POST("/sysex", s.sysEx)
		}

		// ==================== VIRTUAL INPUTS (TECHNICIAN+) ====================
		inputs := v1.Group("/inputs")
		inputs.Use(s.authenticator.AuthMiddleware())
		inputs.Use(auth.RequirePermission(auth.PermTechnician))
		{
			inputs.POST("/analog/:index", s.setAnalogInput)
			inputs.POST("/digital/:index", s.setDigitalInput)
		}

		// ==================== WEBSOCKET (PUBLIC - Auth via first message) ====================
		ws := v1.Group("/ws")
		{
			ws.GET("/live", s.wsLiveConnection)
		}
	}
}

// WebSocket handlers
func (s *Server) wsLiveConnection(c *gin.Context) {
	websocket.ServeWs(s.wsHub, c.Writer, c.Request)
}

// Health check (public)
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":            "ok",
		"timestamp":         time.Now().Unix(),
		"uptime_seconds":    int64(time.Since(s.startedAt).Seconds()),
		"connected_clients": s.wsHub.GetClientCount(),
	})
}

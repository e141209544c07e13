package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/quivio/attempt-engine/internal/auth"
	"github.com/quivio/attempt-engine/internal/config"
	"github.com/quivio/attempt-engine/internal/handler"
	"github.com/quivio/attempt-engine/internal/middleware"
	"github.com/quivio/attempt-engine/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Attempt *handler.AttemptHandler
	WS      *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	validator *auth.Validator,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── 1. Attempt Group (JWT) ────────────────────────────────────────
	attemptAPI := router.Group("/api/v1/attempts")
	attemptAPI.Use(middleware.RequireJWT(validator))
	{
		attemptAPI.GET("/history", handlers.Attempt.History)

		attemptAPI.POST("/:assessment_id/open", handlers.Attempt.Open)
		attemptAPI.GET("/:assessment_id/state", handlers.Attempt.GetState)
		attemptAPI.POST("/:assessment_id/answers", handlers.Attempt.RecordAnswer)
		attemptAPI.POST("/:assessment_id/position", handlers.Attempt.Advance)
		attemptAPI.POST("/:assessment_id/submit", handlers.Attempt.Submit)
		attemptAPI.POST("/:assessment_id/exit", handlers.Attempt.Exit)
		attemptAPI.POST("/:assessment_id/retry", handlers.Attempt.Retry)
	}

	// ─── 2. WebSocket Group (WS Auth) ──────────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireWSAuth(validator))
	{
		ws.GET("/attempts/:assessment_id/stream", handlers.WS.AttemptStream)
	}

	return router
}

package routes

import (
	"time"

	"schedulebot/handlers"
	"schedulebot/middleware"
	"schedulebot/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RegisterWebhookRoutes registers the messaging webhook.
func RegisterWebhookRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/whatsapp")
	{
		api.Use(middleware.TwilioSignatureMiddleware(hb.TwilioAuthToken, hb.WebhookPublicURL))
		api.Use(middleware.RateLimitMiddleware(hb.Limiter))
		api.POST("/webhook", hb.WhatsAppWebhookHandler)
	}
}

// RegisterConsoleRoutes registers the JSON console, when enabled.
func RegisterConsoleRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	if !hb.ConsoleEnabled {
		return
	}
	api := r.Group("/api/console")
	{
		api.Use(middleware.RateLimitMiddleware(hb.Limiter))
		api.POST("/message", hb.ConsoleMessageHandler)
	}
}

// RegisterToolsRoutes registers the voice-agent tools endpoint.
func RegisterToolsRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/tools")
	{
		api.Use(middleware.JWTAuthMiddleware(hb.JWTSecret))
		api.POST("/webhook", hb.ToolsWebhookHandler)
	}
}

// RegisterHealthRoute registers health and metrics endpoints.
func RegisterHealthRoute(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.GET("/health", hb.HealthHandler)
	r.GET("/metrics", gin.WrapH(utils.MetricsHandler()))
}

// RegisterRoutes centralizes registration of all endpoints and middleware.
func RegisterRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	RegisterWebhookRoutes(r, hb)
	RegisterConsoleRoutes(r, hb)
	RegisterToolsRoutes(r, hb)
	RegisterHealthRoute(r, hb)
}

package handlers

import (
	"schedulebot/middleware"

	"github.com/gin-gonic/gin"
)

// HandlerBundle groups all endpoint handlers and the settings routes need to
// guard them.
type HandlerBundle struct {
	JWTSecret        string
	TwilioAuthToken  string
	WebhookPublicURL string
	ConsoleEnabled   bool
	Limiter          *middleware.RateLimiter

	// Conversation endpoints
	WhatsAppWebhookHandler gin.HandlerFunc
	ConsoleMessageHandler  gin.HandlerFunc

	// Voice-agent tools
	ToolsWebhookHandler gin.HandlerFunc

	HealthHandler gin.HandlerFunc
}

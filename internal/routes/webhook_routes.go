package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/clinova/backend/internal/handlers"
	"github.com/clinova/backend/internal/middleware"
)

// SetupWebhookRoutes configures routes for payment-provider webhook
// deliveries. These carry normalized events; the edge verifies provider
// signatures before forwarding.
func SetupWebhookRoutes(router *gin.Engine, webhookHandler *handlers.WebhookHandler, rateLimiter *middleware.RateLimiter) {
	webhookGroup := router.Group("/api/v1/webhooks")
	webhookGroup.Use(rateLimiter.WebhookRateLimiterMiddleware())
	{
		webhookGroup.POST("/stripe/payment", webhookHandler.PaymentWebhook)
		webhookGroup.POST("/stripe/refund", webhookHandler.RefundWebhook)
	}
}

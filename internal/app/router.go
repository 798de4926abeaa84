// internal/app/router.go
package app

import (
	subscriptionHandler "subwatch-service/internal/handlers/subscription"
	webhookHandler "subwatch-service/internal/handlers/webhook"
	wsHandler "subwatch-service/internal/handlers/websocket"

	"github.com/gin-gonic/gin"
)

type Handlers struct {
	WebhookHandler      *webhookHandler.WebhookHandler
	SubscriptionHandler *subscriptionHandler.SubscriptionHandler
	WSHandler           *wsHandler.WebSocketHandler
}

func SetupRouter(r *gin.Engine, h *Handlers) {
	// ==================== Health Check ====================
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "version": "1.0.0"})
	})

	// ==================== Telegram Webhook ====================
	r.POST("/webhook/telegram", h.WebhookHandler.HandleUpdate)

	// ==================== Operator WebSocket ====================
	r.GET("/ws/alerts", h.WSHandler.HandleConnection)

	// ==================== Operator API ====================
	api := r.Group("/api/v1")
	{
		owners := api.Group("/owners")
		owners.GET("/:id/subscriptions", h.SubscriptionHandler.ListSubscriptions)
		owners.GET("/:id/stats", h.SubscriptionHandler.GetStats)
	}
}

// internal/handlers/subscription/subscription_handler.go
package subscription

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"subwatch-service/internal/pkg/response"
	subsvc "subwatch-service/internal/service/subscription"
)

// SubscriptionHandler exposes read-only owner views for the operator API.
type SubscriptionHandler struct {
	service *subsvc.SubscriptionService
	logger  *zap.Logger
}

func NewSubscriptionHandler(service *subsvc.SubscriptionService, logger *zap.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{service: service, logger: logger}
}

// ListSubscriptions returns an owner's active subscriptions.
func (h *SubscriptionHandler) ListSubscriptions(c *gin.Context) {
	ownerID, ok := h.ownerID(c)
	if !ok {
		return
	}

	subs, err := h.service.List(c.Request.Context(), ownerID)
	if err != nil {
		h.logger.Error("failed to list subscriptions", zap.Int64("owner_id", ownerID), zap.Error(err))
		response.FromError(c, "failed to list subscriptions", err)
		return
	}
	response.Success(c, http.StatusOK, "subscriptions retrieved", subs)
}

// GetStats returns an owner's per-currency monthly spend summary.
func (h *SubscriptionHandler) GetStats(c *gin.Context) {
	ownerID, ok := h.ownerID(c)
	if !ok {
		return
	}

	stats, err := h.service.Stats(c.Request.Context(), ownerID)
	if err != nil {
		h.logger.Error("failed to compute stats", zap.Int64("owner_id", ownerID), zap.Error(err))
		response.FromError(c, "failed to compute stats", err)
		return
	}
	response.Success(c, http.StatusOK, "stats retrieved", stats)
}

func (h *SubscriptionHandler) ownerID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.ValidationError(c, "invalid owner id", err)
		return 0, false
	}
	return id, true
}

// internal/handlers/websocket/websocket.go
package websocket

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"subwatch-service/internal/pkg/response"
	ws "subwatch-service/internal/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Operator dashboards connect from anywhere; access is gated by
		// the shared token instead.
		return true
	},
}

// WebSocketHandler upgrades operator connections onto the alert hub.
type WebSocketHandler struct {
	hub    *ws.Hub
	token  string
	logger *zap.Logger
}

func NewWebSocketHandler(hub *ws.Hub, token string, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, token: token, logger: logger}
}

// HandleConnection authenticates via the operator token (query param or
// bearer header) and streams alert events.
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	if h.token == "" {
		response.Error(c, http.StatusServiceUnavailable, "operator stream disabled", nil)
		return
	}
	if subtle.ConstantTimeCompare([]byte(h.extractToken(c)), []byte(h.token)) != 1 {
		h.logger.Warn("websocket auth failed", zap.String("ip", c.ClientIP()))
		response.Unauthorized(c, "invalid operator token")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	client := ws.NewClient(h.hub, conn)
	client.Serve()
}

func (h *WebSocketHandler) extractToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	const prefix = "Bearer "
	auth := c.GetHeader("Authorization")
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}

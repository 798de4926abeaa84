// internal/websocket/hub.go
package websocket

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"subwatch-service/internal/domain/alert"
)

// Hub fans out operator alerts to connected operator consoles. It is the
// scheduler's AlertSink: Publish never blocks the caller even when no
// operator is connected.
type Hub struct {
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan alert.Event

	// done is closed when Run exits; clients select against it so a
	// connection dropping during shutdown never blocks on the registry.
	done chan struct{}

	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan alert.Event, 256),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Publish queues an alert for all connected operators. Drops the event
// when the queue is saturated; the alert is still in the logs.
func (h *Hub) Publish(event alert.Event) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("alert broadcast queue full, dropping event",
			zap.String("subscription_id", event.SubscriptionID))
	}
}

// Run owns the client registry. Call it in its own goroutine; it exits
// when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				client.close()
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			h.logger.Info("operator console connected", zap.String("remote", client.remoteAddr()))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
				h.logger.Info("operator console disconnected", zap.String("remote", client.remoteAddr()))
			}

		case event := <-h.broadcast:
			payload, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("failed to marshal alert event", zap.Error(err))
				continue
			}
			for client := range h.clients {
				select {
				case client.send <- payload:
				default:
					// Slow consumer: drop it rather than stall the hub.
					delete(h.clients, client)
					client.close()
				}
			}
		}
	}
}

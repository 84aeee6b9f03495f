package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"deep-research-be/internal/pkg/logger"
	"deep-research-be/pkg/events"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type Hub struct {
	// Registered clients map: SessionID -> List of Clients (multiple
	// observers may watch the same research session)
	clients map[uuid.UUID][]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Lock for safe map access
	mu sync.RWMutex

	// Redis connection for cross-instance communication
	rdb *redis.Client

	// Dedicated Logger
	logger logger.ILogger
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[uuid.UUID][]*Client),
		rdb:        rdb,
		logger:     log,
	}
}

func (h *Hub) Run() {
	// Start Redis Subscriber if Redis is available
	if h.rdb != nil {
		go h.subscribeToRedis()
	}

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.SessionID] = append(h.clients[client.SessionID], client)
			h.mu.Unlock()
			h.logger.Info("Hub", "Observer registered", map[string]interface{}{"session_id": client.SessionID})

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.SessionID]; ok {
				for i, c := range clients {
					if c == client {
						// Remove from slice
						h.clients[client.SessionID] = append(clients[:i], clients[i+1:]...)
						close(client.Send)
						break
					}
				}
				if len(h.clients[client.SessionID]) == 0 {
					delete(h.clients, client.SessionID)
					h.logger.Info("Hub", "Session has no observers left", map[string]interface{}{"session_id": client.SessionID})
				}
			}
			h.mu.Unlock()
		}
	}
}

// SendEvent delivers a progress event to every observer of the session, both
// on this instance and, via Redis, on others.
func (h *Hub) SendEvent(sessionID uuid.UUID, event events.ProgressEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Hub", "Failed to serialize progress event", map[string]interface{}{
			"session_id": sessionID,
			"error":      err.Error(),
		})
		return
	}

	h.sendLocal(sessionID, data)

	// Publish to Redis for other instances
	if h.rdb != nil {
		payload := map[string]interface{}{
			"target_session_id": sessionID.String(),
			"message":           json.RawMessage(data),
		}
		jsonPayload, _ := json.Marshal(payload)
		h.rdb.Publish(context.Background(), "research_events", jsonPayload)
	}
}

func (h *Hub) sendLocal(sessionID uuid.UUID, data []byte) {
	h.mu.RLock()
	clients, ok := h.clients[sessionID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	for _, client := range clients {
		select {
		case client.Send <- data:
		default:
			h.logger.Warn("Hub", "Observer send buffer full, dropping connection", map[string]interface{}{
				"session_id": sessionID,
			})
			// unregister closes the Send channel
			h.unregister <- client
		}
	}
}

// ObserverCount reports how many local observers a session has.
func (h *Hub) ObserverCount(sessionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

func (h *Hub) subscribeToRedis() {
	// All instances subscribe to "research_events". When a message arrives,
	// deliver it to any local observers of the target session.
	ctx := context.Background()
	pubsub := h.rdb.Subscribe(ctx, "research_events")
	defer pubsub.Close()

	ch := pubsub.Channel()

	for msg := range ch {
		var payload struct {
			TargetSessionID string          `json:"target_session_id"`
			Message         json.RawMessage `json:"message"`
		}
		if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
			log.Printf("Redis msg parse error: %v", err)
			continue
		}

		sid, err := uuid.Parse(payload.TargetSessionID)
		if err != nil {
			continue
		}

		h.sendLocal(sid, payload.Message)
	}
}

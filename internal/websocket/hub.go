// Package websocket pushes build lifecycle events to connected browsers.
// The hub fans a single event stream out to every client; slow clients are
// dropped rather than allowed to stall the broadcast loop.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Event types sent over the wire.
const (
	EventBuildStarted   = "build:started"
	EventBuildCompleted = "build:completed"
	EventBuildFailed    = "build:failed"
)

// Event is the JSON envelope for every hub broadcast.
type Event struct {
	Type      string    `json:"type"`
	BuildID   string    `json:"build_id,omitempty"`
	Resolved  int       `json:"resolved,omitempty"`
	Failed    int       `json:"failed,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Hub maintains the set of active clients and broadcasts events to them.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Inbound events to broadcast to all clients
	broadcast chan []byte

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	mu     sync.RWMutex
	logger *slog.Logger

	// Metrics
	totalConnections int64
	totalMessages    int64

	quit chan struct{}
	once sync.Once
}

// NewHub creates a new Hub with dependency injection
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger.With(slog.String("component", "websocket.hub")),
		quit:       make(chan struct{}),
	}
}

// Run starts the hub's event loop. It blocks until Shutdown is called.
func (h *Hub) Run() {
	h.logger.Info("websocket hub started")

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.totalConnections++
			count := len(h.clients)
			h.mu.Unlock()

			h.logger.Debug("client registered",
				slog.String("client_id", client.id),
				slog.Int("active_clients", count),
			)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()

			h.logger.Debug("client unregistered",
				slog.String("client_id", client.id),
				slog.Int("active_clients", count),
			)

		case message := <-h.broadcast:
			h.mu.Lock()
			h.totalMessages++
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Client cannot keep up; drop it.
					delete(h.clients, client)
					close(client.send)
					h.logger.Warn("client dropped, send buffer full",
						slog.String("client_id", client.id),
					)
				}
			}
			h.mu.Unlock()

		case <-h.quit:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.logger.Info("websocket hub stopped")
			return
		}
	}
}

// Shutdown stops the hub loop and disconnects all clients.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.once.Do(func() { close(h.quit) })
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast serializes an event and queues it for every client. Events are
// dropped when the broadcast buffer is full so publishers never block.
func (h *Hub) Broadcast(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal event",
			slog.String("type", event.Type),
			slog.String("error", err.Error()),
		)
		return
	}

	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("broadcast buffer full, event dropped",
			slog.String("type", event.Type),
		)
	}
}

// BuildStarted implements services.Broadcaster.
func (h *Hub) BuildStarted(id string) {
	h.Broadcast(Event{Type: EventBuildStarted, BuildID: id})
}

// BuildCompleted implements services.Broadcaster.
func (h *Hub) BuildCompleted(id string, resolved, failed int) {
	h.Broadcast(Event{
		Type:     EventBuildCompleted,
		BuildID:  id,
		Resolved: resolved,
		Failed:   failed,
	})
}

// BuildFailed implements services.Broadcaster.
func (h *Hub) BuildFailed(id string, err error) {
	event := Event{Type: EventBuildFailed, BuildID: id}
	if err != nil {
		event.Error = err.Error()
	}
	h.Broadcast(event)
}

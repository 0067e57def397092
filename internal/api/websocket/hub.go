package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/KevinKickass/OpenControllerCore/internal/auth"
	"go.uber.org/zap"
)

// Hub maintains active WebSocket clients and broadcasts messages
type Hub struct {
	clients map[*Client]bool

	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu     sync.RWMutex
	logger *zap.Logger

	// nil when every client is trusted
	authenticator *auth.Authenticator

	hooksMu   sync.RWMutex
	onConnect func()
	onMIDIIn  func(raw []byte)
}

// NewHub creates a new Hub instance
func NewHub(logger *zap.Logger, authenticator *auth.Authenticator) *Hub {
	return &Hub{
		broadcast:     make(chan Message, 256),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		done:          make(chan struct{}),
		clients:       make(map[*Client]bool),
		logger:        logger,
		authenticator: authenticator,
	}
}

// OnConnect installs a callback run after a client registered.
func (h *Hub) OnConnect(fn func()) {
	h.hooksMu.Lock()
	defer h.hooksMu.Unlock()
	h.onConnect = fn
}

// OnMIDIIn installs the receiver of raw MIDI sent by clients.
func (h *Hub) OnMIDIIn(fn func(raw []byte)) {
	h.hooksMu.Lock()
	defer h.hooksMu.Unlock()
	h.onMIDIIn = fn
}

func (h *Hub) authRequired() bool {
	return h.authenticator != nil && h.authenticator.Required()
}

// Run starts the hub's main event loop. It returns when ctx is done and
// closes every client.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket Hub started")
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.logger.Info("WebSocket Hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("WebSocket client registered",
				zap.String("client_id", client.id.String()),
				zap.String("remote_addr", client.conn.RemoteAddr().String()),
				zap.Int("total_clients", total))

			h.hooksMu.RLock()
			fn := h.onConnect
			h.hooksMu.RUnlock()
			if fn != nil {
				fn()
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.Info("WebSocket client unregistered",
					zap.String("client_id", client.id.String()),
					zap.Int("total_clients", len(h.clients)))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				h.logger.Error("Failed to marshal broadcast message", zap.Error(err))
				continue
			}

			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					// Client send channel full - unregister slow/dead client
					close(client.send)
					delete(h.clients, client)
					h.logger.Warn("Client send buffer full, unregistering",
						zap.String("client_id", client.id.String()))
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends a message to all connected clients. It never blocks.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Debug("Hub broadcast channel full, message dropped",
			zap.String("message_type", string(msg.Type)))
	}
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) midiIn(raw []byte) {
	h.hooksMu.RLock()
	fn := h.onMIDIIn
	h.hooksMu.RUnlock()
	if fn != nil {
		fn(raw)
	}
}

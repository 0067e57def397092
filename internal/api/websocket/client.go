package websocket

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/KevinKickass/OpenControllerCore/internal/auth"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Time allowed for the auth message
	authWait = 10 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 8192

	// Send channel buffer size
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client represents a WebSocket client connection
type Client struct {
	id          uuid.UUID
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	logger      *zap.Logger
	registered  bool
	permissions []auth.Permission
}

// readPump handles reading messages from the WebSocket connection. It only
// ends the send side; writePump drains pending replies and closes the conn.
func (c *Client) readPump() {
	defer func() {
		if !c.registered {
			close(c.send)
			return
		}
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)

	if c.hub.authRequired() {
		c.conn.SetReadDeadline(time.Now().Add(authWait))
	} else {
		c.permissions = auth.AllPermissions
		c.register()
	}

	for {
		var msg clientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error",
					zap.Error(err),
					zap.String("client_id", c.id.String()))
			}
			return
		}

		// First message MUST be authentication
		if !c.registered {
			if !c.authenticate(msg) {
				return
			}
			continue
		}

		c.handleMessage(msg)
	}
}

func (c *Client) authenticate(msg clientMessage) bool {
	if msg.Type != MessageTypeAuth || msg.Token == "" {
		c.sendJSON(NewMessage(MessageTypeAuthFailed, "First message must be authentication"))
		return false
	}

	permissions, err := c.hub.authenticator.ValidateToken(msg.Token)
	if err != nil {
		c.logger.Warn("WebSocket authentication failed",
			zap.Error(err),
			zap.String("client_id", c.id.String()))
		c.sendJSON(NewMessage(MessageTypeAuthFailed, "Invalid or expired token"))
		return false
	}

	c.permissions = permissions
	c.conn.SetReadDeadline(time.Time{})
	c.sendJSON(NewMessage(MessageTypeAuthSuccess, permissions))
	c.register()

	return true
}

func (c *Client) register() {
	c.registered = true
	c.hub.register <- c
}

func (c *Client) handleMessage(msg clientMessage) {
	switch msg.Type {
	case MessageTypeMIDIIn:
		if !auth.HasPermission(c.permissions, auth.PermTechnician) {
			c.logger.Debug("MIDI input without permission dropped", zap.String("client_id", c.id.String()))
			return
		}

		raw, err := hex.DecodeString(msg.Bytes)
		if err != nil || len(raw) == 0 {
			c.logger.Debug("Invalid MIDI input", zap.String("client_id", c.id.String()), zap.Error(err))
			return
		}
		c.hub.midiIn(raw)

	default:
		c.logger.Debug("Received client message",
			zap.String("client_id", c.id.String()),
			zap.String("type", string(msg.Type)))
	}
}

// sendJSON queues a direct reply. It must only be called before the client
// is registered or from the read pump.
func (c *Client) sendJSON(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// writePump handles writing messages to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Send closed by hub or readPump, pending replies are already written
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Coalesce queued messages into current websocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				next, ok := <-c.send
				if !ok {
					break
				}
				w.Write([]byte{'\n'})
				w.Write(next)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs handles WebSocket upgrade requests
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("WebSocket upgrade error",
			zap.Error(err),
			zap.String("remote_addr", r.RemoteAddr))
		return
	}

	client := &Client{
		id:     uuid.New(),
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		logger: hub.logger,
	}

	go client.writePump()
	go client.readPump()
}

package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/resonance-desktop/fractal-backend/pkg/types"
	"github.com/resonance-desktop/fractal-backend/pkg/utils"
)

const clientBufferSize = 16

// Hub fans system states out to websocket clients.
type Hub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a websocket hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger: logger.Named("ws-hub"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}
}

// BroadcastState pushes a system state to every connected client. Slow
// clients drop frames rather than stalling the pipeline.
func (h *Hub) BroadcastState(state *types.SystemState) {
	payload, err := json.Marshal(map[string]any{"type": "state", "payload": state})
	if err != nil {
		h.logger.Error("marshal state", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- payload:
		default:
			h.logger.Warn("client lagging, frame dropped", zap.String("client", c.id))
		}
	}
}

func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		id:   utils.GenerateID("ws"),
		conn: conn,
		send: make(chan []byte, clientBufferSize),
	}

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.logger.Info("client connected", zap.String("client", c.id))

	go h.writeLoop(c)
	go h.readLoop(c)
}

func (h *Hub) writeLoop(c *client) {
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.drop(c)
			return
		}
	}
}

// readLoop drains control frames and detects disconnects.
func (h *Hub) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.drop(c)
			return
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.id)
	// Closed under the lock so a concurrent broadcast can never write to a
	// closed channel.
	close(c.send)
	h.mu.Unlock()

	c.conn.Close()
	h.logger.Info("client disconnected", zap.String("client", c.id))
}

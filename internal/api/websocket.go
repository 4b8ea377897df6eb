package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"connwatch/internal/logger"
	"connwatch/internal/monitor"
)

// WSEvent is the envelope pushed to websocket subscribers.
type WSEvent struct {
	Type string      `json:"type"` // "summary" or "alert"
	Data interface{} `json:"data"`
}

// Hub fans engine events out to connected websocket clients. Slow clients are
// dropped rather than allowed to block the broadcast path.
type Hub struct {
	upgrader websocket.Upgrader
	clients  map[*wsClient]bool
	log      logger.Logger
	mu       sync.Mutex

	onOpen  func()
	onClose func()
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a websocket hub.
func NewHub(log logger.Logger) *Hub {
	if log == nil {
		log = logger.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*wsClient]bool),
		log:     log,
	}
}

// SetConnectionCallbacks attaches open/close hooks, used for the connection
// gauge.
func (h *Hub) SetConnectionCallbacks(onOpen, onClose func()) {
	h.onOpen = onOpen
	h.onClose = onClose
}

// ServeWS upgrades the request and registers the client.
func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err.Error())
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}

	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()
	if h.onOpen != nil {
		h.onOpen()
	}

	go h.writeLoop(client)
	go h.readLoop(client)
}

// BroadcastSummary pushes a fresh system summary to all clients.
func (h *Hub) BroadcastSummary(summary monitor.SystemHealthSummary) {
	h.broadcast(WSEvent{Type: "summary", Data: summary})
}

// BroadcastAlert pushes a fired alert to all clients.
func (h *Hub) BroadcastAlert(alert monitor.MonitoringAlert) {
	h.broadcast(WSEvent{Type: "alert", Data: alert})
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) broadcast(event WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error("failed to marshal websocket event", "error", err.Error())
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			// Client cannot keep up; drop it.
			h.removeLocked(client)
		}
	}
}

func (h *Hub) writeLoop(client *wsClient) {
	defer client.conn.Close()
	for data := range client.send {
		if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.remove(client)
			return
		}
	}
}

// readLoop drains control frames and detects disconnects.
func (h *Hub) readLoop(client *wsClient) {
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			h.remove(client)
			return
		}
	}
}

func (h *Hub) remove(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
}

func (h *Hub) removeLocked(client *wsClient) {
	if _, exists := h.clients[client]; !exists {
		return
	}
	delete(h.clients, client)
	close(client.send)
	if h.onClose != nil {
		h.onClose()
	}
}

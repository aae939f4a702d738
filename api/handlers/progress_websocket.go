package handlers

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/yourusername/vgrab-go/internal/domain"
)

const clientBuffer = 64

// ProgressHub broadcasts ProgressEvents to every connected websocket client.
// Publish never blocks: a client that falls behind misses events.
type ProgressHub struct {
	logger  *zap.Logger
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
	last    []byte
}

// NewProgressHub creates an empty hub
func NewProgressHub(log *zap.Logger) *ProgressHub {
	return &ProgressHub{
		logger:  log,
		clients: make(map[chan []byte]struct{}),
	}
}

// Publish sends ev to all clients; it has the domain.ProgressFunc signature
func (h *ProgressHub) Publish(ev domain.ProgressEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("Failed to marshal progress event", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = data
	for ch := range h.clients {
		select {
		case ch <- data:
		default:
		}
	}
}

// ClientCount returns the number of connected clients
func (h *ProgressHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *ProgressHub) subscribe() (chan []byte, []byte) {
	ch := make(chan []byte, clientBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[ch] = struct{}{}
	return ch, h.last
}

func (h *ProgressHub) unsubscribe(ch chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, ch)
}

// HandleWebSocket handles GET /api/v1/progress/ws
func (h *ProgressHub) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket", zap.Error(err))
		return
	}
	defer conn.Close()

	ch, last := h.subscribe()
	defer h.unsubscribe(ch)

	h.logger.Debug("Progress client connected", zap.String("remote_addr", c.Request.RemoteAddr))

	if last != nil {
		if err := writeMessage(conn, last); err != nil {
			return
		}
	}

	done := readUntilClosed(conn)

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-ch:
			if err := writeMessage(conn, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func writeMessage(conn *websocket.Conn, data []byte) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

package presentation

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const writeWait = 200 * time.Millisecond

var (
	wsClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "heartlens_ws_clients",
		Help: "Number of connected websocket clients.",
	})
	wsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heartlens_ws_clients_dropped_total",
		Help: "Websocket clients dropped after a failed or slow write.",
	})
	wsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heartlens_ws_frames_skipped_total",
		Help: "Frames replaced by a newer one before a slow client could receive them.",
	})
)

// client owns one connection. Only its writer goroutine writes data frames.
type client struct {
	conn *websocket.Conn
	send chan []byte // holds at most the newest unsent frame
}

// Hub fans frames out to every connected websocket client without waiting
// on any of them.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]*client
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{clients: make(map[*websocket.Conn]*client), logger: logger}
}

// add registers conn, queues initial (if any) and starts its writer.
func (h *Hub) add(conn *websocket.Conn, initial []byte) {
	c := &client{conn: conn, send: make(chan []byte, 1)}
	if initial != nil {
		c.send <- initial
	}

	h.mu.Lock()
	h.clients[conn] = c
	n := len(h.clients)
	h.mu.Unlock()

	wsClients.Set(float64(n))
	h.logger.Debug("Websocket client connected", zap.String("remote", conn.RemoteAddr().String()), zap.Int("clients", n))
	go h.writeLoop(c)
}

// remove reports whether conn was still registered. The client's send
// channel is closed under the same lock Broadcast sends under.
func (h *Hub) remove(conn *websocket.Conn) bool {
	h.mu.Lock()
	c, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	wsClients.Set(float64(n))
	return ok
}

func (h *Hub) writeLoop(c *client) {
	for data := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			if h.remove(c.conn) {
				wsDropped.Inc()
				h.logger.Debug("Dropping websocket client", zap.String("remote", c.conn.RemoteAddr().String()), zap.Error(err))
			}
			_ = c.conn.Close()
			return
		}
	}
}

func (h *Hub) snapshot() []*websocket.Conn {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	return conns
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast queues b for every client and returns immediately. A client still
// busy with an older frame gets that frame replaced by b.
func (h *Hub) Broadcast(b []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, c := range h.clients {
		select {
		case c.send <- b:
			continue
		default:
		}
		select {
		case <-c.send:
			wsSkipped.Inc()
		default:
		}
		select {
		case c.send <- b:
		default:
		}
	}
}

// CloseAll sends a close frame to every client and forgets them.
func (h *Hub) CloseAll() {
	for _, conn := range h.snapshot() {
		h.remove(conn)
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = conn.Close()
	}
}

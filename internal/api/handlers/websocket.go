package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/anstrom/hostsweep/internal/api/middleware"
	"github.com/anstrom/hostsweep/internal/metrics"
	"github.com/anstrom/hostsweep/internal/scanner"
)

const (
	writeWait       = 10 * time.Second                                   // Time allowed to write a message to the peer
	pongWait        = 60 * time.Second                                   // Time to read next pong message from peer
	pingPeriodRatio = 0.9                                                // Ratio of pongWait for pingPeriod
	pingPeriod      = time.Duration(float64(pongWait) * pingPeriodRatio) // Send pings to peer (must be < pongWait)
	maxMessageSize  = 512                                                // Maximum message size allowed from peer
	bufferSize      = 256                                                // Size of the broadcast and client buffers
)

// client is one connected event stream subscriber. Only its writePump
// writes to conn.
type client struct {
	conn      *websocket.Conn
	send      chan []byte
	requestID string
}

// EventHub fans scan events out to WebSocket subscribers. It implements
// scanner.Listener; delivery never blocks the engine.
type EventHub struct {
	logger   *slog.Logger
	metrics  *metrics.PrometheusMetrics
	upgrader websocket.Upgrader

	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	shutdown   chan struct{}
	closeOnce  sync.Once
	mutex      sync.RWMutex
}

// NewEventHub creates a hub and starts its dispatch goroutine.
func NewEventHub(logger *slog.Logger, m *metrics.PrometheusMetrics) *EventHub {
	h := &EventHub{
		logger:  logger.With("handler", "websocket"),
		metrics: m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, bufferSize),
		register:   make(chan *client),
		unregister: make(chan *client),
		shutdown:   make(chan struct{}),
	}

	go h.run()

	return h
}

// OnEvent implements scanner.Listener.
func (h *EventHub) OnEvent(ev scanner.Event) {
	if err := h.Broadcast(ev); err != nil {
		h.logger.Warn("Dropped scan event", "type", ev.Type, "scan_id", ev.ScanID, "error", err)
	}
}

// Broadcast queues an event for every subscriber.
func (h *EventHub) Broadcast(ev scanner.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal scan event: %w", err)
	}

	select {
	case <-h.shutdown:
		return fmt.Errorf("event hub closed")
	default:
	}

	select {
	case h.broadcast <- data:
		return nil
	default:
		return fmt.Errorf("broadcast channel full")
	}
}

// ServeWS upgrades the request and streams events until the peer leaves.
func (h *EventHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", "request_id", requestID, "error", err)
		return
	}
	h.logger.Info("New event stream connection", "request_id", requestID, "remote_addr", r.RemoteAddr)

	c := &client{conn: conn, send: make(chan []byte, bufferSize), requestID: requestID}
	select {
	case h.register <- c:
	case <-h.shutdown:
		_ = conn.Close()
		return
	}

	go h.writePump(c)
	h.readPump(c)
}

// run manages client registration and broadcasts.
func (h *EventHub) run() {
	for {
		select {
		case <-h.shutdown:
			h.mutex.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mutex.Unlock()
			h.recordClients()
			h.logger.Debug("Event hub shutting down")
			return

		case c := <-h.register:
			h.mutex.Lock()
			h.clients[c] = true
			h.mutex.Unlock()
			h.recordClients()
			h.logger.Debug("Client registered", "request_id", c.requestID, "total_clients", h.ClientCount())

		case c := <-h.unregister:
			h.mutex.Lock()
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
			h.mutex.Unlock()
			h.recordClients()
			h.logger.Debug("Client unregistered", "request_id", c.requestID, "total_clients", h.ClientCount())

		case message := <-h.broadcast:
			h.mutex.Lock()
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					// slow subscriber
					h.logger.Warn("Client buffer full, disconnecting", "request_id", c.requestID)
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.mutex.Unlock()
		}
	}
}

// readPump discards client messages and detects disconnects.
func (h *EventHub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.shutdown:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		h.logger.Error("Failed to set read deadline", "request_id", c.requestID, "error", err)
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("WebSocket unexpected close", "request_id", c.requestID, "error", err)
			}
			return
		}
	}
}

// writePump writes queued events and keepalive pings.
func (h *EventHub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Debug("Write failed, closing connection", "request_id", c.requestID, "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.logger.Debug("Ping failed, closing connection", "request_id", c.requestID, "error", err)
				return
			}
		}
	}
}

func (h *EventHub) recordClients() {
	if h.metrics != nil {
		h.metrics.SetWebSocketClients(h.ClientCount())
	}
}

// ClientCount returns the number of connected subscribers.
func (h *EventHub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Close disconnects every subscriber and stops the hub. It is safe to call
// more than once.
func (h *EventHub) Close() {
	h.closeOnce.Do(func() {
		close(h.shutdown)
		h.logger.Info("Event hub closed")
	})
}

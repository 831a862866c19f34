// Package monitoring broadcasts training lifecycle events to websocket
// clients.
package monitoring

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/axsanchezgomez/BandersnatchStarter/logging"
)

// EventType names a training lifecycle event.
type EventType string

const (
	TrainingStarted   EventType = "training_started"
	TrainingCompleted EventType = "training_completed"
	TrainingFailed    EventType = "training_failed"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	sendBuffer   = 64
)

// ErrHubStopped is returned by Publish once Run has exited.
var ErrHubStopped = errors.New("monitoring: hub stopped")

// TrainingEvent is the JSON message sent to websocket clients.
type TrainingEvent struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	ID        string          `json:"id"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// TrainingStart is the payload of training_started events.
type TrainingStart struct {
	RunID string `json:"run_id"`
}

// TrainingResult is the payload of training_completed events.
type TrainingResult struct {
	RunID      string  `json:"run_id"`
	ModelName  string  `json:"model_name"`
	Info       string  `json:"info"`
	Accuracy   float64 `json:"accuracy"`
	DataPoints int     `json:"data_points"`
}

// TrainingFailure is the payload of training_failed events.
type TrainingFailure struct {
	RunID string `json:"run_id"`
	Error string `json:"error"`
}

// HubStats reports connection and delivery counters.
type HubStats struct {
	ConnectedClients int64     `json:"connected_clients"`
	MessagesSent     int64     `json:"messages_sent"`
	Dropped          int64     `json:"dropped"`
	StartTime        time.Time `json:"start_time"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	id   string
}

// Hub fans events out to every connected client. Slow clients whose
// buffer fills up are disconnected.
type Hub struct {
	clients    map[*client]struct{}
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}
	stopOnce   sync.Once
	upgrader   websocket.Upgrader

	connected atomic.Int64
	sent      atomic.Int64
	dropped   atomic.Int64
	started   time.Time
}

// NewHub returns a hub that delivers nothing until Run is started.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		started: time.Now(),
	}
}

// Run owns the client set until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer h.stopOnce.Do(func() { close(h.done) })
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.connected.Store(int64(len(h.clients)))
			logging.L().Info("training client connected", zap.String("client", c.id), zap.Int("total", len(h.clients)))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.connected.Store(int64(len(h.clients)))
			logging.L().Info("training client disconnected", zap.String("client", c.id), zap.Int("total", len(h.clients)))

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
					h.sent.Add(1)
				default:
					delete(h.clients, c)
					close(c.send)
					h.dropped.Add(1)
				}
			}
			h.connected.Store(int64(len(h.clients)))

		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.connected.Store(0)
			return
		}
	}
}

// HandleWebSocket upgrades the request and attaches the connection.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.L().Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer), id: uuid.NewString()}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump(h)
}

// Publish queues an event for every client. Events are dropped when the
// broadcast queue is full.
func (h *Hub) Publish(eventType EventType, payload any) error {
	event := TrainingEvent{Type: eventType, Timestamp: time.Now(), ID: uuid.NewString()}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		event.Data = data
	}
	msg, err := json.Marshal(event)
	if err != nil {
		return err
	}
	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}
	select {
	case h.broadcast <- msg:
	default:
		h.dropped.Add(1)
		logging.L().Warn("training event queue full, dropping event", zap.String("type", string(eventType)))
	}
	return nil
}

// ClientCount is the number of connected websocket clients.
func (h *Hub) ClientCount() int {
	return int(h.connected.Load())
}

// Stats returns a snapshot of the hub counters.
func (h *Hub) Stats() HubStats {
	return HubStats{
		ConnectedClients: h.connected.Load(),
		MessagesSent:     h.sent.Load(),
		Dropped:          h.dropped.Load(),
		StartTime:        h.started,
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logging.L().Debug("websocket write failed", zap.String("client", c.id), zap.Error(err))
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

// readPump discards client messages; it exists to process control frames
// and notice disconnects.
func (c *client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.L().Warn("websocket closed unexpectedly", zap.String("client", c.id), zap.Error(err))
			}
			return
		}
	}
}

// Package hub streams frame events to websocket viewers
package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/anime-shed/live-text-go/internal/logger"
	"github.com/anime-shed/live-text-go/internal/observer"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 16
)

// Client is one connected viewer
type Client struct {
	ID        string
	Connected time.Time

	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *Client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub manages websocket viewers and fans events out to them. A viewer that
// cannot keep up is disconnected rather than slowing the broadcaster.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	upgrader websocket.Upgrader

	messagesSent   atomic.Uint64
	clientsDropped atomic.Uint64
}

// NewHub creates a hub. allowedOrigins empty accepts any origin.
func NewHub(allowedOrigins ...string) *Hub {
	h := &Hub{clients: make(map[string]*Client)}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, o := range allowedOrigins {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
	return h
}

// ServeWS upgrades the request and registers the connection
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := &Client{
		ID:        uuid.NewString(),
		Connected: time.Now(),
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
	}
	h.register(client)

	go client.writePump()
	go client.readPump()
	return nil
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	count := len(h.clients)
	h.mu.Unlock()

	logger.WithFields(logrus.Fields{"client": c.ID, "clients": count}).Info("Viewer connected")
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c.ID]
	if ok {
		delete(h.clients, c.ID)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		c.close()
		logger.WithFields(logrus.Fields{"client": c.ID, "clients": count}).Info("Viewer disconnected")
	}
}

// Broadcast queues msg for every viewer. Viewers whose queue is full are
// dropped.
func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	var slow []*Client
	for _, c := range h.clients {
		select {
		case c.send <- msg:
			h.messagesSent.Add(1)
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.clientsDropped.Add(1)
		logger.WithField("client", c.ID).Warn("Dropping slow viewer")
		h.unregister(c)
	}
}

// OnEvent broadcasts selection-related frame events as JSON
func (h *Hub) OnEvent(ctx context.Context, event observer.FrameEvent) {
	switch event.EventType {
	case observer.TextSelected, observer.NoSelection, observer.RecognitionFailed:
	default:
		return
	}
	if h.ClientCount() == 0 {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		logger.WithError(err).Error("Failed to encode frame event")
		return
	}
	h.Broadcast(data)
}

// GetObserverName returns the observer name
func (h *Hub) GetObserverName() string {
	return "websocket_hub"
}

// ClientCount returns the number of connected viewers
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats contains hub statistics
type Stats struct {
	Clients        int    `json:"clients"`
	MessagesSent   uint64 `json:"messages_sent"`
	ClientsDropped uint64 `json:"clients_dropped"`
}

// GetStats returns hub statistics
func (h *Hub) GetStats() Stats {
	return Stats{
		Clients:        h.ClientCount(),
		MessagesSent:   h.messagesSent.Load(),
		ClientsDropped: h.clientsDropped.Load(),
	}
}

// Close disconnects every viewer
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.unregister(c)
	}
}

// readPump discards inbound messages and tracks liveness through pongs
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.WithField("client", c.ID).WithError(err).Debug("Viewer read error")
			}
			return
		}
	}
}

// writePump is the only writer on the connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
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

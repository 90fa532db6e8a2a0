package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/catalogd/registry/internal/logger"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// subscribers authenticate with a token, not cookies
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message is one frame exchanged with subscribers. Server frames carry an
// event; client frames change the subscription.
type Message struct {
	Type    string          `json:"type"`
	Topic   string          `json:"topic,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// client is one subscriber connection
type client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	topics map[string]bool
	mu     sync.RWMutex
	log    zerolog.Logger
}

// Hub fans events out to WebSocket subscribers. A subscriber with no topics
// receives every event; otherwise an event is delivered when one of the
// topics is a prefix of its type.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan *Message
	register   chan *client
	unregister chan *client
	done       chan struct{}
	closeOnce  sync.Once
	mu         sync.RWMutex
	log        zerolog.Logger
}

var _ Sink = (*Hub)(nil)

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan *Message, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		log:        logger.WithComponent("notify.hub"),
	}
}

// Run starts the hub's main loop; it returns when ctx ends or Close is called
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		_ = h.Close()
		h.dropAll()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Debug().Int("clients", n).Msg("Client registered")

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Debug().Int("clients", n).Msg("Client unregistered")

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) deliver(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to marshal WebSocket message")
		return
	}

	// Collect clients that need to be removed (those with full send buffers)
	var slow []*client

	h.mu.RLock()
	for c := range h.clients {
		if !c.subscribed(msg.Topic) {
			continue
		}
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	if len(slow) > 0 {
		h.mu.Lock()
		for _, c := range slow {
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
		}
		h.mu.Unlock()
		h.log.Warn().Int("dropped", len(slow)).Msg("Dropped slow subscribers")
	}
}

func (h *Hub) dropAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// ClientCount returns the number of connected subscribers
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Name() string { return "websocket" }

// ErrBroadcastFull is returned by Publish when the event had to be dropped
var ErrBroadcastFull = errors.New("broadcast channel full")

// Publish queues ev for delivery. It never blocks; a full queue drops the
// event and returns ErrBroadcastFull.
func (h *Hub) Publish(ctx context.Context, ev *Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- &Message{Type: "event", Topic: ev.Type, Payload: payload}:
		return nil
	default:
		return fmt.Errorf("%w: dropped %s event", ErrBroadcastFull, ev.Type)
	}
}

// Close stops Run and disconnects every subscriber
func (h *Hub) Close() error {
	h.closeOnce.Do(func() { close(h.done) })
	return nil
}

// ServeWS upgrades the request and registers a subscriber. The optional
// "types" query parameter holds a comma separated initial topic list.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	c := &client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 256),
		topics: make(map[string]bool),
		log:    logger.WithComponent("notify.client"),
	}
	for _, topic := range strings.Split(r.URL.Query().Get("types"), ",") {
		if topic = strings.TrimSpace(topic); topic != "" {
			c.topics[topic] = true
		}
	}

	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (c *client) subscribed(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.topics) == 0 {
		return true
	}
	for t := range c.topics {
		if strings.HasPrefix(topic, t) {
			return true
		}
	}
	return false
}

// readPump pumps subscription changes from the connection to the client
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn().Err(err).Msg("Failed to set read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Error().Err(err).Msg("WebSocket error")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err == nil {
			c.handleMessage(&msg)
		}
	}
}

// writePump pumps messages from the hub to the connection
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes subscribe and unsubscribe requests
func (c *client) handleMessage(msg *Message) {
	var payload struct {
		Topics []string `json:"topics"`
	}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Type {
	case "subscribe":
		for _, topic := range payload.Topics {
			c.topics[topic] = true
		}
	case "unsubscribe":
		for _, topic := range payload.Topics {
			delete(c.topics, topic)
		}
	default:
		return
	}
	c.log.Debug().Str("type", msg.Type).Strs("topics", payload.Topics).Msg("Subscription changed")
}

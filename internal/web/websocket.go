package web

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/funnyzak/gqltap/internal/logger"
	"github.com/funnyzak/gqltap/internal/session"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	clientSendSize = 256
)

// liveClient is one websocket connection with its own outgoing queue, so a
// slow browser never stalls the session.
type liveClient struct {
	conn *websocket.Conn
	send chan []byte
}

// LiveHub pushes session events to websocket clients.
type LiveHub struct {
	logger  logger.Logger
	clients map[*liveClient]struct{}
	mu      sync.RWMutex

	upgrader websocket.Upgrader

	// hello builds the first message for a new client.
	hello func() interface{}
	// onChange is told the client count after every connect or disconnect.
	onChange func(int)
}

// NewLiveHub creates a new hub.
func NewLiveHub(log logger.Logger) *LiveHub {
	return &LiveHub{
		logger:  log,
		clients: make(map[*liveClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// OnHello sets the function producing the greeting sent to new clients.
func (h *LiveHub) OnHello(fn func() interface{}) {
	h.hello = fn
}

// OnClientsChanged registers a callback for client count changes.
func (h *LiveHub) OnClientsChanged(fn func(int)) {
	h.onChange = fn
}

// Upgrade upgrades the HTTP connection to WebSocket and starts serving it.
func (h *LiveHub) Upgrade(w http.ResponseWriter, r *http.Request) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := &liveClient{conn: conn, send: make(chan []byte, clientSendSize)}
	if h.hello != nil {
		if payload, err := json.Marshal(h.hello()); err == nil {
			client.send <- payload
		} else {
			h.logger.Error("Failed to marshal websocket greeting", "error", err)
		}
	}
	h.register(client)
	return nil
}

func (h *LiveHub) register(c *liveClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	h.notify(count)
	go h.writeLoop(c)
	go h.readLoop(c)
}

func (h *LiveHub) readLoop(c *liveClient) {
	defer h.unregister(c)

	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *LiveHub) writeLoop(c *liveClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.logger.Warn("Failed to write to websocket client", "error", err)
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

// unregister removes c and closes its queue; the write loop then closes the
// connection. Safe to call more than once.
func (h *LiveHub) unregister(c *liveClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	count := len(h.clients)
	h.mu.Unlock()

	h.notify(count)
}

func (h *LiveHub) notify(count int) {
	if h.onChange != nil {
		h.onChange(count)
	}
}

// Clients returns the number of connected clients.
func (h *LiveHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues event for every client. Clients whose queue is full are
// disconnected.
func (h *LiveHub) Broadcast(event interface{}) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to marshal websocket payload", "error", err)
		return
	}

	var slow []*liveClient
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("Dropping slow websocket client", "remote", c.conn.RemoteAddr().String())
		h.unregister(c)
	}
}

// Publish implements session.Sink. Dropped requests are not forwarded.
func (h *LiveHub) Publish(_ context.Context, ev session.Event) error {
	if ev.Kind == session.EventDropped {
		return nil
	}
	h.Broadcast(ev)
	return nil
}

// Close terminates all connections.
func (h *LiveHub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*liveClient]struct{})
	for c := range clients {
		close(c.send)
	}
	h.mu.Unlock()

	h.notify(0)
}

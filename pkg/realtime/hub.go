// Package realtime fans broadcast envelopes out to connected websocket
// clients, honoring the permissions block each envelope carries.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 64
)

// scope mirrors the permissions block of a broadcast envelope. Only the
// fields the hub routes on are decoded.
type scope struct {
	Permissions *struct {
		Users      []string `json:"users"`
		SessionIDs []string `json:"sessionIds"`
	} `json:"permissions"`
}

// Client is one websocket connection with its identity.
type Client struct {
	UserID    string
	SessionID string

	conn *websocket.Conn
	hub  *Hub
	once sync.Once

	// sendMu orders sends against close: send is only closed with sendMu
	// held and closed set, so trySend never writes to a closed channel.
	sendMu sync.Mutex
	send   chan []byte
	closed bool
}

// Hub tracks connected clients and routes envelopes to those a message's
// permissions admit. Delivery is best-effort: a client whose send buffer
// is full is disconnected rather than allowed to stall the hub.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	log     zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		log:     log,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ServeHTTP upgrades the request to a websocket and registers the client.
// The caller authenticates the request and passes identity via the
// X-User-Id and X-Session-Id headers it sets.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &Client{
		UserID:    r.Header.Get("X-User-Id"),
		SessionID: r.Header.Get("X-Session-Id"),
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		hub:       h,
	}
	h.register(c)
	go c.writeLoop()
	go c.readLoop()
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Debug().Str("user", c.UserID).Int("clients", n).Msg("client connected")
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast routes message to every client its permissions admit. An
// envelope without a permissions block goes to everyone.
func (h *Hub) Broadcast(_ context.Context, message []byte) error {
	var sc scope
	if err := json.Unmarshal(message, &sc); err != nil {
		return err
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		if admits(sc, c) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.trySend(message) {
			h.log.Warn().Str("user", c.UserID).Msg("client send buffer full, dropping connection")
			c.close()
		}
	}
	return nil
}

func admits(sc scope, c *Client) bool {
	p := sc.Permissions
	if p == nil {
		return true
	}
	for _, u := range p.Users {
		if u == c.UserID {
			if len(p.SessionIDs) == 0 {
				return true
			}
			for _, s := range p.SessionIDs {
				if s == c.SessionID {
					return true
				}
			}
			return false
		}
	}
	return false
}

// trySend queues message for the client. It reports false when the send
// buffer is full; messages for an already-closed client are discarded.
func (c *Client) trySend(message []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.once.Do(func() {
		c.hub.unregister(c)
		c.sendMu.Lock()
		c.closed = true
		close(c.send)
		c.sendMu.Unlock()
	})
}

func (c *Client) readLoop() {
	defer func() {
		c.close()
		c.conn.Close()
	}()
	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		// Inbound frames are ignored; the read loop exists to consume
		// control frames and detect the peer going away.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writeLoop() {
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
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

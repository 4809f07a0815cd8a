package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/coboltblu/exchange/pkg/events"
	"github.com/coboltblu/exchange/pkg/types"
)

const (
	ChannelEvents  = "events"
	ChannelTrades  = "trades"
	ChannelOrders  = "orders"
	accountChannel = "account:"

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

// registerTimeout bounds how long a new connection waits for the hub.
var registerTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS is enforced by the HTTP handler
		return true
	},
}

// Hub fans committed events out to WebSocket clients. It reads one event
// subscription, so every client sees events in commit order.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{} // closed when Run returns
	mu         sync.RWMutex
	logger     *zap.SugaredLogger
}

func NewHub(logger *zap.SugaredLogger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run delivers events from sub until ctx is done or sub ends.
func (h *Hub) Run(ctx context.Context, sub *events.Subscription) {
	defer close(h.done)
	defer h.closeAll()
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debugw("ws_client_connected", "client", client.id, "total", n)

		case client := <-h.unregister:
			h.drop(client)

		case e, ok := <-sub.C():
			if !ok {
				return
			}
			h.broadcast(e)

		case <-ctx.Done():
			return
		}
	}
}

// ClientCount is the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(e events.Event) {
	h.mu.RLock()
	var slow []*Client
	for client := range h.clients {
		channel, ok := client.match(e)
		if !ok {
			continue
		}
		msg, err := json.Marshal(WSEvent{Channel: channel, Event: e})
		if err != nil {
			h.logger.Warnw("ws_marshal_failed", "seq", e.Seq, "err", err)
			continue
		}
		select {
		case client.send <- msg:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	// Clients that cannot keep up are disconnected; they resync from
	// /api/v1/events.
	for _, client := range slow {
		h.logger.Warnw("ws_client_too_slow", "client", client.id, "seq", e.Seq)
		h.drop(client)
	}
}

func (h *Hub) drop(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		h.logger.Debugw("ws_client_disconnected", "client", client.id, "total", len(h.clients))
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}

// Client represents a WebSocket connection
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string

	subsMu   sync.RWMutex
	channels map[string]bool
	accounts map[types.Identity]bool
}

// match returns the first channel of the client that e belongs to.
func (c *Client) match(e events.Event) (string, bool) {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	if c.channels[ChannelEvents] {
		return ChannelEvents, true
	}
	if c.channels[ChannelTrades] && e.Kind == events.KindTrade {
		return ChannelTrades, true
	}
	if c.channels[ChannelOrders] {
		switch e.Kind {
		case events.KindOrder, events.KindCancel, events.KindTrade:
			return ChannelOrders, true
		}
	}
	for id := range c.accounts {
		if e.Involves(id) {
			return accountChannel + strings.ToLower(id.Hex()), true
		}
	}
	return "", false
}

// update applies a subscribe or unsubscribe request and returns the
// channels it accepted.
func (c *Client) update(op string, channels []string) []string {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	accepted := make([]string, 0, len(channels))
	for _, ch := range channels {
		switch {
		case ch == ChannelEvents || ch == ChannelTrades || ch == ChannelOrders:
			c.channels[ch] = op == "subscribe"
		case strings.HasPrefix(ch, accountChannel):
			id, err := types.ParseIdentity(strings.TrimPrefix(ch, accountChannel))
			if err != nil {
				continue
			}
			if op == "subscribe" {
				c.accounts[id] = true
			} else {
				delete(c.accounts, id)
			}
			ch = accountChannel + strings.ToLower(id.Hex())
		default:
			continue
		}
		accepted = append(accepted, ch)
	}
	return accepted
}

// reply queues a message from the read side. It gives up instead of
// blocking when the client is being dropped.
func (c *Client) reply(v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// readPump handles subscription requests until the connection fails.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debugw("ws_read_failed", "client", c.id, "err", err)
			}
			return
		}

		var req WSSubscribeRequest
		if err := json.Unmarshal(message, &req); err != nil {
			c.reply(ErrorResponse{Error: "invalid message", Code: "BadRequest", Message: err.Error()})
			continue
		}
		switch req.Op {
		case "subscribe", "unsubscribe":
			c.reply(WSAck{Op: req.Op, Channels: c.update(req.Op, req.Channels)})
		default:
			c.reply(ErrorResponse{Error: "unknown op", Code: "BadRequest", Message: req.Op})
		}
	}
}

// writePump writes queued messages and keeps the connection alive.
func (c *Client) writePump() {
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

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debugw("ws_upgrade_failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	client := &Client{
		hub:      s.hub,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		id:       uuid.NewString(),
		channels: make(map[string]bool),
		accounts: make(map[types.Identity]bool),
	}
	timer := time.NewTimer(registerTimeout)
	defer timer.Stop()
	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		conn.Close()
		return
	case <-r.Context().Done():
		conn.Close()
		return
	case <-timer.C:
		s.logger.Warnw("ws_hub_not_running", "client", client.id)
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

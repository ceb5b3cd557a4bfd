package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wricardo/dungeon-hub/auth"
	"github.com/wricardo/dungeon-hub/game/presence"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	// Outbound frames buffered per client before it counts as too slow.
	sendBufferSize = 256
)

var (
	ErrSendBufferFull = errors.New("send buffer full")
	ErrClientClosed   = errors.New("client closed")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Game clients are served from other origins; the JWT is the gate.
		return true
	},
}

// Client is one WebSocket connection. It implements presence.Conn.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	session *presence.Session

	mu        sync.Mutex
	closed    bool
	closeCode int
	closeText string
}

// Send queues a frame without blocking
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close flushes what is queued, then closes the connection. Safe to call
// more than once.
func (c *Client) Close() error {
	c.closeWith(websocket.CloseTryAgainLater, "connection closed")
	return nil
}

func (c *Client) closeWith(code int, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.closeCode = code
	c.closeText = text
	close(c.send)
}

func (c *Client) closeFrame() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return websocket.FormatCloseMessage(c.closeCode, c.closeText)
}

// Hub accepts WebSocket connections, authenticates them, and hands them to
// the presence controller. It also tracks live clients so they can be told
// about a shutdown.
type Hub struct {
	controller *presence.Controller
	validator  auth.Validator
	logger     *slog.Logger

	// Live clients, owned by Run
	clients map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	count atomic.Int64
	done  chan struct{}
}

// NewHub creates a new WebSocket hub
func NewHub(controller *presence.Controller, validator auth.Validator, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		controller: controller,
		validator:  validator,
		logger:     logger,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run tracks clients until ctx is cancelled, then closes every remaining
// client with a going-away frame.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.count.Store(int64(len(h.clients)))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				h.count.Store(int64(len(h.clients)))
			}

		case <-ctx.Done():
			h.logger.Info("closing websocket clients", "clients", len(h.clients))
			for client := range h.clients {
				h.shutdownClient(client)
			}
			return
		}
	}
}

// Done is closed once Run has returned
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Connections returns the number of live authenticated connections
func (h *Hub) Connections() int {
	return int(h.count.Load())
}

// ServeWS handles WebSocket requests from clients
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	accountID, err := h.validator.Validate(r.Context(), auth.CredentialFromRequest(r))
	if err != nil {
		h.logger.Info("rejected connection", "remote", r.RemoteAddr, "error", err)
		reject(conn, presence.ReasonUnauthenticated, websocket.ClosePolicyViolation, "unauthenticated")
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	select {
	case h.register <- client:
	case <-h.done:
		reject(conn, presence.ReasonShuttingDown, websocket.CloseGoingAway, "server shutting down")
		return
	}

	client.session = h.controller.Open(accountID, client)
	h.logger.Debug("client connected", "accountId", accountID, "sessionId", client.session.ID(), "remote", r.RemoteAddr)

	go client.writePump()
	go client.readPump()
}

func (h *Hub) shutdownClient(client *Client) {
	if data, err := presence.Encode(presence.TypeError, "", presence.ReasonShuttingDown); err == nil {
		client.Send(data)
	}
	client.closeWith(websocket.CloseGoingAway, "server shutting down")
}

func (h *Hub) remove(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// reject writes an error frame and a close frame on a connection that never
// reached the presence controller, then closes it.
func reject(conn *websocket.Conn, reason string, code int, text string) {
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if data, err := presence.Encode(presence.TypeError, "", reason); err == nil {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
}

// readPump pumps frames from the WebSocket connection to the controller.
// When it returns the session is closed, which removes the member and
// tells the room.
func (c *Client) readPump() {
	defer func() {
		c.hub.controller.Close(c.session)
		c.Close()
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	logger := c.hub.logger.With("accountId", c.session.AccountID(), "sessionId", c.session.ID())
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logger.Warn("websocket read error", "error", err)
			}
			return
		}

		if err := c.hub.controller.Handle(context.Background(), c.session, data); err != nil {
			if errors.Is(err, presence.ErrNotJoined) {
				continue
			}
			logger.Debug("message rejected", "error", err)
		}
	}
}

// writePump pumps queued frames to the WebSocket connection, one frame per
// message.
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
				// Close was called; everything queued before it has been written.
				c.conn.WriteMessage(websocket.CloseMessage, c.closeFrame())
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

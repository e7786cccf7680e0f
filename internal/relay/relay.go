// Package relay bridges browser websocket connections to the session
// registry and fans administrator events out to every listener.
package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/vasilisp/searchai/internal/metrics"
	"github.com/vasilisp/searchai/internal/session"
	"github.com/vasilisp/searchai/internal/util"
	"github.com/vasilisp/searchai/pkg/api"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 64 << 10

	sendBuffer  = 32
	inboxBuffer = 8
)

// Messenger is the conversation side of the relay.
type Messenger interface {
	OnConnect(connID string) bool
	OnDisconnect(connID string) bool
	OnMessage(ctx context.Context, connID string, message string) session.Reply
}

// Authenticator decides whether an upgrade request belongs to the admin.
type Authenticator interface {
	Authenticated(r *http.Request) bool
}

type Hub struct {
	upgrader  websocket.Upgrader
	messenger Messenger
	auth      Authenticator

	mu      sync.Mutex
	clients map[string]*client
	closed  bool
}

// NewHub builds a relay. auth may be nil, in which case no connection is
// ever treated as admin.
func NewHub(messenger Messenger, auth Authenticator) *Hub {
	util.Assert(messenger != nil, "NewHub nil messenger")

	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		messenger: messenger,
		auth:      auth,
		clients:   make(map[string]*client),
	}
}

type client struct {
	id    string
	admin bool
	conn  *websocket.Conn
	hub   *Hub

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	send   chan []byte
	closed bool

	inbox chan string
}

func (c *client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- data:
		return true
	default:
		log.Warn().Str("component", "relay").Str("conn_id", c.id).Msg("send queue full, dropping frame")
		return false
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	c.cancel()
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	admin := h.auth != nil && h.auth.Authenticated(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("component", "relay").Msg("websocket upgrade failed")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &client{
		id:     uuid.NewString(),
		admin:  admin,
		conn:   conn,
		hub:    h,
		ctx:    ctx,
		cancel: cancel,
		send:   make(chan []byte, sendBuffer),
		inbox:  make(chan string, inboxBuffer),
	}

	if !h.register(c) {
		cancel()
		_ = conn.Close()
		return
	}
	defer h.unregister(c)

	go c.writePump()
	go c.chatWorker()
	c.readPump()
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[c.id] = c
	h.mu.Unlock()

	metrics.RelayConnections.Inc()
	h.messenger.OnConnect(c.id)
	log.Info().Str("component", "relay").Str("conn_id", c.id).Bool("admin", c.admin).Msg("client connected")
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	delete(h.clients, c.id)
	h.mu.Unlock()

	c.close()
	if !ok {
		return
	}

	metrics.RelayConnections.Dec()
	h.messenger.OnDisconnect(c.id)
	log.Info().Str("component", "relay").Str("conn_id", c.id).Msg("client disconnected")
}

// EmitTo sends a frame to one connection. Unknown ids are ignored.
func (h *Hub) EmitTo(connID string, event string, data any) {
	frame, err := api.NewFrame(event, data)
	if err != nil {
		log.Error().Err(err).Str("component", "relay").Str("event", event).Msg("failed to encode frame")
		return
	}

	h.mu.Lock()
	c, ok := h.clients[connID]
	h.mu.Unlock()

	if !ok {
		log.Debug().Str("component", "relay").Str("conn_id", connID).Str("event", event).Msg("emit to departed connection discarded")
		return
	}
	c.enqueue(frame)
}

// Broadcast sends a frame to every connection, the sender included.
func (h *Hub) Broadcast(event string, data any) {
	frame, err := api.NewFrame(event, data)
	if err != nil {
		log.Error().Err(err).Str("component", "relay").Str("event", event).Msg("failed to encode frame")
		return
	}

	h.mu.Lock()
	targets := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.enqueue(frame)
	}
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.Close()
	}
}

func (c *client) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("component", "relay").Str("conn_id", c.id).Msg("websocket read failed")
			}
			return
		}

		var frame api.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			metrics.RelayEvents.WithLabelValues("invalid", "malformed").Inc()
			log.Warn().Err(err).Str("component", "relay").Str("conn_id", c.id).Msg("malformed frame")
			continue
		}

		c.dispatch(frame)
	}
}

func (c *client) dispatch(frame api.Frame) {
	logger := log.With().Str("component", "relay").Str("conn_id", c.id).Str("event", frame.Event).Logger()

	switch frame.Event {
	case api.EventSendChatMessage:
		var msg api.ChatMessage
		if err := json.Unmarshal(frame.Data, &msg); err != nil {
			metrics.RelayEvents.WithLabelValues(frame.Event, "malformed").Inc()
			logger.Warn().Err(err).Msg("malformed chat payload")
			return
		}

		select {
		case c.inbox <- msg.Message:
			metrics.RelayEvents.WithLabelValues(frame.Event, "accepted").Inc()
		default:
			metrics.RelayEvents.WithLabelValues(frame.Event, "dropped").Inc()
			logger.Warn().Msg("chat inbox full, dropping message")
		}

	case api.EventToggleDisco:
		if !c.admin {
			metrics.RelayEvents.WithLabelValues(frame.Event, "unauthorized").Inc()
			logger.Debug().Msg("privileged event from non-admin dropped")
			return
		}

		var toggle api.DiscoToggle
		if err := json.Unmarshal(frame.Data, &toggle); err != nil {
			metrics.RelayEvents.WithLabelValues(frame.Event, "malformed").Inc()
			logger.Warn().Err(err).Msg("malformed toggle payload")
			return
		}

		metrics.RelayEvents.WithLabelValues(frame.Event, "accepted").Inc()
		c.hub.Broadcast(api.EventDiscoUpdate, frame.Data)

	case api.EventSendAdminMessage:
		if !c.admin {
			metrics.RelayEvents.WithLabelValues(frame.Event, "unauthorized").Inc()
			logger.Debug().Msg("privileged event from non-admin dropped")
			return
		}

		var msg api.AdminMessage
		if err := json.Unmarshal(frame.Data, &msg); err != nil {
			metrics.RelayEvents.WithLabelValues(frame.Event, "malformed").Inc()
			logger.Warn().Err(err).Msg("malformed admin payload")
			return
		}
		if strings.TrimSpace(msg.Message) == "" {
			metrics.RelayEvents.WithLabelValues(frame.Event, "empty").Inc()
			return
		}

		metrics.RelayEvents.WithLabelValues(frame.Event, "accepted").Inc()
		c.hub.Broadcast(api.EventAdminBroadcast, frame.Data)

	default:
		metrics.RelayEvents.WithLabelValues("unknown", "ignored").Inc()
		logger.Warn().Msg("unknown event")
	}
}

// chatWorker answers chat messages of one connection in arrival order, off
// the read loop. It stops when the connection goes away.
func (c *client) chatWorker() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case message := <-c.inbox:
			reply := c.hub.messenger.OnMessage(c.ctx, c.id, message)
			c.hub.EmitTo(c.id, api.EventReceiveChatMessage, api.ChatReply{User: reply.User, Text: reply.Text})
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("component", "relay").Str("conn_id", c.id).Msg("websocket write failed")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

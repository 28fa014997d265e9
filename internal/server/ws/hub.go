// Package ws streams aggregated book updates to WebSocket clients. The hub
// mirrors a fixed set of signal bus channels and fans each message out to
// every connection subscribed to the originating channel.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/quantfold/obagg/internal/domain"
)

const (
	// writeTimeout bounds a single frame write to the socket.
	writeTimeout = 10 * time.Second

	// pongTimeout is how long a connection may stay silent before the read
	// loop gives up on it. pingInterval must stay below it.
	pongTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second

	// maxControlSize caps incoming frames; clients only ever send small
	// subscription requests.
	maxControlSize = 4096

	// outboxSize is the per-connection buffer. A connection that falls this
	// far behind starts losing frames instead of stalling the hub.
	outboxSize = 256
)

// busChannels are the signal bus channels mirrored to clients. Every new
// connection starts subscribed to all of them.
var busChannels = []string{
	"ch:book:*",
	"ch:status",
}

// Origins are not checked on upgrade. Browser clients are filtered by the
// CORS policy on the API routes and non-browser clients send no Origin at
// all.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// control is the JSON a client sends to adjust its subscriptions, e.g.
// {"action":"unsubscribe","channels":["ch:status"]}.
type control struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels"`
}

// conn is one WebSocket session. Reads and writes run on separate
// goroutines; outbox decouples hub fan-out from socket speed.
type conn struct {
	sock   *websocket.Conn
	outbox chan []byte

	mu   sync.RWMutex
	subs map[string]struct{}
}

// wants reports whether the connection is subscribed to channel, directly or
// through a trailing-star pattern such as "ch:book:*".
func (c *conn) wants(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.subs[channel]; ok {
		return true
	}
	for pattern := range c.subs {
		if prefix, ok := strings.CutSuffix(pattern, "*"); ok && strings.HasPrefix(channel, prefix) {
			return true
		}
	}
	return false
}

// apply updates the subscription set for a subscribe or unsubscribe request.
func (c *conn) apply(msg control) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range msg.Channels {
		ch = strings.TrimSpace(ch)
		if ch == "" {
			continue
		}
		if msg.Action == "unsubscribe" {
			delete(c.subs, ch)
		} else {
			c.subs[ch] = struct{}{}
		}
	}
}

// Config carries the runtime metadata reported to clients on connect.
type Config struct {
	Mode      string
	Pair      string
	StartedAt time.Time
}

// Hub owns the set of live connections and fans signal bus traffic out to
// them.
type Hub struct {
	bus    domain.SignalBus
	logger *slog.Logger

	mode      string
	pair      string
	startedAt time.Time

	mu     sync.RWMutex
	conns  map[*conn]struct{}
	closed bool
}

// NewHub creates a hub that mirrors the bus to WebSocket clients.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "unknown"
	}
	started := cfg.StartedAt
	if started.IsZero() {
		started = time.Now().UTC()
	}
	return &Hub{
		bus:       bus,
		logger:    logger.With(slog.String("component", "ws")),
		mode:      mode,
		pair:      cfg.Pair,
		startedAt: started,
		conns:     make(map[*conn]struct{}),
	}
}

// Run subscribes to the bus channels and blocks until ctx is cancelled, then
// drops every connection. Always returns ctx.Err().
func (h *Hub) Run(ctx context.Context) error {
	for _, name := range busChannels {
		go h.forward(ctx, name)
	}
	<-ctx.Done()

	h.mu.Lock()
	h.closed = true
	for c := range h.conns {
		close(c.outbox)
	}
	h.conns = map[*conn]struct{}{}
	h.mu.Unlock()
	return ctx.Err()
}

// forward mirrors one bus channel into the connection set.
func (h *Hub) forward(ctx context.Context, channel string) {
	msgs, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.Error("bus subscribe failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}
	h.logger.Info("mirroring bus channel", slog.String("channel", channel))

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-msgs:
			if !ok {
				h.logger.Warn("bus subscription ended", slog.String("channel", channel))
				return
			}
			h.push(channel, payload)
		}
	}
}

// push delivers one payload to every connection subscribed to channel. Slow
// connections lose the frame; bus traffic is state-carrying, so the next
// cycle supersedes anything dropped.
func (h *Hub) push(channel string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns {
		if !c.wants(channel) {
			continue
		}
		select {
		case c.outbox <- payload:
		default:
			h.logger.Warn("dropping frame for slow client", slog.String("channel", channel))
		}
	}
}

// track registers the connection. It fails once the hub has shut down.
func (h *Hub) track(c *conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[c] = struct{}{}
	h.logger.Info("client connected", slog.Int("clients", len(h.conns)))
	return true
}

// drop unregisters the connection and closes its outbox exactly once.
func (h *Hub) drop(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c]; !ok {
		return
	}
	delete(h.conns, c)
	close(c.outbox)
	h.logger.Info("client disconnected", slog.Int("clients", len(h.conns)))
}

// HandleWS upgrades the request and serves the connection until the client
// goes away or the hub shuts down.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	sock, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &conn{
		sock:   sock,
		outbox: make(chan []byte, outboxSize),
		subs:   make(map[string]struct{}, len(busChannels)),
	}
	for _, name := range busChannels {
		c.subs[name] = struct{}{}
	}

	if !h.track(c) {
		_ = sock.Close()
		return
	}
	c.outbox <- h.helloFrame()

	go c.writeLoop()
	c.readLoop(h)
}

// helloFrame is the status snapshot sent immediately after connect so clients
// can render a healthy connection before the first book update arrives.
func (h *Hub) helloFrame() []byte {
	uptime := int64(time.Since(h.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}
	frame, _ := json.Marshal(map[string]any{
		"type": "status",
		"payload": map[string]any{
			"mode":           h.mode,
			"pair":           h.pair,
			"ws_connected":   true,
			"uptime_seconds": uptime,
		},
	})
	return frame
}

// readLoop consumes client frames until the connection dies. The only
// meaningful input is subscription control messages; everything else is
// ignored. Runs on the HTTP handler goroutine.
func (c *conn) readLoop(h *Hub) {
	defer func() {
		h.drop(c)
		c.sock.Close()
	}()

	c.sock.SetReadLimit(maxControlSize)
	c.sock.SetReadDeadline(time.Now().Add(pongTimeout))
	c.sock.SetPongHandler(func(string) error {
		return c.sock.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		_, data, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("unexpected close", slog.String("error", err.Error()))
			}
			return
		}

		var msg control
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Action {
		case "subscribe", "unsubscribe":
			c.apply(msg)
		}
	}
}

// writeLoop drains the outbox onto the socket and keeps the connection alive
// with periodic pings. All payloads are JSON text frames.
func (c *conn) writeLoop() {
	pings := time.NewTicker(pingInterval)
	defer func() {
		pings.Stop()
		c.sock.Close()
	}()

	for {
		select {
		case payload, ok := <-c.outbox:
			c.sock.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.sock.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			if err := c.sock.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-pings.C:
			c.sock.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

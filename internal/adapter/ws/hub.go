// Package ws streams week changes to browser clients over WebSocket and
// accepts playback commands from them.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/couchcryptid/storm-data-timeline/internal/domain"
	"github.com/couchcryptid/storm-data-timeline/internal/observability"
	"github.com/couchcryptid/storm-data-timeline/internal/session"
)

const (
	sendQueueSize  = 32
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
	commandTimeout = 5 * time.Second
)

// Message types exchanged with clients.
const (
	TypeState  = "state"
	TypeWeek   = "week"
	TypeError  = "error"
	TypePlay   = "play"
	TypePause  = "pause"
	TypeToggle = "toggle"
	TypeSpeed  = "speed"
	TypeScrub  = "scrub"
)

// Controller is the subset of the session the hub drives.
type Controller interface {
	Snapshot(ctx context.Context) (session.Snapshot, error)
	Play(ctx context.Context) (session.Snapshot, error)
	Pause(ctx context.Context) (session.Snapshot, error)
	Toggle(ctx context.Context) (session.Snapshot, error)
	CycleSpeed(ctx context.Context) (session.Snapshot, error)
	Scrub(ctx context.Context, week int) (session.Snapshot, error)
	Subscribe(ctx context.Context, fn func(domain.WeekChange)) (cancel func(), err error)
}

// Command is an inbound client message.
type Command struct {
	Type string `json:"type"`
	Week *int   `json:"week,omitempty"`
}

// Event is an outbound message. Exactly one payload field is set.
type Event struct {
	Type   string             `json:"type"`
	State  *session.Snapshot  `json:"state,omitempty"`
	Change *domain.WeekChange `json:"change,omitempty"`
	Error  string             `json:"error,omitempty"`
}

type client struct {
	id      uuid.UUID
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
	once    sync.Once
	done    chan struct{}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Hub tracks connected clients and fans week changes out to them.
type Hub struct {
	ctrl     Controller
	rate     rate.Limit
	burst    int
	upgrader websocket.Upgrader
	logger   *slog.Logger
	metrics  *observability.Metrics

	mu      sync.RWMutex
	clients map[uuid.UUID]*client
}

// NewHub creates a hub. commandRate caps inbound commands per second per
// client; zero or less disables the limit.
func NewHub(ctrl Controller, commandRate float64, logger *slog.Logger, metrics *observability.Metrics) *Hub {
	limit := rate.Inf
	burst := 1
	if commandRate > 0 {
		limit = rate.Limit(commandRate)
		burst = max(1, int(commandRate))
	}
	return &Hub{
		ctrl:  ctrl,
		rate:  limit,
		burst: burst,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:  logger,
		metrics: metrics,
		clients: make(map[uuid.UUID]*client),
	}
}

// Run subscribes to the session and broadcasts until ctx is cancelled, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) error {
	cancel, err := h.ctrl.Subscribe(ctx, h.broadcastChange)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("subscribe to week changes: %w", err)
	}
	defer cancel()

	<-ctx.Done()

	h.mu.Lock()
	for id, c := range h.clients {
		delete(h.clients, id)
		c.close()
	}
	h.mu.Unlock()
	h.metrics.WebSocketClients.Set(0)
	return nil
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		id:      uuid.New(),
		conn:    conn,
		send:    make(chan []byte, sendQueueSize),
		limiter: rate.NewLimiter(h.rate, h.burst),
		done:    make(chan struct{}),
	}

	// Registered before the snapshot so no change emitted in between is lost.
	// A change queued ahead of the state event is never newer than it.
	h.register(c)
	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	snap, err := h.ctrl.Snapshot(ctx)
	cancel()
	if err != nil {
		h.logger.Warn("websocket initial state failed", "error", err)
		h.unregister(c)
		return
	}
	h.enqueue(c, Event{Type: TypeState, State: &snap})

	h.logger.Info("websocket client connected", "client", c.id, "remote", r.RemoteAddr)

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()
	h.metrics.WebSocketClients.Set(float64(n))
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	n := len(h.clients)
	h.mu.Unlock()
	h.metrics.WebSocketClients.Set(float64(n))
	c.close()
}

// broadcastChange runs on the session loop and must not block.
func (h *Hub) broadcastChange(change domain.WeekChange) {
	payload, err := json.Marshal(Event{Type: TypeWeek, Change: &change})
	if err != nil {
		h.logger.Error("marshal week change", "error", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		h.trySend(c, payload)
	}
}

func (h *Hub) enqueue(c *client, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("marshal websocket event", "type", ev.Type, "error", err)
		return
	}
	h.trySend(c, payload)
}

func (h *Hub) trySend(c *client, payload []byte) {
	select {
	case c.send <- payload:
	default:
		h.logger.Warn("websocket client too slow, dropping message", "client", c.id)
	}
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		h.logger.Info("websocket client disconnected", "client", c.id)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", "client", c.id, "error", err)
			}
			return
		}
		if !c.limiter.Allow() {
			h.enqueue(c, Event{Type: TypeError, Error: "rate limit exceeded"})
			continue
		}
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			h.enqueue(c, Event{Type: TypeError, Error: "invalid command: " + err.Error()})
			continue
		}
		snap, err := h.execute(cmd)
		if err != nil {
			h.enqueue(c, Event{Type: TypeError, Error: err.Error()})
			continue
		}
		h.enqueue(c, Event{Type: TypeState, State: &snap})
	}
}

func (h *Hub) execute(cmd Command) (session.Snapshot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch cmd.Type {
	case TypePlay:
		return h.ctrl.Play(ctx)
	case TypePause:
		return h.ctrl.Pause(ctx)
	case TypeToggle:
		return h.ctrl.Toggle(ctx)
	case TypeSpeed:
		return h.ctrl.CycleSpeed(ctx)
	case TypeScrub:
		if cmd.Week == nil {
			return session.Snapshot{}, errors.New("scrub requires a week")
		}
		return h.ctrl.Scrub(ctx, *cmd.Week)
	case TypeState:
		return h.ctrl.Snapshot(ctx)
	default:
		return session.Snapshot{}, fmt.Errorf("unknown command %q", cmd.Type)
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

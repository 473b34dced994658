package wsadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	application "voteverse/contexts/live-contest/voting-engine/application"
	"voteverse/contexts/live-contest/voting-engine/ports"
	"voteverse/internal/shared/events"

	"github.com/gorilla/websocket"
)

const (
	defaultBufferSize   = 32
	defaultWriteTimeout = 5 * time.Second
	consumerGroup       = "leaderboard-stream"
)

// Frame is one message pushed to an observer.
type Frame struct {
	Type       string          `json:"type"`
	EventID    string          `json:"event_id,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// SnapshotFunc renders the frame sent to an observer right after it connects.
type SnapshotFunc func(ctx context.Context) (Frame, error)

// Hub fans bus events out to WebSocket observers. Each observer has a
// bounded queue; an observer whose queue is full is disconnected.
type Hub struct {
	Subscriber   ports.EventSubscriber
	Snapshot     SnapshotFunc
	Topics       []string
	BufferSize   int
	WriteTimeout time.Duration
	Logger       *slog.Logger

	upgrader websocket.Upgrader
	mu       sync.Mutex
	clients  map[*client]struct{}
	once     sync.Once
}

type client struct {
	conn *websocket.Conn
	send chan Frame
	done chan struct{}
	stop sync.Once
}

func (c *client) close() {
	c.stop.Do(func() {
		close(c.done)
	})
}

func (c *client) remoteAddr() string {
	if c.conn == nil {
		return ""
	}
	return c.conn.RemoteAddr().String()
}

func (h *Hub) init() {
	h.once.Do(func() {
		h.clients = make(map[*client]struct{})
		h.upgrader = websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		}
	})
}

// Start subscribes the hub to every broadcast topic until ctx ends.
func (h *Hub) Start(ctx context.Context) error {
	h.init()
	topics := h.Topics
	if len(topics) == 0 {
		topics = events.BroadcastTopics
	}
	for _, topic := range topics {
		if err := h.Subscriber.Subscribe(ctx, topic, consumerGroup, h.handle); err != nil {
			return err
		}
	}
	go func() {
		<-ctx.Done()
		h.closeAll()
	}()
	return nil
}

func (h *Hub) handle(_ context.Context, envelope ports.EventEnvelope) error {
	h.Broadcast(Frame{
		Type:       envelope.EventType,
		EventID:    envelope.EventID,
		OccurredAt: envelope.OccurredAt,
		Data:       envelope.Data,
	})
	return nil
}

// Broadcast queues frame for every observer without blocking.
func (h *Hub) Broadcast(frame Frame) {
	h.init()
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
			h.logger().Warn("dropping slow leaderboard observer",
				"event", "voting_stream_observer_dropped",
				"module", application.ModuleName,
				"layer", "adapter",
				"remote_addr", c.remoteAddr(),
				"frame_type", frame.Type,
			)
			delete(h.clients, c)
			c.close()
		}
	}
}

// Observers returns the number of connected observers.
func (h *Hub) Observers() int {
	h.init()
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.init()
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger().Warn("leaderboard stream upgrade failed",
			"event", "voting_stream_upgrade_failed",
			"module", application.ModuleName,
			"layer", "adapter",
			"error", err.Error(),
		)
		return
	}
	size := h.BufferSize
	if size <= 0 {
		size = defaultBufferSize
	}
	c := &client{
		conn: conn,
		send: make(chan Frame, size),
		done: make(chan struct{}),
	}

	if h.Snapshot != nil {
		frame, err := h.Snapshot(r.Context())
		if err != nil {
			h.logger().Error("leaderboard stream snapshot failed",
				"event", "voting_stream_snapshot_failed",
				"module", application.ModuleName,
				"layer", "adapter",
				"error", err.Error(),
			)
		} else {
			c.send <- frame
		}
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger().Info("leaderboard observer connected",
		"event", "voting_stream_observer_connected",
		"module", application.ModuleName,
		"layer", "adapter",
		"remote_addr", conn.RemoteAddr().String(),
	)

	go h.readLoop(c)
	h.writeLoop(c)
}

// readLoop discards inbound messages and notices the peer going away.
func (h *Hub) readLoop(c *client) {
	defer c.close()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	timeout := h.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(timeout),
			)
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}

func (h *Hub) logger() *slog.Logger {
	return application.ResolveLogger(h.Logger)
}

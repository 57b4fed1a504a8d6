package devreload

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"authgate/cmd/internal/build"
	"authgate/cmd/internal/metrics"
)

// Client is one connected browser tab.
//
// Send is never closed by the server so concurrent broadcasts cannot panic;
// done signals the connection goroutines to stop.
type Client struct {
	ID   string
	Send chan Message

	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(id string, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = defaultSendQueueSize
	}
	return &Client{
		ID:   id,
		Send: make(chan Message, sendQueueSize),
		done: make(chan struct{}),
	}
}

func (c *Client) Done() <-chan struct{} { return c.done }

// Close is idempotent and leaves Send open.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Hub tracks connected clients and fans build notifications out to them.
type Hub struct {
	log     *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu      sync.RWMutex
	clients map[string]*Client
}

func NewHub(log *slog.Logger, m *metrics.Metrics) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:     log,
		metrics: m,
		now:     time.Now,
		clients: make(map[string]*Client),
	}
}

func (h *Hub) Join(c *Client) {
	if c == nil || c.ID == "" {
		return
	}

	h.mu.Lock()
	_, existed := h.clients[c.ID]
	h.clients[c.ID] = c
	h.mu.Unlock()

	if !existed {
		h.metrics.DevReloadConn(1)
	}
	h.log.Debug("devreload.client.join", "client_id", c.ID)
}

// Leave removes the client, then signals it to shut down.
func (h *Hub) Leave(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	delete(h.clients, id)
	h.mu.Unlock()

	if !ok {
		return
	}
	c.Close()
	h.metrics.DevReloadConn(-1)
	h.log.Debug("devreload.client.leave", "client_id", id)
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast never blocks: full queues and closing clients are skipped.
// It returns the number of clients the message was queued for.
func (h *Hub) Broadcast(msg Message) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for _, c := range h.clients {
		select {
		case <-c.Done():
			continue
		default:
		}

		select {
		case c.Send <- msg:
			sent++
		default:
			h.log.Debug("devreload.client.drop", "client_id", c.ID)
		}
	}
	return sent
}

// BuildReady implements build.Notifier.
func (h *Hub) BuildReady(_ context.Context, b *build.Build) error {
	n := h.Broadcast(newMessage(TypeBuildReady, b.VersionString(), h.now()))
	h.log.Info("devreload.broadcast", "version", b.VersionString(), "clients", n)
	return nil
}

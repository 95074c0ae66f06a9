package notify

import (
	"context"
	"sync"
	"time"
)

// Frame is one event on a user's live channel.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Hub is the process-wide registry of live push channels, one per user
// id. It is a best-effort latency optimization: the persisted
// notification row is the durable record, so a dropped or replaced
// connection loses nothing.
type Hub struct {
	Heartbeat  time.Duration
	IdleAfter  time.Duration
	SweepEvery time.Duration

	mu    sync.Mutex
	conns map[string]*connection
}

type connection struct {
	userID string

	mu        sync.Mutex
	closed    bool
	frames    chan Frame
	cancel    context.CancelFunc
	lastWrite time.Time
}

func NewHub(heartbeat, idleAfter, sweepEvery time.Duration) *Hub {
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	if idleAfter <= 0 {
		idleAfter = 90 * time.Second
	}
	if sweepEvery <= 0 {
		sweepEvery = 30 * time.Second
	}
	return &Hub{
		Heartbeat:  heartbeat,
		IdleAfter:  idleAfter,
		SweepEvery: sweepEvery,
		conns:      make(map[string]*connection),
	}
}

// Register opens a live channel for the user. A prior registration for
// the same user is replaced (last writer wins). The returned func
// removes the registration and stops the heartbeat; it is safe to call
// more than once.
func (h *Hub) Register(ctx context.Context, userID string) (<-chan Frame, func()) {
	cctx, cancel := context.WithCancel(ctx)
	c := &connection{
		userID:    userID,
		frames:    make(chan Frame, 16),
		cancel:    cancel,
		lastWrite: time.Now(),
	}

	h.mu.Lock()
	prev := h.conns[userID]
	h.conns[userID] = c
	h.mu.Unlock()
	if prev != nil {
		prev.close()
	}

	c.send(Frame{Event: "connected", Data: map[string]string{"userId": userID}})
	go h.heartbeat(cctx, c)
	return c.frames, func() { h.drop(c) }
}

// Push delivers a frame to the user's live channel. A false return
// means not delivered live: either no channel is registered or the
// write failed, in which case the channel is unregistered immediately.
func (h *Hub) Push(userID, event string, data any) bool {
	h.mu.Lock()
	c, ok := h.conns[userID]
	h.mu.Unlock()
	if !ok {
		return false
	}
	if !c.send(Frame{Event: event, Data: data}) {
		h.drop(c)
		return false
	}
	return true
}

// Run sweeps registrations that have had no successful write within
// the inactivity window. It returns when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	t := time.NewTicker(h.SweepEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			h.sweep()
		}
	}
}

// Len reports the number of registered channels.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Hub) sweep() {
	// Collect under the map lock, close outside it, so a slow close
	// never blocks unrelated pushes.
	h.mu.Lock()
	var stale []*connection
	for _, c := range h.conns {
		if c.idleFor(h.IdleAfter) {
			stale = append(stale, c)
		}
	}
	h.mu.Unlock()
	for _, c := range stale {
		h.drop(c)
	}
}

func (h *Hub) heartbeat(ctx context.Context, c *connection) {
	t := time.NewTicker(h.Heartbeat)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			h.drop(c)
			return
		case <-t.C:
			if !c.send(Frame{Event: "ping"}) {
				h.drop(c)
				return
			}
		}
	}
}

// drop removes the connection only if it is still the current entry
// for its user, so replacing a connection never tears down its
// successor.
func (h *Hub) drop(c *connection) {
	h.mu.Lock()
	if h.conns[c.userID] == c {
		delete(h.conns, c.userID)
	}
	h.mu.Unlock()
	c.close()
}

func (c *connection) send(f Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.frames <- f:
		c.lastWrite = time.Now()
		return true
	default:
		// Full buffer means the consumer stopped draining; treat it as
		// a write failure.
		return false
	}
}

func (c *connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
	close(c.frames)
}

func (c *connection) idleFor(d time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.lastWrite) > d
}

package core

import (
	"sync"

	"github.com/google/uuid"
)

const defaultSendBuffer = 64

// Client is one live connection of a user as seen by the core layer.
// A user may hold several clients at once, one per device.
type Client struct {
	ID     string
	UserID string

	events chan *Event
	done   chan struct{}

	sendMu    sync.RWMutex
	closed    bool
	closeOnce sync.Once

	roomsMu sync.Mutex
	rooms   map[string]struct{}

	teardown sync.Once
}

// NewClient constructs a client with an outbound buffer of the given size.
func NewClient(userID string, buffer int) *Client {
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		events: make(chan *Event, buffer),
		done:   make(chan struct{}),
		rooms:  make(map[string]struct{}),
	}
}

// Events returns the outbound queue drained by the connection writer.
func (c *Client) Events() <-chan *Event {
	return c.events
}

// Done is closed once the client has been closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Send enqueues ev without blocking. It reports false if the client is
// closed or its buffer is full.
func (c *Client) Send(ev *Event) bool {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.events <- ev:
		return true
	default:
		return false
	}
}

// Close marks the client closed. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.sendMu.Lock()
		c.closed = true
		close(c.done)
		c.sendMu.Unlock()
	})
}

// Closed reports whether Close has been called.
func (c *Client) Closed() bool {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	return c.closed
}

// Rooms returns a snapshot of the rooms the client has joined.
func (c *Client) Rooms() []string {
	c.roomsMu.Lock()
	defer c.roomsMu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		out = append(out, r)
	}
	return out
}

// Joined reports whether the client is currently in roomID.
func (c *Client) Joined(roomID string) bool {
	c.roomsMu.Lock()
	defer c.roomsMu.Unlock()
	_, ok := c.rooms[roomID]
	return ok
}

package core

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Options tunes a Hub.
type Options struct {
	SendBuffer      int
	PresenceTimeout time.Duration
}

// Hub owns the connection registry, room membership, fan-out and presence
// for one server process.
type Hub struct {
	registry   *Registry
	rooms      *Rooms
	dispatcher *Dispatcher
	tracker    *Tracker
	logger     *zerolog.Logger
	metrics    *metrics
	sendBuffer int

	wg sync.WaitGroup
}

// NewHub creates a hub persisting presence through ps.
func NewHub(ps PresenceStore, logger *zerolog.Logger, opts Options) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	registry := NewRegistry()
	rooms := NewRooms()
	dispatcher := NewDispatcher(registry, rooms, logger)
	return &Hub{
		registry:   registry,
		rooms:      rooms,
		dispatcher: dispatcher,
		tracker:    NewTracker(ps, registry, dispatcher, logger, opts.PresenceTimeout),
		logger:     logger,
		metrics:    newMetrics(),
		sendBuffer: opts.SendBuffer,
	}
}

// Dispatcher returns the hub's event dispatcher.
func (h *Hub) Dispatcher() *Dispatcher { return h.dispatcher }

// Registry returns the hub's connection registry.
func (h *Hub) Registry() *Registry { return h.registry }

// Tracker returns the hub's presence tracker.
func (h *Hub) Tracker() *Tracker { return h.tracker }

// Connect admits a new client for an authenticated user and greets it.
// The first client of a user triggers an asynchronous online transition.
func (h *Hub) Connect(userID string) *Client {
	c := NewClient(userID, h.sendBuffer)
	first := h.registry.Admit(c)
	h.metrics.connections.Add(context.Background(), 1)

	c.Send(&Event{Kind: EventHello, UserID: userID, TS: time.Now().UTC()})

	h.logger.Info().
		Str("user_id", userID).
		Str("conn_id", c.ID).
		Bool("first", first).
		Msg("client connected")

	if first {
		h.background(func(ctx context.Context) { h.tracker.MarkOnline(ctx, userID) })
	}
	return c
}

// Disconnect tears c down: closes it, removes it from every room and from
// the registry, and marks the user offline if c was the last client.
// Only the first call has any effect.
func (h *Hub) Disconnect(c *Client) {
	c.teardown.Do(func() {
		c.Close()
		h.rooms.LeaveAll(c)
		last := h.registry.Evict(c)
		h.metrics.connections.Add(context.Background(), -1)

		h.logger.Info().
			Str("user_id", c.UserID).
			Str("conn_id", c.ID).
			Bool("last", last).
			Msg("client disconnected")

		if last {
			userID := c.UserID
			h.background(func(ctx context.Context) { h.tracker.MarkOffline(ctx, userID) })
		}
	})
}

// Join subscribes c to the room of chatID. Membership must be checked by the caller.
func (h *Hub) Join(c *Client, chatID string) error {
	if chatID == "" {
		return ErrBadRequest
	}
	if !h.rooms.Join(c, chatID) {
		return coreError(ErrCodeBadRequest, "connection closed")
	}
	return nil
}

// Leave unsubscribes c from the room of chatID.
func (h *Hub) Leave(c *Client, chatID string) error {
	if chatID == "" {
		return ErrBadRequest
	}
	h.rooms.Leave(c, chatID)
	return nil
}

// Relay sends ev to the other clients in chatID's room.
func (h *Hub) Relay(from *Client, chatID string, ev *Event) int {
	return h.dispatcher.ToRoom(chatID, ev, from)
}

// Wait blocks until all background presence work has finished.
func (h *Hub) Wait() {
	h.wg.Wait()
}

// Shutdown waits for background work or until ctx is done.
func (h *Hub) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) background(fn func(ctx context.Context)) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		fn(context.Background())
	}()
}

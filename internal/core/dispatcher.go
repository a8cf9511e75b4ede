package core

import (
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Dispatcher resolves targets to live clients and enqueues events on each.
// Delivery is at-most-once and online-only: a closed or saturated client
// drops the event without affecting the others.
type Dispatcher struct {
	registry *Registry
	rooms    *Rooms
	logger   *zerolog.Logger
	metrics  *metrics
}

// NewDispatcher creates a dispatcher over the given registry and rooms.
func NewDispatcher(registry *Registry, rooms *Rooms, logger *zerolog.Logger) *Dispatcher {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Dispatcher{
		registry: registry,
		rooms:    rooms,
		logger:   logger,
		metrics:  newMetrics(),
	}
}

// ToUsers delivers ev to every live client of the given users.
// It returns the number of clients the event was enqueued on.
func (d *Dispatcher) ToUsers(userIDs []string, ev *Event) int {
	clients := d.registry.HandlesFor(lo.Uniq(userIDs))
	sent, dropped := 0, 0
	for _, c := range clients {
		if c.Send(ev) {
			sent++
			continue
		}
		dropped++
		d.logger.Debug().
			Str("user_id", c.UserID).
			Str("conn_id", c.ID).
			Int("event", int(ev.Kind)).
			Msg("event dropped")
	}
	d.metrics.recordFanout("users", sent, dropped)
	return sent
}

// ToRoom delivers ev to every client joined to roomID except the given one.
func (d *Dispatcher) ToRoom(roomID string, ev *Event, except *Client) int {
	sent, dropped := d.rooms.broadcast(roomID, ev, except, nil)
	d.logDrops(roomID, ev, dropped)
	d.metrics.recordFanout("room", sent, dropped)
	return sent
}

// ToRoomAndUsers delivers ev to the room's clients and to the live clients
// of userIDs in one pass. A client reached both ways gets the event once.
func (d *Dispatcher) ToRoomAndUsers(roomID string, userIDs []string, ev *Event, except *Client) int {
	extra := d.registry.HandlesFor(lo.Uniq(userIDs))
	sent, dropped := d.rooms.broadcast(roomID, ev, except, extra)
	d.logDrops(roomID, ev, dropped)
	d.metrics.recordFanout("room_users", sent, dropped)
	return sent
}

func (d *Dispatcher) logDrops(roomID string, ev *Event, dropped int) {
	if dropped == 0 {
		return
	}
	d.logger.Debug().
		Str("chat_id", roomID).
		Int("event", int(ev.Kind)).
		Int("dropped", dropped).
		Msg("room events dropped")
}

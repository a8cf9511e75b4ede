package core

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestDispatcher() (*Registry, *Rooms, *Dispatcher) {
	registry := NewRegistry()
	rooms := NewRooms()
	return registry, rooms, NewDispatcher(registry, rooms, nil)
}

func TestDispatcher_ToUsersReachesEveryDevice(t *testing.T) {
	req := require.New(t)
	registry, _, d := newTestDispatcher()

	d1 := NewClient("alice", 4)
	d2 := NewClient("alice", 4)
	registry.Admit(d1)
	registry.Admit(d2)

	n := d.ToUsers([]string{"alice", "alice", "offline-user"}, &Event{Kind: EventUserOnline, UserID: "carol"})
	req.Equal(2, n)

	req.Len(drain(d1.Events()), 1)
	req.Len(drain(d2.Events()), 1)
}

func TestDispatcher_FailedClientDoesNotBlockOthers(t *testing.T) {
	req := require.New(t)
	registry, _, d := newTestDispatcher()

	// Given a closed client, a saturated client and a healthy one
	closed := NewClient("alice", 4)
	full := NewClient("bob", 1)
	healthy := NewClient("carol", 4)
	for _, c := range []*Client{closed, full, healthy} {
		registry.Admit(c)
	}
	closed.Close()
	req.True(full.Send(&Event{Kind: EventPong}))

	// When an event fans out to all three
	n := d.ToUsers([]string{"alice", "bob", "carol"}, &Event{Kind: EventContactAdded})

	// Then only the healthy client receives it and nothing panics
	req.Equal(1, n)
	mustEvent(t, healthy.Events(), EventContactAdded)
	req.Equal(0, countKind(drain(full.Events()), EventContactAdded))
}

func TestDispatcher_ToRoomExcludesOrigin(t *testing.T) {
	req := require.New(t)
	_, rooms, d := newTestDispatcher()

	origin := NewClient("alice", 4)
	peer := NewClient("bob", 4)
	rooms.Join(origin, "chat-1")
	rooms.Join(peer, "chat-1")

	n := d.ToRoom("chat-1", &Event{Kind: EventTypingStart, ChatID: "chat-1", UserID: "alice"}, origin)
	req.Equal(1, n)
	req.Empty(drain(origin.Events()))
	ev := mustEvent(t, peer.Events(), EventTypingStart)
	req.Equal("alice", ev.UserID)
}

func TestDispatcher_ToRoomAndUsersDeliversOncePerClient(t *testing.T) {
	req := require.New(t)
	registry, rooms, d := newTestDispatcher()

	// Bob's phone has joined the room, his laptop has not.
	phone := NewClient("bob", 4)
	laptop := NewClient("bob", 4)
	registry.Admit(phone)
	registry.Admit(laptop)
	rooms.Join(phone, "chat-1")

	n := d.ToRoomAndUsers("chat-1", []string{"bob"}, &Event{Kind: EventMessageReceive, ChatID: "chat-1"}, nil)
	req.Equal(2, n)
	req.Equal(1, countKind(drain(phone.Events()), EventMessageReceive))
	req.Equal(1, countKind(drain(laptop.Events()), EventMessageReceive))
}

func TestDispatcher_RoomOrderingPerClient(t *testing.T) {
	req := require.New(t)
	_, rooms, d := newTestDispatcher()

	const total = 200
	a := NewClient("alice", total*2)
	b := NewClient("bob", total*2)
	rooms.Join(a, "chat-1")
	rooms.Join(b, "chat-1")

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < total/4; i++ {
				d.ToRoom("chat-1", &Event{Kind: EventMessageReceive, MessageID: fmt.Sprintf("%d-%d", w, i)}, nil)
			}
		}(w)
	}
	wg.Wait()

	ids := func(c *Client) []string {
		var out []string
		for _, ev := range drain(c.Events()) {
			out = append(out, ev.MessageID)
		}
		return out
	}
	seqA := ids(a)
	req.Len(seqA, total)
	req.Equal(seqA, ids(b), "both clients observe the room in the same order")
}

package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/securechat-server/internal/store"
)

func newTestHub(ps PresenceStore) *Hub {
	return NewHub(ps, nil, Options{SendBuffer: 16, PresenceTimeout: time.Second})
}

func TestHubConnectSendsHello(t *testing.T) {
	hub := newTestHub(newFakePresenceStore(nil))
	c := hub.Connect("alice")
	defer hub.Disconnect(c)

	ev := mustEvent(t, c.Events(), EventHello)
	require.Equal(t, "alice", ev.UserID)
	require.False(t, ev.TS.IsZero())
}

func TestHubContactOnlineReachesEveryDeviceOnce(t *testing.T) {
	req := require.New(t)
	ps := newFakePresenceStore(map[string][]string{"carol": {"alice"}})
	hub := newTestHub(ps)

	// Given alice on two devices
	d1 := hub.Connect("alice")
	d2 := hub.Connect("alice")
	hub.Wait()
	drain(d1.Events())
	drain(d2.Events())

	// When her contact carol comes online
	hub.Connect("carol")
	hub.Wait()

	// Then each device sees exactly one user:online for carol
	for _, d := range []*Client{d1, d2} {
		events := drain(d.Events())
		req.Equal(1, countKind(events, EventUserOnline))
		for _, ev := range events {
			if ev.Kind == EventUserOnline {
				req.Equal("carol", ev.UserID)
			}
		}
	}
	req.Contains(ps.Calls(), presenceCall{UserID: "carol", Status: store.PresenceOnline})
	req.True(hub.Tracker().IsOnline("carol"))
}

func TestHubSecondDeviceDoesNotRepeatOnline(t *testing.T) {
	ps := newFakePresenceStore(nil)
	hub := newTestHub(ps)

	hub.Connect("alice")
	hub.Connect("alice")
	hub.Connect("alice")
	hub.Wait()

	require.Equal(t, []presenceCall{{UserID: "alice", Status: store.PresenceOnline}}, ps.Calls())
}

func TestHubLastDisconnectMarksOfflineOnce(t *testing.T) {
	req := require.New(t)
	ps := newFakePresenceStore(map[string][]string{"alice": {"bob"}})
	hub := newTestHub(ps)

	watcher := hub.Connect("bob")
	d1 := hub.Connect("alice")
	d2 := hub.Connect("alice")
	hub.Wait()
	drain(watcher.Events())

	hub.Disconnect(d1)
	hub.Disconnect(d1)
	hub.Wait()
	req.True(hub.Registry().Online("alice"))
	req.Empty(drain(watcher.Events()))

	hub.Disconnect(d2)
	hub.Disconnect(d2)
	hub.Wait()

	req.False(hub.Registry().Online("alice"))
	req.Equal(1, countKind(drain(watcher.Events()), EventUserOffline))

	offline := 0
	for _, call := range ps.Calls() {
		if call.UserID == "alice" && call.Status == store.PresenceOffline {
			offline++
		}
	}
	req.Equal(1, offline)
}

func TestHubDisconnectTearsDownRooms(t *testing.T) {
	req := require.New(t)
	hub := newTestHub(newFakePresenceStore(nil))

	c := hub.Connect("alice")
	peer := hub.Connect("bob")
	req.NoError(hub.Join(c, "chat-1"))
	req.NoError(hub.Join(peer, "chat-1"))

	hub.Disconnect(c)
	req.Equal(1, hub.rooms.Size("chat-1"))
	req.Error(hub.Join(c, "chat-1"), "closed client cannot rejoin")

	// Sends to a torn-down client fail silently.
	req.False(c.Send(&Event{Kind: EventPong}))
	req.Equal(0, hub.Relay(peer, "chat-1", &Event{Kind: EventTypingStart}))
}

func TestHubJoinRequiresChatID(t *testing.T) {
	hub := newTestHub(newFakePresenceStore(nil))
	c := hub.Connect("alice")

	require.True(t, errors.Is(hub.Join(c, ""), ErrBadRequest))
	require.True(t, errors.Is(hub.Leave(c, ""), ErrBadRequest))
}

func TestHubPresenceFailuresAreSwallowed(t *testing.T) {
	req := require.New(t)
	ps := newFakePresenceStore(map[string][]string{"alice": {"bob"}})
	ps.failSet = errors.New("db down")
	hub := newTestHub(ps)

	watcher := hub.Connect("bob")
	hub.Wait()
	drain(watcher.Events())

	// Persistence fails but contacts still hear about it.
	c := hub.Connect("alice")
	hub.Wait()
	req.Equal(1, countKind(drain(watcher.Events()), EventUserOnline))

	// Contact lookup fails: no broadcast, no panic, teardown still completes.
	ps.mu.Lock()
	ps.failLookup = errors.New("lookup failed")
	ps.mu.Unlock()
	hub.Disconnect(c)
	hub.Wait()
	req.Empty(drain(watcher.Events()))
	req.False(hub.Registry().Online("alice"))
}

func TestTrackerSkipsStaleTransitions(t *testing.T) {
	req := require.New(t)
	ps := newFakePresenceStore(nil)
	registry := NewRegistry()
	rooms := NewRooms()
	tracker := NewTracker(ps, registry, NewDispatcher(registry, rooms, nil), nil, time.Second)
	ctx := context.Background()

	// Online for a user with no live client is stale.
	tracker.MarkOnline(ctx, "alice")
	req.Empty(ps.Calls())

	c := NewClient("alice", 1)
	registry.Admit(c)
	tracker.MarkOnline(ctx, "alice")
	tracker.MarkOnline(ctx, "alice")

	// Offline while a client is still live is stale.
	tracker.MarkOffline(ctx, "alice")
	req.Len(ps.Calls(), 1)

	registry.Evict(c)
	tracker.MarkOffline(ctx, "alice")
	tracker.MarkOffline(ctx, "alice")
	req.Equal([]presenceCall{
		{UserID: "alice", Status: store.PresenceOnline},
		{UserID: "alice", Status: store.PresenceOffline},
	}, ps.Calls())
}

func TestHubShutdownWaitsForPresence(t *testing.T) {
	hub := newTestHub(newFakePresenceStore(nil))
	hub.Connect("alice")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, hub.Shutdown(ctx))
}

package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/securechat-server/internal/store"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// drain returns every event currently queued on ch.
func drain(ch <-chan *Event) []*Event {
	var out []*Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func countKind(events []*Event, kind EventKind) int {
	n := 0
	for _, ev := range events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

type presenceCall struct {
	UserID string
	Status store.PresenceStatus
}

// fakePresenceStore records presence writes and serves a fixed contact graph.
type fakePresenceStore struct {
	mu         sync.Mutex
	calls      []presenceCall
	contacts   map[string][]string
	failSet    error
	failLookup error
}

func newFakePresenceStore(contacts map[string][]string) *fakePresenceStore {
	if contacts == nil {
		contacts = map[string][]string{}
	}
	return &fakePresenceStore{contacts: contacts}
}

func (f *fakePresenceStore) SetPresence(_ context.Context, userID string, status store.PresenceStatus, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, presenceCall{UserID: userID, Status: status})
	return f.failSet
}

func (f *fakePresenceStore) ContactIDs(_ context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLookup != nil {
		return nil, f.failLookup
	}
	return f.contacts[userID], nil
}

func (f *fakePresenceStore) Calls() []presenceCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]presenceCall(nil), f.calls...)
}

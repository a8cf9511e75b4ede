package core

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/securechat-server/internal/store"
)

// PresenceStore persists presence and resolves the audience of a user's
// presence changes.
type PresenceStore interface {
	SetPresence(ctx context.Context, userID string, status store.PresenceStatus, lastSeen time.Time) error
	ContactIDs(ctx context.Context, userID string) ([]string, error)
}

// Tracker turns registry occupancy changes into persisted presence and
// user:online / user:offline events for contacts. All of its work is
// best-effort: failures are logged and dropped.
type Tracker struct {
	store      PresenceStore
	registry   *Registry
	dispatcher *Dispatcher
	logger     *zerolog.Logger
	metrics    *metrics
	timeout    time.Duration
	now        func() time.Time

	stripes [shardCount]sync.Mutex

	stateMu sync.Mutex
	online  map[string]struct{}
}

// NewTracker creates a presence tracker. timeout bounds each transition's
// store calls.
func NewTracker(ps PresenceStore, registry *Registry, dispatcher *Dispatcher, logger *zerolog.Logger, timeout time.Duration) *Tracker {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Tracker{
		store:      ps,
		registry:   registry,
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    newMetrics(),
		timeout:    timeout,
		now:        time.Now,
		online:     make(map[string]struct{}),
	}
}

func (t *Tracker) stripe(userID string) *sync.Mutex {
	return &t.stripes[shardIndex(userID)]
}

// MarkOnline records the user online and notifies contacts. It does nothing
// if the user is already marked online or has no live client any more.
func (t *Tracker) MarkOnline(ctx context.Context, userID string) {
	mu := t.stripe(userID)
	mu.Lock()
	defer mu.Unlock()

	if !t.registry.Online(userID) || t.isMarked(userID) {
		return
	}
	t.setMarked(userID, true)
	t.transition(ctx, userID, store.PresenceOnline)
}

// MarkOffline records the user offline and notifies contacts. It does
// nothing if the user reconnected or was never marked online.
func (t *Tracker) MarkOffline(ctx context.Context, userID string) {
	mu := t.stripe(userID)
	mu.Lock()
	defer mu.Unlock()

	if t.registry.Online(userID) || !t.isMarked(userID) {
		return
	}
	t.setMarked(userID, false)
	t.transition(ctx, userID, store.PresenceOffline)
}

// IsOnline reports the tracker's view of userID.
func (t *Tracker) IsOnline(userID string) bool {
	return t.isMarked(userID)
}

func (t *Tracker) isMarked(userID string) bool {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	_, ok := t.online[userID]
	return ok
}

func (t *Tracker) setMarked(userID string, online bool) {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	if online {
		t.online[userID] = struct{}{}
	} else {
		delete(t.online, userID)
	}
}

func (t *Tracker) transition(ctx context.Context, userID string, status store.PresenceStatus) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	t.metrics.recordPresence(string(status))
	log := t.logger.With().Str("user_id", userID).Str("status", string(status)).Logger()

	// Persistence, contact lookup and fan-out are independent steps.
	if err := t.store.SetPresence(ctx, userID, status, t.now().UTC()); err != nil {
		log.Warn().Err(err).Msg("persist presence failed")
	}

	contacts, err := t.store.ContactIDs(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Msg("resolve contacts failed")
		return
	}
	if len(contacts) == 0 {
		return
	}

	kind := EventUserOnline
	if status == store.PresenceOffline {
		kind = EventUserOffline
	}
	n := t.dispatcher.ToUsers(contacts, &Event{Kind: kind, UserID: userID})
	log.Debug().Int("delivered", n).Msg("presence broadcast")
}

package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/securechat-server/internal/core"
	"github.com/vovakirdan/securechat-server/internal/store"
	"github.com/vovakirdan/securechat-server/internal/store/sqlite"
)

type fixture struct {
	store    *sqlite.SQLiteStore
	registry *core.Registry
	svc      *Service
	base     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	registry := core.NewRegistry()
	dispatcher := core.NewDispatcher(registry, core.NewRooms(), nil)

	f := &fixture{
		store:    st,
		registry: registry,
		svc:      New(st, dispatcher, nil),
		base:     time.Now().UTC().Add(-time.Hour),
	}

	ctx := context.Background()
	require.NoError(t, st.CreateChat(ctx, &store.Chat{
		ID: "direct", Members: []string{"alice", "bob"}, CreatedAt: f.base, UpdatedAt: f.base,
	}))
	require.NoError(t, st.CreateChat(ctx, &store.Chat{
		ID: "group", IsGroup: true, GroupName: "team", Members: []string{"alice", "bob", "carol"},
		Admins: []string{"alice"}, CreatedAt: f.base, UpdatedAt: f.base,
	}))
	return f
}

func (f *fixture) send(t *testing.T, id, chatID, sender string, offset int) {
	t.Helper()
	at := f.base.Add(time.Duration(offset) * time.Second)
	require.NoError(t, f.store.CreateMessage(context.Background(), &store.Message{
		ID:        id,
		ChatID:    chatID,
		SenderID:  sender,
		Type:      store.MessageTypeText,
		Content:   id,
		ReadBy:    []string{sender},
		CreatedAt: at,
		UpdatedAt: at,
	}))
}

func (f *fixture) connect(userID string) *core.Client {
	c := core.NewClient(userID, 32)
	f.registry.Admit(c)
	return c
}

func (f *fixture) status(t *testing.T, id string) store.MessageStatus {
	t.Helper()
	msg, err := f.store.GetMessage(context.Background(), id)
	require.NoError(t, err)
	return msg.Status
}

func drain(c *core.Client) []*core.Event {
	var out []*core.Event
	for {
		select {
		case ev := <-c.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func statusEvents(events []*core.Event) []*core.Event {
	var out []*core.Event
	for _, ev := range events {
		if ev.Kind == core.EventMessageStatus {
			out = append(out, ev)
		}
	}
	return out
}

func TestDeliveredThenReadScenario(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	// Given alice sent M in a direct chat and is connected
	f.send(t, "m", "direct", "alice", 0)
	aliceConn := f.connect("alice")

	// When bob marks M delivered
	res, err := f.svc.MarkDelivered(ctx, "bob", "m")
	req.NoError(err)
	req.Equal(1, res.Updated)
	req.Equal(store.StatusDelivered, f.status(t, "m"))

	// Then alice receives message:status delivered
	events := statusEvents(drain(aliceConn))
	req.Len(events, 1)
	req.Equal(store.StatusDelivered, events[0].Status)
	req.Equal([]string{"m"}, events[0].MessageIDs)
	req.Equal("bob", events[0].UserID)

	// When bob reads the chat
	res, err = f.svc.MarkRead(ctx, "bob", "direct", nil)
	req.NoError(err)
	req.Equal(1, res.Updated)
	req.Equal(1, res.Seen)

	// Then M is seen and read by both
	msg, err := f.store.GetMessage(ctx, "m")
	req.NoError(err)
	req.Equal(store.StatusSeen, msg.Status)
	req.ElementsMatch([]string{"alice", "bob"}, msg.ReadBy)

	all := drain(aliceConn)
	req.Equal(core.EventMessageRead, all[0].Kind)
	seen := statusEvents(all)
	req.Len(seen, 1)
	req.Equal(store.StatusSeen, seen[0].Status)
}

func TestMarkDeliveredIsIdempotent(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()
	f.send(t, "m", "direct", "alice", 0)
	aliceConn := f.connect("alice")

	first, err := f.svc.MarkDelivered(ctx, "bob", "m")
	req.NoError(err)
	second, err := f.svc.MarkDelivered(ctx, "bob", "m")
	req.NoError(err)

	req.Equal(1, first.Updated)
	req.Equal(0, second.Updated)
	req.Equal(store.StatusDelivered, f.status(t, "m"))
	req.Len(statusEvents(drain(aliceConn)), 1)
}

func TestSenderNeverAdvancesOwnMessage(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()
	f.send(t, "m", "direct", "alice", 0)

	res, err := f.svc.MarkDelivered(ctx, "alice", "m")
	req.NoError(err)
	req.Equal(0, res.Updated)

	res, err = f.svc.MarkDeliveredBulk(ctx, "alice", "direct", nil)
	req.NoError(err)
	req.Equal(0, res.Updated)

	res, err = f.svc.MarkRead(ctx, "alice", "direct", nil)
	req.NoError(err)
	req.Equal(0, res.Seen)

	req.Equal(store.StatusNone, f.status(t, "m"))
}

func TestStatusNeverRegresses(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()
	f.send(t, "m", "direct", "alice", 0)

	_, err := f.svc.MarkRead(ctx, "bob", "direct", nil)
	req.NoError(err)
	req.Equal(store.StatusSeen, f.status(t, "m"))

	res, err := f.svc.MarkDelivered(ctx, "bob", "m")
	req.NoError(err)
	req.Equal(0, res.Updated)

	res, err = f.svc.MarkDeliveredBulk(ctx, "bob", "direct", []string{"m"})
	req.NoError(err)
	req.Equal(0, res.Updated)

	req.Equal(store.StatusSeen, f.status(t, "m"))
}

func TestGroupMessagesOnlyAccumulateReaders(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()
	f.send(t, "g1", "group", "alice", 0)

	res, err := f.svc.MarkDelivered(ctx, "bob", "g1")
	req.NoError(err)
	req.Equal(0, res.Updated)

	res, err = f.svc.MarkDeliveredBulk(ctx, "bob", "group", nil)
	req.NoError(err)
	req.Equal(0, res.Updated)

	res, err = f.svc.MarkRead(ctx, "carol", "group", nil)
	req.NoError(err)
	req.Equal(1, res.Updated)
	req.Equal(0, res.Seen)

	msg, err := f.store.GetMessage(ctx, "g1")
	req.NoError(err)
	req.Equal(store.StatusNone, msg.Status)
	req.ElementsMatch([]string{"alice", "carol"}, msg.ReadBy)
}

func TestBulkDeliveredExplicitSubset(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	// Given: alice's own message, one already delivered, one fresh, one outside the subset
	f.send(t, "own", "direct", "bob", 0)
	f.send(t, "done", "direct", "alice", 1)
	f.send(t, "fresh", "direct", "alice", 2)
	f.send(t, "other", "direct", "alice", 3)
	_, err := f.store.AdvanceStatus(ctx, []string{"done"}, store.StatusDelivered)
	req.NoError(err)
	aliceConn := f.connect("alice")

	// When bob bulk-delivers an explicit subset
	res, err := f.svc.MarkDeliveredBulk(ctx, "bob", "direct", []string{"own", "done", "fresh"})

	// Then only the eligible message changes
	req.NoError(err)
	req.Equal(1, res.Updated)
	req.Equal([]string{"fresh"}, res.MessageIDs)
	req.Equal(store.StatusNone, f.status(t, "own"))
	req.Equal(store.StatusNone, f.status(t, "other"))

	events := statusEvents(drain(aliceConn))
	req.Len(events, 1)
	req.Equal([]string{"fresh"}, events[0].MessageIDs)
}

func TestBulkDeliveredWholeChatAndZeroMatches(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()
	f.send(t, "m1", "direct", "alice", 0)
	f.send(t, "m2", "direct", "alice", 1)

	res, err := f.svc.MarkDeliveredBulk(ctx, "bob", "direct", nil)
	req.NoError(err)
	req.Equal(2, res.Updated)
	req.Equal([]string{"m1", "m2"}, res.MessageIDs)

	res, err = f.svc.MarkDeliveredBulk(ctx, "bob", "direct", nil)
	req.NoError(err)
	req.Equal(0, res.Updated)
}

func TestMembershipAndValidation(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()
	f.send(t, "m", "direct", "alice", 0)

	_, err := f.svc.MarkDelivered(ctx, "mallory", "m")
	req.True(errors.Is(err, core.ErrNotMember))

	_, err = f.svc.MarkRead(ctx, "mallory", "direct", nil)
	req.True(errors.Is(err, core.ErrNotMember))
	req.Equal(store.StatusNone, f.status(t, "m"))

	_, err = f.svc.MarkDelivered(ctx, "bob", "missing")
	req.True(errors.Is(err, core.ErrNotFound))

	_, err = f.svc.MarkDeliveredBulk(ctx, "bob", "", nil)
	req.True(errors.Is(err, core.ErrBadRequest))

	_, err = f.svc.MarkRead(ctx, "bob", "missing-chat", nil)
	req.True(errors.Is(err, core.ErrNotFound))
}

func TestReactionsSetReplaceRemove(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()
	f.send(t, "m", "direct", "alice", 0)
	aliceConn := f.connect("alice")

	_, err := f.svc.AddReaction(ctx, "bob", "m", "👍")
	req.NoError(err)
	_, err = f.svc.AddReaction(ctx, "bob", "m", "🔥")
	req.NoError(err)

	msg, err := f.store.GetMessage(ctx, "m")
	req.NoError(err)
	req.Equal([]store.Reaction{{UserID: "bob", Emoji: "🔥"}}, msg.Reactions)

	_, err = f.svc.RemoveReaction(ctx, "bob", "m")
	req.NoError(err)

	events := drain(aliceConn)
	req.Len(events, 3)
	req.Equal(core.EventReactionUpdate, events[2].Kind)
	req.Nil(events[2].Emoji, "removal carries a nil emoji")
	req.Equal("🔥", *events[1].Emoji)

	_, err = f.svc.AddReaction(ctx, "bob", "m", "")
	req.True(errors.Is(err, core.ErrBadRequest))
}

// racingStore lets another receipt advance one message between selection and update.
type racingStore struct {
	*sqlite.SQLiteStore
	stolen string
}

func (r *racingStore) AdvanceStatus(ctx context.Context, ids []string, status store.MessageStatus) ([]string, error) {
	if r.stolen != "" {
		if _, err := r.SQLiteStore.AdvanceStatus(ctx, []string{r.stolen}, status); err != nil {
			return nil, err
		}
		r.stolen = ""
	}
	return r.SQLiteStore.AdvanceStatus(ctx, ids, status)
}

func TestMarkDeliveredBulkReportsOnlyItsOwnTransitions(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	// Given two fresh messages, one of which another device delivers mid-call
	f.send(t, "a", "direct", "alice", 0)
	f.send(t, "b", "direct", "alice", 1)
	registry := core.NewRegistry()
	svc := New(&racingStore{SQLiteStore: f.store, stolen: "a"}, core.NewDispatcher(registry, core.NewRooms(), nil), nil)
	aliceConn := core.NewClient("alice", 32)
	registry.Admit(aliceConn)

	// When bob bulk-delivers the chat
	res, err := svc.MarkDeliveredBulk(ctx, "bob", "direct", nil)

	// Then the count and the event name the same single message
	req.NoError(err)
	req.Equal(1, res.Updated)
	req.Equal([]string{"b"}, res.MessageIDs)
	events := statusEvents(drain(aliceConn))
	req.Len(events, 1)
	req.Equal([]string{"b"}, events[0].MessageIDs)
}

func TestMarkReadFromSkipsTheOriginConnection(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()
	f.send(t, "m", "direct", "alice", 0)

	// Given bob on two devices and alice online
	phone := f.connect("bob")
	laptop := f.connect("bob")
	aliceConn := f.connect("alice")

	// When bob reads from his phone
	res, err := f.svc.MarkReadFrom(ctx, phone, "bob", "direct", nil)
	req.NoError(err)
	req.Equal(1, res.Seen)

	// Then the phone gets no read receipt of its own, the others do
	for _, ev := range drain(phone) {
		req.NotEqual(core.EventMessageRead, ev.Kind)
	}
	laptopEvents := drain(laptop)
	req.NotEmpty(laptopEvents)
	req.Equal(core.EventMessageRead, laptopEvents[0].Kind)
	aliceEvents := drain(aliceConn)
	req.Len(aliceEvents, 2)
	req.Equal(core.EventMessageRead, aliceEvents[0].Kind)
	req.Equal(core.EventMessageStatus, aliceEvents[1].Kind)
}

package chats

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/vovakirdan/securechat-server/internal/core"
	"github.com/vovakirdan/securechat-server/internal/mocks"
	"github.com/vovakirdan/securechat-server/internal/store"
	"github.com/vovakirdan/securechat-server/internal/store/sqlite"
)

type fixture struct {
	store    *sqlite.SQLiteStore
	registry *core.Registry
	rooms    *core.Rooms
	notifier *mocks.MockNotifier
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ctrl := gomock.NewController(t)
	notifier := mocks.NewMockNotifier(ctrl)

	registry := core.NewRegistry()
	rooms := core.NewRooms()
	f := &fixture{
		store:    st,
		registry: registry,
		rooms:    rooms,
		notifier: notifier,
		svc:      New(st, core.NewDispatcher(registry, rooms, nil), notifier, nil),
	}
	// Runs before the controller checks its expectations.
	t.Cleanup(f.svc.Wait)
	for _, id := range []string{"alice", "bob", "carol", "dave"} {
		now := time.Now().UTC()
		require.NoError(t, st.CreateUser(context.Background(), &store.User{
			ID: id, UID: fmt.Sprintf("%-8s", id)[:8], Name: id, Email: id + "@example.com",
			PasswordHash: "h", LastSeen: now, CreatedAt: now,
		}))
	}
	return f
}

func (f *fixture) connect(userID string) *core.Client {
	c := core.NewClient(userID, 32)
	f.registry.Admit(c)
	return c
}

func kinds(c *core.Client) []core.EventKind {
	var out []core.EventKind
	for {
		select {
		case ev := <-c.Events():
			out = append(out, ev.Kind)
		default:
			return out
		}
	}
}

func TestGetOrCreateDirectIsIdempotent(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	first, created, err := f.svc.GetOrCreateDirect(ctx, "alice", "bob")
	req.NoError(err)
	req.True(created)

	again, created, err := f.svc.GetOrCreateDirect(ctx, "bob", "alice")
	req.NoError(err)
	req.False(created)
	req.Equal(first.ID, again.ID)

	_, _, err = f.svc.GetOrCreateDirect(ctx, "alice", "alice")
	req.True(errors.Is(err, core.ErrBadRequest))

	_, _, err = f.svc.GetOrCreateDirect(ctx, "alice", "nobody")
	req.True(errors.Is(err, core.ErrNotFound))
}

func TestSendMessageFansOutOncePerClientAndNotifies(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	chat, _, err := f.svc.GetOrCreateDirect(ctx, "alice", "bob")
	req.NoError(err)

	// Given bob's phone in the chat room and his laptop only registered
	phone := f.connect("bob")
	laptop := f.connect("bob")
	f.rooms.Join(phone, chat.ID)
	sender := f.connect("alice")

	f.notifier.EXPECT().
		Notify(gomock.Any(), []string{"bob"}, "New message", "New text message", map[string]string{"chatId": chat.ID}).
		Times(1)

	// When alice sends a message
	msg, err := f.svc.SendMessage(ctx, "alice", SendInput{ChatID: chat.ID, Content: "hi"})
	f.svc.Wait()

	// Then it starts undelivered, read by the sender, and reaches each bob client once
	req.NoError(err)
	req.Equal(store.StatusNone, msg.Status)
	req.Equal([]string{"alice"}, msg.ReadBy)
	req.Equal([]core.EventKind{core.EventMessageReceive}, kinds(phone))
	req.Equal([]core.EventKind{core.EventMessageReceive}, kinds(laptop))
	req.Empty(kinds(sender), "sender not in room receives nothing")

	views, err := f.svc.ListChats(ctx, "bob")
	req.NoError(err)
	req.Len(views, 1)
	req.Equal(1, views[0].UnreadCount)
	req.Equal(msg.ID, views[0].LastMessageID)
}

func TestSendMessageValidation(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()
	chat, _, err := f.svc.GetOrCreateDirect(ctx, "alice", "bob")
	req.NoError(err)

	_, err = f.svc.SendMessage(ctx, "alice", SendInput{ChatID: chat.ID})
	req.True(errors.Is(err, core.ErrBadRequest))

	_, err = f.svc.SendMessage(ctx, "alice", SendInput{ChatID: chat.ID, Type: "sticker", Content: "x"})
	req.True(errors.Is(err, core.ErrBadRequest))

	_, err = f.svc.SendMessage(ctx, "carol", SendInput{ChatID: chat.ID, Content: "x"})
	req.True(errors.Is(err, core.ErrNotMember))

	_, err = f.svc.SendMessage(ctx, "alice", SendInput{ChatID: "missing", Content: "x"})
	req.True(errors.Is(err, core.ErrNotFound))
}

func TestGroupLifecycleEmitsUpdates(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()
	bob := f.connect("bob")
	dave := f.connect("dave")

	group, err := f.svc.CreateGroup(ctx, "alice", CreateGroupInput{Name: "team", MemberIDs: []string{"bob", "bob", "carol"}})
	req.NoError(err)
	req.ElementsMatch([]string{"alice", "bob", "carol"}, group.Members)
	req.Equal([]string{"alice"}, group.Admins)

	_, err = f.svc.RenameGroup(ctx, "bob", group.ID, "mine")
	req.True(errors.Is(err, core.ErrForbidden))

	renamed, err := f.svc.RenameGroup(ctx, "alice", group.ID, "crew")
	req.NoError(err)
	req.Equal("crew", renamed.GroupName)

	added, err := f.svc.AddMembers(ctx, "alice", group.ID, []string{"dave"})
	req.NoError(err)
	req.Contains(added.Members, "dave")

	removed, err := f.svc.RemoveMember(ctx, "alice", group.ID, "bob")
	req.NoError(err)
	req.NotContains(removed.Members, "bob")

	req.Equal([]core.EventKind{
		core.EventGroupUpdate, core.EventGroupUpdate, core.EventGroupUpdate, core.EventGroupUpdate,
	}, kinds(bob))
	req.Equal([]core.EventKind{core.EventGroupUpdate, core.EventGroupUpdate}, kinds(dave))

	direct, _, err := f.svc.GetOrCreateDirect(ctx, "alice", "bob")
	req.NoError(err)
	_, err = f.svc.AddMembers(ctx, "alice", direct.ID, []string{"carol"})
	req.True(errors.Is(err, core.ErrNotFound))

	_, err = f.svc.CreateGroup(ctx, "alice", CreateGroupInput{Name: "empty"})
	req.True(errors.Is(err, core.ErrBadRequest))
}

func TestGroupMessagePushTitle(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	group, err := f.svc.CreateGroup(ctx, "alice", CreateGroupInput{Name: "team", MemberIDs: []string{"bob", "carol"}})
	req.NoError(err)

	f.notifier.EXPECT().
		Notify(gomock.Any(), gomock.InAnyOrder([]string{"bob", "carol"}), "team", "New image", gomock.Any()).
		Times(1)

	_, err = f.svc.SendMessage(ctx, "alice", SendInput{ChatID: group.ID, Type: store.MessageTypeImage, MediaURL: "/media/x.png"})
	req.NoError(err)
	f.svc.Wait()
}

func TestSendMessageDoesNotWaitForPush(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	chat, _, err := f.svc.GetOrCreateDirect(ctx, "alice", "bob")
	req.NoError(err)

	// Given a push provider that blocks until released
	release := make(chan struct{})
	pushed := make(chan error, 1)
	f.notifier.EXPECT().
		Notify(gomock.Any(), []string{"bob"}, gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(pushCtx context.Context, _ []string, _, _ string, _ map[string]string) {
			<-release
			pushed <- pushCtx.Err()
		}).
		Times(1)

	// When alice sends and her request context ends right away
	start := time.Now()
	_, err = f.svc.SendMessage(ctx, "alice", SendInput{ChatID: chat.ID, Content: "hi"})
	cancel()

	// Then the send returns without waiting for the push
	req.NoError(err)
	req.Less(time.Since(start), time.Second)

	shutdownCtx, stop := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer stop()
	req.ErrorIs(f.svc.Shutdown(shutdownCtx), context.DeadlineExceeded)

	// And the push still runs with a context detached from the request
	close(release)
	req.NoError(<-pushed)
	req.NoError(f.svc.Shutdown(context.Background()))
}

func TestListMessagesPagesOldestFirst(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()
	f.notifier.EXPECT().Notify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()

	chat, _, err := f.svc.GetOrCreateDirect(ctx, "alice", "bob")
	req.NoError(err)

	base := time.Now().UTC().Add(-time.Hour)
	tick := 0
	f.svc.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	var ids []string
	for i := 0; i < 5; i++ {
		msg, err := f.svc.SendMessage(ctx, "alice", SendInput{ChatID: chat.ID, Content: fmt.Sprint(i)})
		req.NoError(err)
		ids = append(ids, msg.ID)
	}

	page, err := f.svc.ListMessages(ctx, "bob", chat.ID, 2, nil)
	req.NoError(err)
	req.Equal([]string{ids[3], ids[4]}, []string{page[0].ID, page[1].ID})

	before := page[0].CreatedAt
	older, err := f.svc.ListMessages(ctx, "bob", chat.ID, 0, &before)
	req.NoError(err)
	req.Len(older, 3)
	req.Equal(ids[0], older[0].ID)

	_, err = f.svc.ListMessages(ctx, "carol", chat.ID, 10, nil)
	req.True(errors.Is(err, core.ErrNotMember))
}

func TestPinAndUnpin(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()
	chat, _, err := f.svc.GetOrCreateDirect(ctx, "alice", "bob")
	req.NoError(err)

	req.NoError(f.svc.Pin(ctx, "alice", chat.ID))
	views, err := f.svc.ListChats(ctx, "alice")
	req.NoError(err)
	req.True(views[0].Pinned)

	req.NoError(f.svc.Unpin(ctx, "alice", chat.ID))
	views, err = f.svc.ListChats(ctx, "alice")
	req.NoError(err)
	req.False(views[0].Pinned)

	req.True(errors.Is(f.svc.Pin(ctx, "carol", chat.ID), core.ErrNotMember))
}

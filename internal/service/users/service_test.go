package users

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

func TestProfileFlow(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	st, err := sqlite.New(":memory:")
	req.NoError(err)
	t.Cleanup(func() { _ = st.Close() })

	now := time.Now().UTC()
	req.NoError(st.CreateUser(ctx, &store.User{
		ID: "alice", UID: "ALICE001", Name: "Alice", Email: "alice@example.com", PasswordHash: "h", LastSeen: now, CreatedAt: now,
	}))
	svc := New(st)

	me, err := svc.Me(ctx, "alice")
	req.NoError(err)
	req.Equal("ALICE001", me.UID)

	found, err := svc.SearchByUID(ctx, "alice001")
	req.NoError(err)
	req.Equal("alice", found.ID)

	_, err = svc.SearchByUID(ctx, "")
	req.True(errors.Is(err, core.ErrBadRequest))
	_, err = svc.SearchByUID(ctx, "MISSING1")
	req.True(errors.Is(err, core.ErrNotFound))

	blank := "  "
	_, err = svc.UpdateProfile(ctx, "alice", store.ProfileUpdate{Name: &blank})
	req.True(errors.Is(err, core.ErrBadRequest))

	avatar := "/media/a.png"
	updated, err := svc.UpdateProfile(ctx, "alice", store.ProfileUpdate{AvatarURL: &avatar})
	req.NoError(err)
	req.Equal(avatar, updated.AvatarURL)
	req.Equal("Alice", updated.Name)
}

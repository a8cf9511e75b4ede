package delivery

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/securechat-server/internal/store"
)

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		name    string
		current store.MessageStatus
		target  store.MessageStatus
		role    Role
		kind    ChatKind
		next    store.MessageStatus
		changed bool
	}{
		{"deliver fresh", store.StatusNone, store.StatusDelivered, RoleRecipient, ChatDirect, store.StatusDelivered, true},
		{"deliver twice", store.StatusDelivered, store.StatusDelivered, RoleRecipient, ChatDirect, store.StatusDelivered, false},
		{"deliver after seen", store.StatusSeen, store.StatusDelivered, RoleRecipient, ChatDirect, store.StatusSeen, false},
		{"seen from none", store.StatusNone, store.StatusSeen, RoleRecipient, ChatDirect, store.StatusSeen, true},
		{"seen from delivered", store.StatusDelivered, store.StatusSeen, RoleRecipient, ChatDirect, store.StatusSeen, true},
		{"seen twice", store.StatusSeen, store.StatusSeen, RoleRecipient, ChatDirect, store.StatusSeen, false},
		{"sender deliver", store.StatusNone, store.StatusDelivered, RoleSender, ChatDirect, store.StatusNone, false},
		{"sender seen", store.StatusDelivered, store.StatusSeen, RoleSender, ChatDirect, store.StatusDelivered, false},
		{"group deliver", store.StatusNone, store.StatusDelivered, RoleRecipient, ChatGroup, store.StatusNone, false},
		{"group seen", store.StatusNone, store.StatusSeen, RoleRecipient, ChatGroup, store.StatusNone, false},
		{"target none", store.StatusDelivered, store.StatusNone, RoleRecipient, ChatDirect, store.StatusDelivered, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next, changed := Transition(tc.current, tc.target, tc.role, tc.kind)
			require.Equal(t, tc.next, next)
			require.Equal(t, tc.changed, changed)
		})
	}
}

func TestTransitionNeverRegresses(t *testing.T) {
	statuses := []store.MessageStatus{store.StatusNone, store.StatusDelivered, store.StatusSeen}
	for _, cur := range statuses {
		for _, target := range statuses {
			for _, role := range []Role{RoleRecipient, RoleSender} {
				for _, kind := range []ChatKind{ChatDirect, ChatGroup} {
					next, _ := Transition(cur, target, role, kind)
					require.GreaterOrEqual(t, int(next), int(cur))
				}
			}
		}
	}
}

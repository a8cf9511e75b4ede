package delivery

import "github.com/vovakirdan/securechat-server/internal/store"

// Role is the actor's relation to a message.
type Role int

const (
	RoleRecipient Role = iota
	RoleSender
)

// ChatKind distinguishes direct chats, which carry delivery status, from groups.
type ChatKind int

const (
	ChatDirect ChatKind = iota
	ChatGroup
)

// RoleOf returns the role of actorID for msg.
func RoleOf(msg *store.Message, actorID string) Role {
	if msg.SenderID == actorID {
		return RoleSender
	}
	return RoleRecipient
}

// KindOf returns the kind of chat.
func KindOf(chat *store.Chat) ChatKind {
	if chat.IsGroup {
		return ChatGroup
	}
	return ChatDirect
}

// Transition computes the status a message moves to when an actor with the
// given role asks for target. It returns changed=false for every no-op:
// group chats, the sender acting on its own message, and any target that
// is not ahead of the current status.
func Transition(current, target store.MessageStatus, role Role, kind ChatKind) (next store.MessageStatus, changed bool) {
	if kind == ChatGroup || role == RoleSender {
		return current, false
	}
	switch target {
	case store.StatusDelivered:
		if current == store.StatusNone {
			return store.StatusDelivered, true
		}
	case store.StatusSeen:
		if current == store.StatusNone || current == store.StatusDelivered {
			return store.StatusSeen, true
		}
	}
	return current, false
}

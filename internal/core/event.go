package core

import (
	"time"

	"github.com/vovakirdan/securechat-server/internal/store"
)

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventHello greets a client after admission.
	EventHello EventKind = iota
	// EventUserOnline notifies contacts that a user's first connection opened.
	EventUserOnline
	// EventUserOffline notifies contacts that a user's last connection closed.
	EventUserOffline
	// EventGroupUpdate notifies members about group creation, rename or membership changes.
	EventGroupUpdate
	// EventMessageReceive delivers a new chat message.
	EventMessageReceive
	// EventMessageStatus reports a delivered or seen transition.
	EventMessageStatus
	// EventMessageRead reports that a user read a chat.
	EventMessageRead
	// EventReactionUpdate reports a reaction set or removed.
	EventReactionUpdate
	EventTypingStart
	EventTypingStop
	// EventPong answers a client liveness probe.
	EventPong
	EventContactAdded
	EventContactRemoved
	// EventError notifies a client about a domain error.
	EventError
)

// Group update actions.
const (
	GroupCreated       = "created"
	GroupUpdated       = "updated"
	GroupMembersAdded  = "members_added"
	GroupMemberRemoved = "member_removed"
)

// Event is sent to clients to describe what happened in the system.
// Only the fields relevant to Kind are set.
type Event struct {
	Kind       EventKind
	ChatID     string
	UserID     string
	MessageID  string
	MessageIDs []string
	Status     store.MessageStatus
	Action     string
	MemberID   string
	Emoji      *string // nil on reaction removal
	Message    *store.Message
	By         string
	Other      string
	TS         time.Time
	Error      *CoreError
}

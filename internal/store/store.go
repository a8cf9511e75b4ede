package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by lookups when the referenced record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a unique constraint would be violated.
var ErrConflict = errors.New("conflict")

// PresenceStatus is the persisted online state of a user.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceOffline PresenceStatus = "offline"
)

// User represents a user in the system.
type User struct {
	ID                 string
	UID                string // short public handle used for contact search
	Name               string
	Email              string
	PasswordHash       string
	AvatarURL          string
	NotificationsToken string
	Status             PresenceStatus
	LastSeen           time.Time
	PinnedChats        []string
	CreatedAt          time.Time
}

// ProfileUpdate carries optional profile fields; nil means unchanged.
type ProfileUpdate struct {
	Name               *string
	AvatarURL          *string
	NotificationsToken *string
}

// Empty reports whether the update changes nothing.
func (p ProfileUpdate) Empty() bool {
	return p.Name == nil && p.AvatarURL == nil && p.NotificationsToken == nil
}

// Chat represents a conversation, either direct (two members) or a group.
type Chat struct {
	ID            string
	IsGroup       bool
	GroupName     string
	Members       []string
	Admins        []string
	LastMessageID string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasMember reports whether userID belongs to the chat.
func (c *Chat) HasMember(userID string) bool {
	for _, m := range c.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// HasAdmin reports whether userID administers the chat.
func (c *Chat) HasAdmin(userID string) bool {
	for _, m := range c.Admins {
		if m == userID {
			return true
		}
	}
	return false
}

// MessageType defines the payload kind of a message.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeVideo MessageType = "video"
	MessageTypeFile  MessageType = "file"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeVideo, MessageTypeFile:
		return true
	}
	return false
}

// MessageStatus is the delivery lifecycle of a direct-chat message.
// Values are ordered: a larger value is a later stage.
type MessageStatus int

const (
	StatusNone MessageStatus = iota
	StatusDelivered
	StatusSeen
)

func (s MessageStatus) String() string {
	switch s {
	case StatusDelivered:
		return "delivered"
	case StatusSeen:
		return "seen"
	default:
		return "none"
	}
}

// MarshalText encodes the status by name.
func (s MessageStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *MessageStatus) UnmarshalText(b []byte) error {
	switch string(b) {
	case "", "none":
		*s = StatusNone
	case "delivered":
		*s = StatusDelivered
	case "seen":
		*s = StatusSeen
	default:
		return errors.New("unknown message status " + string(b))
	}
	return nil
}

// Reaction is a single emoji reaction keyed by the reacting user.
type Reaction struct {
	UserID string
	Emoji  string
}

// Message represents a persisted chat message.
type Message struct {
	ID        string
	ChatID    string
	SenderID  string
	Type      MessageType
	Content   string
	MediaURL  string
	Status    MessageStatus
	ReadBy    []string
	Reactions []Reaction
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MessageFilter selects messages of one chat. Zero-valued fields do not filter.
type MessageFilter struct {
	ChatID string
	// IDs restricts the selection to an explicit subset.
	IDs []string
	// ExcludeSender drops messages authored by this user.
	ExcludeSender string
	// StatusBelow keeps messages whose status is strictly lower.
	StatusBelow *MessageStatus
	// NotReadBy keeps messages whose readBy set lacks this user.
	NotReadBy string
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser persists a new user. Returns ErrConflict on duplicate email or uid.
	CreateUser(ctx context.Context, user *User) error

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// GetUserByEmail retrieves a user by email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// GetUserByUID retrieves a user by public uid.
	GetUserByUID(ctx context.Context, uid string) (*User, error)

	// UpdateProfile applies non-nil fields and returns the updated user.
	UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (*User, error)

	// SetPresence persists the online status and last-seen time.
	SetPresence(ctx context.Context, id string, status PresenceStatus, lastSeen time.Time) error

	// AddContact records contactID in userID's contact list. Idempotent.
	AddContact(ctx context.Context, userID, contactID string) error

	// RemoveContact drops contactID from userID's contact list. Idempotent.
	RemoveContact(ctx context.Context, userID, contactID string) error

	// ListContacts returns the users in userID's contact list.
	ListContacts(ctx context.Context, userID string) ([]*User, error)

	// ContactIDs returns only the identities in userID's contact list.
	ContactIDs(ctx context.Context, userID string) ([]string, error)

	// NotificationTokens returns non-empty push tokens of the given users.
	NotificationTokens(ctx context.Context, userIDs []string) ([]string, error)

	// PinChat adds chatID to the user's pinned chats. Idempotent.
	PinChat(ctx context.Context, userID, chatID string) error

	// UnpinChat removes chatID from the user's pinned chats. Idempotent.
	UnpinChat(ctx context.Context, userID, chatID string) error
}

// ChatStore handles chat persistence.
type ChatStore interface {
	// CreateChat persists a new chat with its members and admins.
	CreateChat(ctx context.Context, chat *Chat) error

	// GetChat retrieves a chat by ID, including members and admins.
	GetChat(ctx context.Context, id string) (*Chat, error)

	// FindDirectChat returns the direct chat between two users.
	FindDirectChat(ctx context.Context, userA, userB string) (*Chat, error)

	// ListChatsForUser lists chats the user belongs to, most recently updated first.
	ListChatsForUser(ctx context.Context, userID string) ([]*Chat, error)

	// RenameGroup sets the group name.
	RenameGroup(ctx context.Context, chatID, name string) error

	// AddMembers adds users to a chat. Existing members are ignored.
	AddMembers(ctx context.Context, chatID string, userIDs []string) error

	// RemoveMember removes a user from members and admins.
	RemoveMember(ctx context.Context, chatID, userID string) error

	// SetLastMessage records the latest message and bumps the update time.
	SetLastMessage(ctx context.Context, chatID, messageID string, at time.Time) error
}

// MessageStore handles message persistence.
type MessageStore interface {
	// CreateMessage persists a message along with its initial readBy set.
	CreateMessage(ctx context.Context, msg *Message) error

	// GetMessage retrieves a message by ID.
	GetMessage(ctx context.Context, id string) (*Message, error)

	// ListMessages retrieves up to limit messages of a chat, newest first.
	// If before is set, only messages created strictly earlier are returned.
	ListMessages(ctx context.Context, chatID string, limit int, before *time.Time) ([]*Message, error)

	// FindMessages selects messages matching the filter, oldest first.
	FindMessages(ctx context.Context, filter MessageFilter) ([]*Message, error)

	// AdvanceStatus sets status on the given messages whose current status is lower.
	// Returns the ids this call actually changed.
	AdvanceStatus(ctx context.Context, ids []string, status MessageStatus) ([]string, error)

	// AddReader inserts userID into readBy of the given messages.
	// Returns the number of messages whose readBy grew.
	AddReader(ctx context.Context, ids []string, userID string) (int64, error)

	// CountUnread counts messages of a chat not yet read by userID.
	CountUnread(ctx context.Context, chatID, userID string) (int, error)

	// SetReaction sets or replaces userID's reaction on a message.
	SetReaction(ctx context.Context, messageID, userID, emoji string) error

	// RemoveReaction drops userID's reaction on a message. Idempotent.
	RemoveReaction(ctx context.Context, messageID, userID string) error
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	ChatStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}

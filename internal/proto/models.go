package proto

import (
	"time"

	"github.com/samber/lo"

	"github.com/vovakirdan/securechat-server/internal/store"
)

// User is the public view of an account.
type User struct {
	ID        string    `json:"id"`
	UID       string    `json:"uid"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
	Status    string    `json:"status"`
	LastSeen  time.Time `json:"lastSeen"`
}

// Reaction is one user's emoji on a message.
type Reaction struct {
	UserID string `json:"userId"`
	Emoji  string `json:"emoji"`
}

// Message is the wire form of a chat message.
type Message struct {
	ID        string     `json:"id"`
	ChatID    string     `json:"chatId"`
	SenderID  string     `json:"senderId"`
	Type      string     `json:"type"`
	Content   string     `json:"content,omitempty"`
	MediaURL  string     `json:"mediaUrl,omitempty"`
	Status    string     `json:"status"`
	ReadBy    []string   `json:"readBy"`
	Reactions []Reaction `json:"reactions"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Chat is the wire form of a chat.
type Chat struct {
	ID            string    `json:"id"`
	IsGroup       bool      `json:"isGroup"`
	GroupName     string    `json:"groupName,omitempty"`
	Members       []string  `json:"members"`
	Admins        []string  `json:"admins,omitempty"`
	LastMessageID string    `json:"lastMessageId,omitempty"`
	UnreadCount   *int      `json:"unreadCount,omitempty"`
	Pinned        bool      `json:"pinned,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// PublicUser hides the email of other users.
func PublicUser(u *store.User) User {
	v := SelfUser(u)
	v.Email = ""
	return v
}

// SelfUser includes the email; used for the caller's own profile.
func SelfUser(u *store.User) User {
	return User{
		ID:        u.ID,
		UID:       u.UID,
		Name:      u.Name,
		Email:     u.Email,
		AvatarURL: u.AvatarURL,
		Status:    string(u.Status),
		LastSeen:  u.LastSeen,
	}
}

// Users maps a slice of users to their public form.
func Users(us []*store.User) []User {
	return lo.Map(us, func(u *store.User, _ int) User { return PublicUser(u) })
}

// MessageFrom maps a stored message.
func MessageFrom(m *store.Message) Message {
	readBy := m.ReadBy
	if readBy == nil {
		readBy = []string{}
	}
	return Message{
		ID:        m.ID,
		ChatID:    m.ChatID,
		SenderID:  m.SenderID,
		Type:      string(m.Type),
		Content:   m.Content,
		MediaURL:  m.MediaURL,
		Status:    m.Status.String(),
		ReadBy:    readBy,
		Reactions: lo.Map(m.Reactions, func(r store.Reaction, _ int) Reaction { return Reaction{UserID: r.UserID, Emoji: r.Emoji} }),
		CreatedAt: m.CreatedAt,
	}
}

// Messages maps a slice of stored messages.
func Messages(ms []*store.Message) []Message {
	return lo.Map(ms, func(m *store.Message, _ int) Message { return MessageFrom(m) })
}

// ChatFrom maps a stored chat.
func ChatFrom(c *store.Chat) Chat {
	return Chat{
		ID:            c.ID,
		IsGroup:       c.IsGroup,
		GroupName:     c.GroupName,
		Members:       c.Members,
		Admins:        c.Admins,
		LastMessageID: c.LastMessageID,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

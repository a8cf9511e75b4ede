package mongodb

import (
	"time"

	"github.com/vovakirdan/securechat-server/internal/store"
)

type userDoc struct {
	ID                 string    `bson:"_id"`
	UID                string    `bson:"uid"`
	Name               string    `bson:"name"`
	Email              string    `bson:"email"`
	PasswordHash       string    `bson:"passwordHash"`
	AvatarURL          string    `bson:"avatarUrl"`
	NotificationsToken string    `bson:"notificationsToken"`
	Status             string    `bson:"status"`
	LastSeen           time.Time `bson:"lastSeen"`
	Contacts           []string  `bson:"contacts"`
	PinnedChats        []string  `bson:"pinnedChats"`
	CreatedAt          time.Time `bson:"createdAt"`
}

func (d *userDoc) toUser() *store.User {
	return &store.User{
		ID:                 d.ID,
		UID:                d.UID,
		Name:               d.Name,
		Email:              d.Email,
		PasswordHash:       d.PasswordHash,
		AvatarURL:          d.AvatarURL,
		NotificationsToken: d.NotificationsToken,
		Status:             store.PresenceStatus(d.Status),
		LastSeen:           d.LastSeen,
		PinnedChats:        d.PinnedChats,
		CreatedAt:          d.CreatedAt,
	}
}

type chatDoc struct {
	ID          string    `bson:"_id"`
	IsGroup     bool      `bson:"isGroup"`
	GroupName   string    `bson:"groupName"`
	Members     []string  `bson:"members"`
	Admins      []string  `bson:"admins"`
	LastMessage string    `bson:"lastMessage"`
	CreatedAt   time.Time `bson:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt"`
}

func (d *chatDoc) toChat() *store.Chat {
	return &store.Chat{
		ID:            d.ID,
		IsGroup:       d.IsGroup,
		GroupName:     d.GroupName,
		Members:       d.Members,
		Admins:        d.Admins,
		LastMessageID: d.LastMessage,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

type reactionDoc struct {
	User  string `bson:"user"`
	Emoji string `bson:"emoji"`
}

type messageDoc struct {
	ID        string        `bson:"_id"`
	ChatID    string        `bson:"chatId"`
	Sender    string        `bson:"sender"`
	Type      string        `bson:"type"`
	Content   string        `bson:"content"`
	MediaURL  string        `bson:"mediaUrl"`
	Status    int           `bson:"status"`
	ReadBy    []string      `bson:"readBy"`
	Reactions []reactionDoc `bson:"reactions"`
	CreatedAt time.Time     `bson:"createdAt"`
	UpdatedAt time.Time     `bson:"updatedAt"`
}

func newMessageDoc(m *store.Message) *messageDoc {
	doc := &messageDoc{
		ID:        m.ID,
		ChatID:    m.ChatID,
		Sender:    m.SenderID,
		Type:      string(m.Type),
		Content:   m.Content,
		MediaURL:  m.MediaURL,
		Status:    int(m.Status),
		ReadBy:    m.ReadBy,
		Reactions: []reactionDoc{},
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if doc.ReadBy == nil {
		doc.ReadBy = []string{}
	}
	for _, r := range m.Reactions {
		doc.Reactions = append(doc.Reactions, reactionDoc{User: r.UserID, Emoji: r.Emoji})
	}
	return doc
}

func (d *messageDoc) toMessage() *store.Message {
	msg := &store.Message{
		ID:        d.ID,
		ChatID:    d.ChatID,
		SenderID:  d.Sender,
		Type:      store.MessageType(d.Type),
		Content:   d.Content,
		MediaURL:  d.MediaURL,
		Status:    store.MessageStatus(d.Status),
		ReadBy:    d.ReadBy,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	for _, r := range d.Reactions {
		msg.Reactions = append(msg.Reactions, store.Reaction{UserID: r.User, Emoji: r.Emoji})
	}
	return msg
}

// Package chats manages direct and group conversations and sends messages into them.
package chats

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/securechat-server/internal/core"
	"github.com/vovakirdan/securechat-server/internal/notify"
	"github.com/vovakirdan/securechat-server/internal/store"
	"github.com/vovakirdan/securechat-server/internal/utils"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

var validate = validator.New()

// Store is the persistence the chat service needs.
type Store interface {
	GetUserByID(ctx context.Context, id string) (*store.User, error)
	PinChat(ctx context.Context, userID, chatID string) error
	UnpinChat(ctx context.Context, userID, chatID string) error

	CreateChat(ctx context.Context, chat *store.Chat) error
	GetChat(ctx context.Context, id string) (*store.Chat, error)
	FindDirectChat(ctx context.Context, userA, userB string) (*store.Chat, error)
	ListChatsForUser(ctx context.Context, userID string) ([]*store.Chat, error)
	RenameGroup(ctx context.Context, chatID, name string) error
	AddMembers(ctx context.Context, chatID string, userIDs []string) error
	RemoveMember(ctx context.Context, chatID, userID string) error
	SetLastMessage(ctx context.Context, chatID, messageID string, at time.Time) error

	CreateMessage(ctx context.Context, msg *store.Message) error
	ListMessages(ctx context.Context, chatID string, limit int, before *time.Time) ([]*store.Message, error)
	CountUnread(ctx context.Context, chatID, userID string) (int, error)
}

// Broadcaster delivers events to users and chat rooms.
type Broadcaster interface {
	ToUsers(userIDs []string, ev *core.Event) int
	ToRoomAndUsers(roomID string, userIDs []string, ev *core.Event, except *core.Client) int
}

// ChatView is a chat as listed for one user.
type ChatView struct {
	*store.Chat
	UnreadCount int
	Pinned      bool
}

// CreateGroupInput describes a new group.
type CreateGroupInput struct {
	Name      string   `validate:"required,max=100"`
	MemberIDs []string `validate:"required,min=1,dive,required"`
}

// SendInput describes a new message.
type SendInput struct {
	ChatID   string            `validate:"required"`
	Type     store.MessageType `validate:"omitempty,oneof=text image video file"`
	Content  string            `validate:"max=10000"`
	MediaURL string            `validate:"omitempty,max=2048"`
}

// Service implements chat and message operations.
type Service struct {
	store    Store
	events   Broadcaster
	notifier notify.Notifier
	logger   *zerolog.Logger
	now      func() time.Time

	pushes sync.WaitGroup
}

// New creates a chat service. A nil notifier disables push notifications.
func New(st Store, events Broadcaster, notifier notify.Notifier, logger *zerolog.Logger) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{
		store:    st,
		events:   events,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// IsMember reports whether userID belongs to chatID.
func (s *Service) IsMember(ctx context.Context, chatID, userID string) (bool, error) {
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return chat.HasMember(userID), nil
}

// Chat returns chatID if userID is a member.
func (s *Service) Chat(ctx context.Context, userID, chatID string) (*store.Chat, error) {
	return s.memberChat(ctx, chatID, userID)
}

// ListChats returns the user's chats, most recently active first, with unread counts.
func (s *Service) ListChats(ctx context.Context, userID string) ([]ChatView, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, translate(err, "user")
	}
	chats, err := s.store.ListChatsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}

	views := make([]ChatView, 0, len(chats))
	for _, c := range chats {
		unread, err := s.store.CountUnread(ctx, c.ID, userID)
		if err != nil {
			return nil, fmt.Errorf("count unread: %w", err)
		}
		views = append(views, ChatView{
			Chat:        c,
			UnreadCount: unread,
			Pinned:      slices.Contains(user.PinnedChats, c.ID),
		})
	}
	return views, nil
}

// GetOrCreateDirect returns the direct chat between userID and otherID,
// creating it on first use.
func (s *Service) GetOrCreateDirect(ctx context.Context, userID, otherID string) (*store.Chat, bool, error) {
	if otherID == "" {
		return nil, false, fmt.Errorf("%w: userId is required", core.ErrBadRequest)
	}
	if otherID == userID {
		return nil, false, fmt.Errorf("%w: cannot chat with yourself", core.ErrBadRequest)
	}
	if _, err := s.store.GetUserByID(ctx, otherID); err != nil {
		return nil, false, translate(err, "user")
	}

	chat, err := s.store.FindDirectChat(ctx, userID, otherID)
	if err == nil {
		return chat, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, fmt.Errorf("find direct chat: %w", err)
	}

	now := s.now()
	chat = &store.Chat{
		ID:        utils.NewID(),
		Members:   []string{userID, otherID},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateChat(ctx, chat); err != nil {
		return nil, false, fmt.Errorf("create direct chat: %w", err)
	}
	return chat, true, nil
}

// CreateGroup creates a group administered by creatorID.
func (s *Service) CreateGroup(ctx context.Context, creatorID string, in CreateGroupInput) (*store.Chat, error) {
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: groupName and memberIds required", core.ErrBadRequest)
	}

	now := s.now()
	chat := &store.Chat{
		ID:        utils.NewID(),
		IsGroup:   true,
		GroupName: in.Name,
		Members:   lo.Uniq(append([]string{creatorID}, in.MemberIDs...)),
		Admins:    []string{creatorID},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateChat(ctx, chat); err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}

	s.groupUpdate(chat.ID, chat.Members, core.GroupCreated, "")
	return chat, nil
}

// RenameGroup changes a group's name. Admins only.
func (s *Service) RenameGroup(ctx context.Context, actorID, chatID, name string) (*store.Chat, error) {
	chat, err := s.adminGroup(ctx, actorID, chatID)
	if err != nil {
		return nil, err
	}
	if name != "" {
		if err := s.store.RenameGroup(ctx, chatID, name); err != nil {
			return nil, translate(err, "group")
		}
	}
	s.groupUpdate(chatID, chat.Members, core.GroupUpdated, "")
	return s.reload(ctx, chatID)
}

// AddMembers adds users to a group. Admins only.
func (s *Service) AddMembers(ctx context.Context, actorID, chatID string, memberIDs []string) (*store.Chat, error) {
	memberIDs = lo.Compact(lo.Uniq(memberIDs))
	if len(memberIDs) == 0 {
		return nil, fmt.Errorf("%w: memberIds required", core.ErrBadRequest)
	}
	if _, err := s.adminGroup(ctx, actorID, chatID); err != nil {
		return nil, err
	}
	if err := s.store.AddMembers(ctx, chatID, memberIDs); err != nil {
		return nil, fmt.Errorf("add members: %w", err)
	}

	chat, err := s.reload(ctx, chatID)
	if err != nil {
		return nil, err
	}
	s.groupUpdate(chatID, chat.Members, core.GroupMembersAdded, "")
	return chat, nil
}

// RemoveMember removes memberID from a group. Admins only. The removed
// member is notified along with the remaining members.
func (s *Service) RemoveMember(ctx context.Context, actorID, chatID, memberID string) (*store.Chat, error) {
	if memberID == "" {
		return nil, fmt.Errorf("%w: memberId required", core.ErrBadRequest)
	}
	if _, err := s.adminGroup(ctx, actorID, chatID); err != nil {
		return nil, err
	}
	if err := s.store.RemoveMember(ctx, chatID, memberID); err != nil {
		return nil, fmt.Errorf("remove member: %w", err)
	}

	chat, err := s.reload(ctx, chatID)
	if err != nil {
		return nil, err
	}
	s.groupUpdate(chatID, append(slices.Clone(chat.Members), memberID), core.GroupMemberRemoved, memberID)
	return chat, nil
}

// Pin pins chatID for userID.
func (s *Service) Pin(ctx context.Context, userID, chatID string) error {
	if _, err := s.memberChat(ctx, chatID, userID); err != nil {
		return err
	}
	if err := s.store.PinChat(ctx, userID, chatID); err != nil {
		return fmt.Errorf("pin chat: %w", err)
	}
	return nil
}

// Unpin unpins chatID for userID.
func (s *Service) Unpin(ctx context.Context, userID, chatID string) error {
	if chatID == "" {
		return fmt.Errorf("%w: chatId required", core.ErrBadRequest)
	}
	if err := s.store.UnpinChat(ctx, userID, chatID); err != nil {
		return fmt.Errorf("unpin chat: %w", err)
	}
	return nil
}

// SendMessage stores a message from senderID and delivers it to the chat.
// Live clients get message:receive once each; other members also get a
// best-effort push notification.
func (s *Service) SendMessage(ctx context.Context, senderID string, in SendInput) (*store.Message, error) {
	if in.Type == "" {
		in.Type = store.MessageTypeText
	}
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrBadRequest, err.Error())
	}
	if in.Content == "" && in.MediaURL == "" {
		return nil, fmt.Errorf("%w: content or mediaUrl required", core.ErrBadRequest)
	}

	chat, err := s.memberChat(ctx, in.ChatID, senderID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	msg := &store.Message{
		ID:        utils.NewID(),
		ChatID:    chat.ID,
		SenderID:  senderID,
		Type:      in.Type,
		Content:   in.Content,
		MediaURL:  in.MediaURL,
		Status:    store.StatusNone,
		ReadBy:    []string{senderID},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	if err := s.store.SetLastMessage(ctx, chat.ID, msg.ID, now); err != nil {
		s.logger.Warn().Err(err).Str("chat_id", chat.ID).Msg("update last message failed")
	}

	others := lo.Without(chat.Members, senderID)
	n := s.events.ToRoomAndUsers(chat.ID, others, &core.Event{
		Kind:    core.EventMessageReceive,
		ChatID:  chat.ID,
		Message: msg,
	}, nil)
	s.logger.Debug().
		Str("chat_id", chat.ID).
		Str("message_id", msg.ID).
		Int("delivered", n).
		Msg("message sent")

	if len(others) > 0 {
		title, body := pushText(chat, msg)
		data := map[string]string{"chatId": chat.ID}
		pushCtx := context.WithoutCancel(ctx)
		s.pushes.Add(1)
		go func() {
			defer s.pushes.Done()
			s.notifier.Notify(pushCtx, others, title, body, data)
		}()
	}
	return msg, nil
}

// Wait blocks until every in-flight push notification has returned.
func (s *Service) Wait() {
	s.pushes.Wait()
}

// Shutdown waits for in-flight push notifications or until ctx is done.
func (s *Service) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pushes.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ListMessages returns up to limit messages older than before, oldest first.
func (s *Service) ListMessages(ctx context.Context, userID, chatID string, limit int, before *time.Time) ([]*store.Message, error) {
	if _, err := s.memberChat(ctx, chatID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	limit = min(limit, MaxPageSize)

	msgs, err := s.store.ListMessages(ctx, chatID, limit, before)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	slices.Reverse(msgs)
	return msgs, nil
}

func (s *Service) memberChat(ctx context.Context, chatID, userID string) (*store.Chat, error) {
	if chatID == "" {
		return nil, fmt.Errorf("%w: chatId required", core.ErrBadRequest)
	}
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		return nil, translate(err, "chat")
	}
	if !chat.HasMember(userID) {
		return nil, core.ErrNotMember
	}
	return chat, nil
}

func (s *Service) adminGroup(ctx context.Context, actorID, chatID string) (*store.Chat, error) {
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		return nil, translate(err, "group")
	}
	if !chat.IsGroup {
		return nil, fmt.Errorf("group: %w", core.ErrNotFound)
	}
	if !chat.HasAdmin(actorID) {
		return nil, fmt.Errorf("%w: admins only", core.ErrForbidden)
	}
	return chat, nil
}

func (s *Service) reload(ctx context.Context, chatID string) (*store.Chat, error) {
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		return nil, translate(err, "chat")
	}
	return chat, nil
}

func (s *Service) groupUpdate(chatID string, members []string, action, memberID string) {
	s.events.ToUsers(members, &core.Event{
		Kind:     core.EventGroupUpdate,
		ChatID:   chatID,
		Action:   action,
		MemberID: memberID,
	})
}

func pushText(chat *store.Chat, msg *store.Message) (title, body string) {
	title = "New message"
	if chat.IsGroup {
		title = chat.GroupName
		if title == "" {
			title = "New group message"
		}
	}
	body = "New text message"
	if msg.Type != store.MessageTypeText {
		body = "New " + string(msg.Type)
	}
	return title, body
}

func translate(err error, what string) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s: %w", what, core.ErrNotFound)
	}
	return fmt.Errorf("load %s: %w", what, err)
}

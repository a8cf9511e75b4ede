// Package delivery advances message delivery status and read receipts and
// notifies chat participants about the changes.
package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/securechat-server/internal/core"
	"github.com/vovakirdan/securechat-server/internal/store"
)

// Store is the persistence the delivery service needs.
type Store interface {
	GetChat(ctx context.Context, id string) (*store.Chat, error)
	GetMessage(ctx context.Context, id string) (*store.Message, error)
	FindMessages(ctx context.Context, filter store.MessageFilter) ([]*store.Message, error)
	AdvanceStatus(ctx context.Context, ids []string, status store.MessageStatus) ([]string, error)
	AddReader(ctx context.Context, ids []string, userID string) (int64, error)
	SetReaction(ctx context.Context, messageID, userID, emoji string) error
	RemoveReaction(ctx context.Context, messageID, userID string) error
}

// Broadcaster fans chat-scoped events out to the chat room and its members.
type Broadcaster interface {
	ToRoomAndUsers(roomID string, userIDs []string, ev *core.Event, except *core.Client) int
}

// Result reports how many messages an operation changed.
type Result struct {
	Updated    int      `json:"updated"`
	Seen       int      `json:"seen,omitempty"`
	MessageIDs []string `json:"messageIds,omitempty"`
}

// Service implements delivered/seen transitions, read receipts and reactions.
type Service struct {
	store  Store
	events Broadcaster
	logger *zerolog.Logger
}

// New creates a delivery service.
func New(st Store, events Broadcaster, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{store: st, events: events, logger: logger}
}

// MarkDelivered marks a single message delivered to actorID.
// Repeated calls, the sender's own calls and group messages report zero updates.
func (s *Service) MarkDelivered(ctx context.Context, actorID, messageID string) (Result, error) {
	if messageID == "" {
		return Result{}, fmt.Errorf("%w: messageId is required", core.ErrBadRequest)
	}

	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return Result{}, translate(err, "message")
	}
	chat, err := s.memberChat(ctx, msg.ChatID, actorID)
	if err != nil {
		return Result{}, err
	}

	if _, changed := Transition(msg.Status, store.StatusDelivered, RoleOf(msg, actorID), KindOf(chat)); !changed {
		return Result{}, nil
	}

	ids, err := s.store.AdvanceStatus(ctx, []string{msg.ID}, store.StatusDelivered)
	if err != nil {
		return Result{}, fmt.Errorf("mark delivered: %w", err)
	}
	if len(ids) == 0 {
		return Result{}, nil
	}

	s.emitStatus(chat, ids, store.StatusDelivered, actorID)
	return Result{Updated: len(ids), MessageIDs: ids}, nil
}

// MarkDeliveredBulk marks every message of chatID sent by others and not yet
// delivered as delivered. If messageIDs is non-empty only those are considered.
// Seen messages are never moved back.
func (s *Service) MarkDeliveredBulk(ctx context.Context, actorID, chatID string, messageIDs []string) (Result, error) {
	if chatID == "" {
		return Result{}, fmt.Errorf("%w: chatId is required", core.ErrBadRequest)
	}
	chat, err := s.memberChat(ctx, chatID, actorID)
	if err != nil {
		return Result{}, err
	}
	if chat.IsGroup {
		return Result{}, nil
	}

	below := store.StatusDelivered
	candidates, err := s.store.FindMessages(ctx, store.MessageFilter{
		ChatID:        chatID,
		IDs:           lo.Uniq(messageIDs),
		ExcludeSender: actorID,
		StatusBelow:   &below,
	})
	if err != nil {
		return Result{}, fmt.Errorf("find undelivered: %w", err)
	}

	ids := eligible(candidates, store.StatusDelivered, actorID, KindOf(chat))
	if len(ids) == 0 {
		return Result{}, nil
	}

	// A concurrent call may advance some candidates first; report only ours.
	changed, err := s.store.AdvanceStatus(ctx, ids, store.StatusDelivered)
	if err != nil {
		return Result{}, fmt.Errorf("mark delivered: %w", err)
	}
	if len(changed) == 0 {
		return Result{}, nil
	}

	s.emitStatus(chat, changed, store.StatusDelivered, actorID)
	return Result{Updated: len(changed), MessageIDs: changed}, nil
}

// MarkRead adds actorID to readBy of every message in chatID it has not read.
// In direct chats the newly read messages from the other party become seen.
func (s *Service) MarkRead(ctx context.Context, actorID, chatID string, messageIDs []string) (Result, error) {
	return s.MarkReadFrom(ctx, nil, actorID, chatID, messageIDs)
}

// MarkReadFrom is MarkRead for a receipt sent over a live connection; origin
// does not get its own message:read back.
func (s *Service) MarkReadFrom(ctx context.Context, origin *core.Client, actorID, chatID string, messageIDs []string) (Result, error) {
	if chatID == "" {
		return Result{}, fmt.Errorf("%w: chatId is required", core.ErrBadRequest)
	}
	chat, err := s.memberChat(ctx, chatID, actorID)
	if err != nil {
		return Result{}, err
	}

	unread, err := s.store.FindMessages(ctx, store.MessageFilter{
		ChatID:    chatID,
		IDs:       lo.Uniq(messageIDs),
		NotReadBy: actorID,
	})
	if err != nil {
		return Result{}, fmt.Errorf("find unread: %w", err)
	}

	var res Result
	var seenIDs []string
	if len(unread) > 0 {
		ids := lo.Map(unread, func(m *store.Message, _ int) string { return m.ID })
		added, err := s.store.AddReader(ctx, ids, actorID)
		if err != nil {
			return Result{}, fmt.Errorf("add reader: %w", err)
		}
		res.Updated = int(added)
		res.MessageIDs = ids

		// Only direct chats reach seen, and only for the other party's messages.
		if candidates := eligible(unread, store.StatusSeen, actorID, KindOf(chat)); len(candidates) > 0 {
			seenIDs, err = s.store.AdvanceStatus(ctx, candidates, store.StatusSeen)
			if err != nil {
				return Result{}, fmt.Errorf("mark seen: %w", err)
			}
			res.Seen = len(seenIDs)
		}
	}

	s.events.ToRoomAndUsers(chat.ID, chat.Members, &core.Event{
		Kind:   core.EventMessageRead,
		ChatID: chat.ID,
		UserID: actorID,
	}, origin)
	if res.Seen > 0 {
		s.emitStatus(chat, seenIDs, store.StatusSeen, actorID)
	}
	return res, nil
}

// AddReaction sets or replaces actorID's reaction on a message.
func (s *Service) AddReaction(ctx context.Context, actorID, messageID, emoji string) (Result, error) {
	if messageID == "" || emoji == "" {
		return Result{}, fmt.Errorf("%w: messageId and emoji are required", core.ErrBadRequest)
	}
	chat, err := s.messageChat(ctx, actorID, messageID)
	if err != nil {
		return Result{}, err
	}
	if err := s.store.SetReaction(ctx, messageID, actorID, emoji); err != nil {
		return Result{}, translate(err, "message")
	}
	s.emitReaction(chat, messageID, actorID, &emoji)
	return Result{Updated: 1, MessageIDs: []string{messageID}}, nil
}

// RemoveReaction removes actorID's reaction from a message.
func (s *Service) RemoveReaction(ctx context.Context, actorID, messageID string) (Result, error) {
	if messageID == "" {
		return Result{}, fmt.Errorf("%w: messageId is required", core.ErrBadRequest)
	}
	chat, err := s.messageChat(ctx, actorID, messageID)
	if err != nil {
		return Result{}, err
	}
	if err := s.store.RemoveReaction(ctx, messageID, actorID); err != nil {
		return Result{}, fmt.Errorf("remove reaction: %w", err)
	}
	s.emitReaction(chat, messageID, actorID, nil)
	return Result{Updated: 1, MessageIDs: []string{messageID}}, nil
}

func (s *Service) messageChat(ctx context.Context, actorID, messageID string) (*store.Chat, error) {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, translate(err, "message")
	}
	return s.memberChat(ctx, msg.ChatID, actorID)
}

func (s *Service) memberChat(ctx context.Context, chatID, actorID string) (*store.Chat, error) {
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		return nil, translate(err, "chat")
	}
	if !chat.HasMember(actorID) {
		return nil, core.ErrNotMember
	}
	return chat, nil
}

func (s *Service) emitStatus(chat *store.Chat, ids []string, status store.MessageStatus, actorID string) {
	n := s.events.ToRoomAndUsers(chat.ID, chat.Members, &core.Event{
		Kind:       core.EventMessageStatus,
		ChatID:     chat.ID,
		MessageIDs: ids,
		Status:     status,
		UserID:     actorID,
	}, nil)
	s.logger.Debug().
		Str("chat_id", chat.ID).
		Str("status", status.String()).
		Int("messages", len(ids)).
		Int("delivered", n).
		Msg("message status changed")
}

func (s *Service) emitReaction(chat *store.Chat, messageID, actorID string, emoji *string) {
	s.events.ToRoomAndUsers(chat.ID, chat.Members, &core.Event{
		Kind:      core.EventReactionUpdate,
		ChatID:    chat.ID,
		MessageID: messageID,
		UserID:    actorID,
		Emoji:     emoji,
	}, nil)
}

// eligible returns the IDs of msgs that Transition would move to target.
func eligible(msgs []*store.Message, target store.MessageStatus, actorID string, kind ChatKind) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if _, changed := Transition(m.Status, target, RoleOf(m, actorID), kind); changed {
			out = append(out, m.ID)
		}
	}
	return out
}

func translate(err error, what string) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s: %w", what, core.ErrNotFound)
	}
	return fmt.Errorf("load %s: %w", what, err)
}

package http

import (
	"encoding/json"
	"fmt"

	"github.com/vovakirdan/securechat-server/internal/core"
	"github.com/vovakirdan/securechat-server/internal/proto"
)

var errMalformed = fmt.Errorf("%w: malformed payload", core.ErrBadRequest)

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, errMalformed
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, errMalformed
	}
	return v, nil
}

func chatRef(raw json.RawMessage) (string, error) {
	ref, err := decode[proto.ChatRef](raw)
	if err != nil {
		return "", err
	}
	if ref.ChatID == "" {
		return "", fmt.Errorf("%w: chatId is required", core.ErrBadRequest)
	}
	return ref.ChatID, nil
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventHello:
		return proto.Outbound{Event: proto.OutHello, Data: proto.Hello{UserID: event.UserID, TS: proto.Millis(event.TS)}}
	case core.EventPong:
		return proto.Outbound{Event: proto.OutPong, Data: proto.Pong{TS: proto.Millis(event.TS)}}
	case core.EventUserOnline:
		return proto.Outbound{Event: proto.OutUserOnline, Data: proto.Presence{UserID: event.UserID}}
	case core.EventUserOffline:
		return proto.Outbound{Event: proto.OutUserOffline, Data: proto.Presence{UserID: event.UserID}}
	case core.EventGroupUpdate:
		return proto.Outbound{
			Event: proto.OutGroupUpdate,
			Data:  proto.GroupUpdate{ChatID: event.ChatID, Action: event.Action, MemberID: event.MemberID},
		}
	case core.EventMessageReceive:
		if event.Message == nil {
			break
		}
		return proto.Outbound{
			Event: proto.OutMessageReceive,
			Data:  proto.MessageReceive{ChatID: event.ChatID, Message: proto.MessageFrom(event.Message)},
		}
	case core.EventMessageStatus:
		return proto.Outbound{
			Event: proto.OutMessageStatus,
			Data: proto.MessageStatus{
				ChatID:     event.ChatID,
				MessageIDs: event.MessageIDs,
				Status:     event.Status.String(),
				UserID:     event.UserID,
			},
		}
	case core.EventMessageRead:
		return proto.Outbound{Event: proto.OutMessageRead, Data: proto.MessageRead{ChatID: event.ChatID, UserID: event.UserID}}
	case core.EventReactionUpdate:
		return proto.Outbound{
			Event: proto.OutReactionUpdate,
			Data: proto.ReactionUpdate{
				ChatID:    event.ChatID,
				MessageID: event.MessageID,
				UserID:    event.UserID,
				Emoji:     event.Emoji,
			},
		}
	case core.EventTypingStart:
		return proto.Outbound{Event: proto.OutTypingStart, Data: proto.Typing{ChatID: event.ChatID, UserID: event.UserID}}
	case core.EventTypingStop:
		return proto.Outbound{Event: proto.OutTypingStop, Data: proto.Typing{ChatID: event.ChatID, UserID: event.UserID}}
	case core.EventContactAdded:
		return proto.Outbound{Event: proto.OutContactAdded, Data: proto.ContactChange{By: event.By, Other: event.Other}}
	case core.EventContactRemoved:
		return proto.Outbound{Event: proto.OutContactRemoved, Data: proto.ContactChange{By: event.By, Other: event.Other}}
	case core.EventError:
		if event.Error == nil {
			break
		}
		return proto.Outbound{Event: proto.OutError, Data: proto.Error{Code: event.Error.Code, Msg: event.Error.Message}}
	}
	return proto.Outbound{Event: proto.OutError, Data: proto.Error{Code: core.ErrCodeInternal, Msg: "unknown event"}}
}

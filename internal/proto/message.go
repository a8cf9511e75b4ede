// Package proto defines the websocket wire format and the JSON payloads
// shared with the REST API.
package proto

import (
	"encoding/json"
	"strings"
	"time"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Inbound event names.
const (
	InJoinChat         = "join:chat"
	InLeaveChat        = "leave:chat"
	InTypingStart      = "typing:start"
	InTypingStop       = "typing:stop"
	InMessageRead      = "message:read"
	InMessageDelivered = "message:delivered"
	InPing             = "ping:client"
)

// Outbound event names.
const (
	OutHello          = "hello"
	OutUserOnline     = "user:online"
	OutUserOffline    = "user:offline"
	OutGroupUpdate    = "group:update"
	OutMessageReceive = "message:receive"
	OutMessageStatus  = "message:status"
	OutMessageRead    = "message:read"
	OutReactionUpdate = "reaction:update"
	OutTypingStart    = "typing:start"
	OutTypingStop     = "typing:stop"
	OutPong           = "pong:server"
	OutContactAdded   = "contact:added"
	OutContactRemoved = "contact:removed"
	OutError          = "error"
)

// ChatRef names a chat. Clients may send either a bare string or {"chatId": ...}.
type ChatRef struct {
	ChatID string `json:"chatId"`
}

// UnmarshalJSON accepts both encodings.
func (r *ChatRef) UnmarshalJSON(b []byte) error {
	var id string
	if err := json.Unmarshal(b, &id); err == nil {
		r.ChatID = strings.TrimSpace(id)
		return nil
	}
	type plain ChatRef
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	r.ChatID = strings.TrimSpace(p.ChatID)
	return nil
}

// ReadData asks to mark a chat read.
type ReadData struct {
	ChatID     string   `json:"chatId"`
	MessageIDs []string `json:"messageIds,omitempty"`
}

// DeliveredData marks either a single message or a chat (optionally a subset) delivered.
type DeliveredData struct {
	MessageID  string   `json:"messageId,omitempty"`
	ChatID     string   `json:"chatId,omitempty"`
	MessageIDs []string `json:"messageIds,omitempty"`
}

// Hello greets an admitted connection.
type Hello struct {
	UserID string `json:"userId"`
	TS     int64  `json:"ts"`
}

// Pong answers a liveness probe.
type Pong struct {
	TS int64 `json:"ts"`
}

// Presence announces a contact's online state.
type Presence struct {
	UserID string `json:"userId"`
}

// GroupUpdate reports a group lifecycle change.
type GroupUpdate struct {
	ChatID   string `json:"chatId"`
	Action   string `json:"action"`
	MemberID string `json:"memberId,omitempty"`
}

// MessageReceive delivers a new message.
type MessageReceive struct {
	ChatID  string  `json:"chatId"`
	Message Message `json:"message"`
}

// MessageStatus reports a status transition of one or more messages.
type MessageStatus struct {
	ChatID     string   `json:"chatId"`
	MessageIDs []string `json:"messageIds"`
	Status     string   `json:"status"`
	UserID     string   `json:"userId"`
}

// MessageRead reports that a user read a chat.
type MessageRead struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

// ReactionUpdate reports a reaction change. Emoji is null on removal.
type ReactionUpdate struct {
	ChatID    string  `json:"chatId"`
	MessageID string  `json:"messageId"`
	UserID    string  `json:"userId"`
	Emoji     *string `json:"emoji"`
}

// Typing relays a typing indicator.
type Typing struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

// ContactChange reports a contact added or removed.
type ContactChange struct {
	By    string `json:"by"`
	Other string `json:"other"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// Millis returns t as unix milliseconds.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/securechat-server/internal/auth"
	"github.com/vovakirdan/securechat-server/internal/core"
	"github.com/vovakirdan/securechat-server/internal/proto"
	"github.com/vovakirdan/securechat-server/internal/service/delivery"
)

// Membership answers whether a user may join a chat room.
type Membership interface {
	IsMember(ctx context.Context, chatID, userID string) (bool, error)
}

// Receipts drives read and delivered receipts sent over the socket.
type Receipts interface {
	MarkReadFrom(ctx context.Context, origin *core.Client, actorID, chatID string, messageIDs []string) (delivery.Result, error)
	MarkDelivered(ctx context.Context, actorID, messageID string) (delivery.Result, error)
	MarkDeliveredBulk(ctx context.Context, actorID, chatID string, messageIDs []string) (delivery.Result, error)
}

// WSOptions tunes websocket connections.
type WSOptions struct {
	PingInterval    time.Duration
	MaxMessageBytes int64
	RateLimit       int
}

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub      *core.Hub
	gate     *auth.Gate
	members  Membership
	receipts Receipts
	opts     WSOptions
	log      *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, gate *auth.Gate, members Membership, receipts Receipts, opts WSOptions, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{
		hub:      hub,
		gate:     gate,
		members:  members,
		receipts: receipts,
		opts:     opts,
		log:      logger,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	principal, err := h.gate.Authenticate(auth.Credentials{
		AuthField: r.Header.Get("X-Auth-Token"),
		Query:     r.URL.Query().Get("token"),
		Header:    r.Header.Get("Authorization"),
	})
	if err != nil {
		h.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("ws auth refused")
		stdhttp.Error(w, "unauthorized", stdhttp.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	if h.opts.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.opts.MaxMessageBytes)
	}

	client := h.hub.Connect(principal.UserID)
	defer h.hub.Disconnect(client)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	errCh := make(chan error, 3)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.pingLoop(ctx, conn)
	}()

	err = <-errCh
	cancel() // stop the other goroutines
	<-errCh
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("conn_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	limiter := newRateLimiter(h.opts.RateLimit, time.Minute)
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}
		if !limiter.allow() {
			client.Send(core.ErrorEvent(fmt.Errorf("%w: rate limit exceeded", core.ErrBadRequest)))
			continue
		}
		if err := h.handleInbound(ctx, client, inbound); err != nil {
			h.log.Debug().
				Err(err).
				Str("conn_id", client.ID).
				Str("event", inbound.Event).
				Msg("inbound event rejected")
			client.Send(core.ErrorEvent(err))
		}
	}
}

func (h *WSHandler) handleInbound(ctx context.Context, client *core.Client, inbound proto.Inbound) error {
	switch inbound.Event {
	case proto.InJoinChat:
		chatID, err := chatRef(inbound.Data)
		if err != nil {
			return err
		}
		ok, err := h.members.IsMember(ctx, chatID, client.UserID)
		if err != nil {
			return err
		}
		if !ok {
			return core.ErrNotMember
		}
		return h.hub.Join(client, chatID)
	case proto.InLeaveChat:
		chatID, err := chatRef(inbound.Data)
		if err != nil {
			return err
		}
		return h.hub.Leave(client, chatID)
	case proto.InTypingStart, proto.InTypingStop:
		chatID, err := chatRef(inbound.Data)
		if err != nil {
			return err
		}
		// Only relay into rooms this connection has been admitted to.
		if !client.Joined(chatID) {
			return core.ErrNotMember
		}
		kind := core.EventTypingStart
		if inbound.Event == proto.InTypingStop {
			kind = core.EventTypingStop
		}
		h.hub.Relay(client, chatID, &core.Event{Kind: kind, ChatID: chatID, UserID: client.UserID})
		return nil
	case proto.InMessageRead:
		data, err := decode[proto.ReadData](inbound.Data)
		if err != nil {
			return err
		}
		_, err = h.receipts.MarkReadFrom(ctx, client, client.UserID, data.ChatID, data.MessageIDs)
		return err
	case proto.InMessageDelivered:
		data, err := decode[proto.DeliveredData](inbound.Data)
		if err != nil {
			return err
		}
		if data.MessageID != "" {
			_, err = h.receipts.MarkDelivered(ctx, client.UserID, data.MessageID)
			return err
		}
		_, err = h.receipts.MarkDeliveredBulk(ctx, client.UserID, data.ChatID, data.MessageIDs)
		return err
	case proto.InPing:
		client.Send(&core.Event{Kind: core.EventPong, TS: time.Now().UTC()})
		return nil
	default:
		return fmt.Errorf("%w: unknown event %q", core.ErrBadRequest, inbound.Event)
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event := <-client.Events():
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Debug().Err(err).Str("conn_id", client.ID).Msg("write ws event")
				return err
			}
		case <-client.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) pingLoop(ctx context.Context, conn *websocket.Conn) error {
	if h.opts.PingInterval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, h.opts.PingInterval)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

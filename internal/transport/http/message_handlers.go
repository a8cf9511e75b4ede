package http

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/securechat-server/internal/blob"
	"github.com/vovakirdan/securechat-server/internal/proto"
	"github.com/vovakirdan/securechat-server/internal/service/chats"
	"github.com/vovakirdan/securechat-server/internal/service/delivery"
	"github.com/vovakirdan/securechat-server/internal/store"
)

// MessageHandlers provides HTTP handlers for messages, receipts, reactions and media.
type MessageHandlers struct {
	chats     *chats.Service
	delivery  *delivery.Service
	blobs     blob.Store
	maxUpload int64
	log       *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(chatSvc *chats.Service, deliverySvc *delivery.Service, blobs blob.Store, maxUpload int64, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{
		chats:     chatSvc,
		delivery:  deliverySvc,
		blobs:     blobs,
		maxUpload: maxUpload,
		log:       logger,
	}
}

// SendMessageRequest is the body of a new message.
type SendMessageRequest struct {
	ChatID   string `json:"chatId"`
	Type     string `json:"type"`
	Content  string `json:"content"`
	MediaURL string `json:"mediaUrl"`
}

// ReceiptRequest optionally restricts a receipt to some messages.
type ReceiptRequest struct {
	ChatID     string   `json:"chatId"`
	MessageIDs []string `json:"messageIds"`
}

// ReactionRequest carries an emoji.
type ReactionRequest struct {
	Emoji string `json:"emoji"`
}

// MessagesResponse lists messages oldest first.
type MessagesResponse struct {
	Messages []proto.Message `json:"messages"`
}

// MessageResponse wraps a single message.
type MessageResponse struct {
	Message proto.Message `json:"message"`
}

// List returns a page of a chat's messages.
// GET /api/messages/:chatId?limit=50&before=RFC3339
func (h *MessageHandlers) List(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "limit must be a number")
			return
		}
		limit = n
	}
	var before *time.Time
	if raw := c.Query("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			badRequest(c, "before must be an RFC3339 timestamp")
			return
		}
		before = &t
	}

	msgs, err := h.chats.ListMessages(c.Request.Context(), currentUser(c), c.Param("chatId"), limit, before)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, MessagesResponse{Messages: proto.Messages(msgs)})
}

// Send stores and delivers a message.
// POST /api/messages
func (h *MessageHandlers) Send(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	h.send(c, chats.SendInput{
		ChatID:   req.ChatID,
		Type:     store.MessageType(req.Type),
		Content:  req.Content,
		MediaURL: req.MediaURL,
	})
}

// StoreMedia stores a message pointing at already hosted media.
// POST /api/messages/media
func (h *MessageHandlers) StoreMedia(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if req.ChatID == "" || req.MediaURL == "" {
		badRequest(c, "chatId and mediaUrl required")
		return
	}
	if req.Type == "" {
		req.Type = string(store.MessageTypeFile)
	}
	h.send(c, chats.SendInput{
		ChatID:   req.ChatID,
		Type:     store.MessageType(req.Type),
		MediaURL: req.MediaURL,
	})
}

// Upload stores an uploaded file and sends it as a media message.
// POST /api/messages/media/upload (multipart: file, chatId, type)
func (h *MessageHandlers) Upload(c *gin.Context) {
	if h.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+1<<20)
	}
	chatID := c.PostForm("chatId")
	if chatID == "" {
		badRequest(c, "chatId required")
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "file required")
		return
	}
	if h.maxUpload > 0 && header.Size > h.maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "file too large", Code: "bad_request"})
		return
	}

	f, err := header.Open()
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	data, err := io.ReadAll(f)
	_ = f.Close()
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	// Membership is checked before anything is written to the blob store.
	if _, err := h.chats.Chat(c.Request.Context(), currentUser(c), chatID); err != nil {
		writeError(c, h.log, err)
		return
	}
	contentType := blob.Detect(data)
	url, err := h.blobs.Upload(c.Request.Context(), data, contentType)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	msgType := store.MessageType(c.PostForm("type"))
	if msgType == "" {
		msgType = mediaKind(contentType)
	}
	h.send(c, chats.SendInput{ChatID: chatID, Type: msgType, MediaURL: url})
}

// Read marks a chat read for the caller.
// POST /api/messages/:id/read
func (h *MessageHandlers) Read(c *gin.Context) {
	var req ReceiptRequest
	if err := bindOptional(c, &req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	res, err := h.delivery.MarkRead(c.Request.Context(), currentUser(c), c.Param("id"), req.MessageIDs)
	h.receipt(c, res, err)
}

// DeliveredBulk marks a chat's messages delivered to the caller.
// POST /api/messages/delivered
func (h *MessageHandlers) DeliveredBulk(c *gin.Context) {
	var req ReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	res, err := h.delivery.MarkDeliveredBulk(c.Request.Context(), currentUser(c), req.ChatID, req.MessageIDs)
	h.receipt(c, res, err)
}

// Delivered marks one message delivered to the caller.
// POST /api/messages/:id/delivered
func (h *MessageHandlers) Delivered(c *gin.Context) {
	res, err := h.delivery.MarkDelivered(c.Request.Context(), currentUser(c), c.Param("id"))
	h.receipt(c, res, err)
}

// React sets the caller's reaction on a message.
// POST /api/messages/:id/reactions
func (h *MessageHandlers) React(c *gin.Context) {
	var req ReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	res, err := h.delivery.AddReaction(c.Request.Context(), currentUser(c), c.Param("id"), strings.TrimSpace(req.Emoji))
	h.receipt(c, res, err)
}

// Unreact removes the caller's reaction from a message.
// DELETE /api/messages/:id/reactions
func (h *MessageHandlers) Unreact(c *gin.Context) {
	res, err := h.delivery.RemoveReaction(c.Request.Context(), currentUser(c), c.Param("id"))
	h.receipt(c, res, err)
}

func (h *MessageHandlers) send(c *gin.Context, in chats.SendInput) {
	msg, err := h.chats.SendMessage(c.Request.Context(), currentUser(c), in)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, MessageResponse{Message: proto.MessageFrom(msg)})
}

func (h *MessageHandlers) receipt(c *gin.Context, res delivery.Result, err error) {
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// bindOptional binds a JSON body if one was sent.
func bindOptional(c *gin.Context, dst any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(dst)
}

func mediaKind(contentType string) store.MessageType {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return store.MessageTypeImage
	case strings.HasPrefix(contentType, "video/"):
		return store.MessageTypeVideo
	default:
		return store.MessageTypeFile
	}
}

package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/securechat-server/internal/proto"
	"github.com/vovakirdan/securechat-server/internal/service/chats"
)

// ChatHandlers provides HTTP handlers for chat management endpoints.
type ChatHandlers struct {
	chats *chats.Service
	log   *zerolog.Logger
}

// NewChatHandlers creates a new chat handlers instance.
func NewChatHandlers(svc *chats.Service, logger *zerolog.Logger) *ChatHandlers {
	return &ChatHandlers{
		chats: svc,
		log:   logger,
	}
}

// DirectChatRequest names the other party of a direct chat.
type DirectChatRequest struct {
	UserID string `json:"userId"`
}

// GroupRequest creates or renames a group.
type GroupRequest struct {
	GroupName string   `json:"groupName"`
	MemberIDs []string `json:"memberIds"`
}

// MembersRequest lists users to add to a group.
type MembersRequest struct {
	MemberIDs []string `json:"memberIds"`
}

// ChatsResponse lists the caller's chats.
type ChatsResponse struct {
	Chats []proto.Chat `json:"chats"`
}

// ChatResponse wraps a single chat.
type ChatResponse struct {
	Chat proto.Chat `json:"chat"`
}

// ListChats returns the caller's chats with unread counts.
// GET /api/chats
func (h *ChatHandlers) ListChats(c *gin.Context) {
	views, err := h.chats.ListChats(c.Request.Context(), currentUser(c))
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	resp := ChatsResponse{Chats: make([]proto.Chat, 0, len(views))}
	for _, v := range views {
		chat := proto.ChatFrom(v.Chat)
		unread := v.UnreadCount
		chat.UnreadCount = &unread
		chat.Pinned = v.Pinned
		resp.Chats = append(resp.Chats, chat)
	}
	c.JSON(http.StatusOK, resp)
}

// Direct returns or creates the direct chat with another user.
// POST /api/chats/direct
func (h *ChatHandlers) Direct(c *gin.Context) {
	var req DirectChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	chat, created, err := h.chats.GetOrCreateDirect(c.Request.Context(), currentUser(c), req.UserID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		h.log.Info().Str("chat_id", chat.ID).Str("user_id", currentUser(c)).Msg("direct chat created")
	}
	c.JSON(status, ChatResponse{Chat: proto.ChatFrom(chat)})
}

// CreateGroup creates a group administered by the caller.
// POST /api/chats/group
func (h *ChatHandlers) CreateGroup(c *gin.Context) {
	var req GroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	chat, err := h.chats.CreateGroup(c.Request.Context(), currentUser(c), chats.CreateGroupInput{
		Name:      req.GroupName,
		MemberIDs: req.MemberIDs,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	h.log.Info().Str("chat_id", chat.ID).Int("members", len(chat.Members)).Msg("group created")
	c.JSON(http.StatusCreated, ChatResponse{Chat: proto.ChatFrom(chat)})
}

// UpdateGroup renames a group.
// PATCH /api/chats/:chatId
func (h *ChatHandlers) UpdateGroup(c *gin.Context) {
	var req GroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	chat, err := h.chats.RenameGroup(c.Request.Context(), currentUser(c), c.Param("chatId"), req.GroupName)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, ChatResponse{Chat: proto.ChatFrom(chat)})
}

// AddMembers adds users to a group.
// POST /api/chats/:chatId/members
func (h *ChatHandlers) AddMembers(c *gin.Context) {
	var req MembersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	chat, err := h.chats.AddMembers(c.Request.Context(), currentUser(c), c.Param("chatId"), req.MemberIDs)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, ChatResponse{Chat: proto.ChatFrom(chat)})
}

// RemoveMember removes a user from a group.
// DELETE /api/chats/:chatId/members/:memberId
func (h *ChatHandlers) RemoveMember(c *gin.Context) {
	chat, err := h.chats.RemoveMember(c.Request.Context(), currentUser(c), c.Param("chatId"), c.Param("memberId"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, ChatResponse{Chat: proto.ChatFrom(chat)})
}

// Pin pins a chat for the caller.
// POST /api/chats/:chatId/pin
func (h *ChatHandlers) Pin(c *gin.Context) {
	if err := h.chats.Pin(c.Request.Context(), currentUser(c), c.Param("chatId")); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pinned": true})
}

// Unpin unpins a chat for the caller.
// POST /api/chats/:chatId/unpin
func (h *ChatHandlers) Unpin(c *gin.Context) {
	if err := h.chats.Unpin(c.Request.Context(), currentUser(c), c.Param("chatId")); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pinned": false})
}

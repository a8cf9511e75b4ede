package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/securechat-server/internal/proto"
	"github.com/vovakirdan/securechat-server/internal/service/contacts"
)

// ContactHandlers provides HTTP handlers for contact management endpoints.
type ContactHandlers struct {
	service *contacts.Service
	log     *zerolog.Logger
}

// NewContactHandlers creates a new contact handlers instance.
func NewContactHandlers(svc *contacts.Service, logger *zerolog.Logger) *ContactHandlers {
	return &ContactHandlers{
		service: svc,
		log:     logger,
	}
}

// AddContactRequest represents the request body for adding a contact.
type AddContactRequest struct {
	UID string `json:"uid" binding:"required"`
}

// ContactsResponse lists contacts with their presence.
type ContactsResponse struct {
	Contacts []proto.User `json:"contacts"`
}

// List returns the caller's contacts.
// GET /api/contacts
func (h *ContactHandlers) List(c *gin.Context) {
	list, err := h.service.List(c.Request.Context(), currentUser(c))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, ContactsResponse{Contacts: proto.Users(list)})
}

// Add links the caller with the user owning uid.
// POST /api/contacts
func (h *ContactHandlers) Add(c *gin.Context) {
	var req AddContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "uid is required")
		return
	}

	list, err := h.service.Add(c.Request.Context(), currentUser(c), req.UID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	h.log.Info().Str("user_id", currentUser(c)).Str("uid", req.UID).Msg("contact added")
	c.JSON(http.StatusOK, ContactsResponse{Contacts: proto.Users(list)})
}

// Remove unlinks the caller and the user owning uid.
// DELETE /api/contacts/:uid
func (h *ContactHandlers) Remove(c *gin.Context) {
	list, err := h.service.Remove(c.Request.Context(), currentUser(c), c.Param("uid"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	h.log.Info().Str("user_id", currentUser(c)).Str("uid", c.Param("uid")).Msg("contact removed")
	c.JSON(http.StatusOK, ContactsResponse{Contacts: proto.Users(list)})
}

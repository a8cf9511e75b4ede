package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/securechat-server/internal/proto"
	"github.com/vovakirdan/securechat-server/internal/service/users"
	"github.com/vovakirdan/securechat-server/internal/store"
)

// UserHandlers provides HTTP handlers for user operations.
type UserHandlers struct {
	users *users.Service
	log   *zerolog.Logger
}

// NewUserHandlers creates a new user handlers instance.
func NewUserHandlers(svc *users.Service, logger *zerolog.Logger) *UserHandlers {
	return &UserHandlers{
		users: svc,
		log:   logger,
	}
}

// UpdateProfileRequest carries optional profile fields.
type UpdateProfileRequest struct {
	Name               *string `json:"name"`
	AvatarURL          *string `json:"avatarUrl"`
	NotificationsToken *string `json:"notificationsToken"`
}

// Me returns the caller's profile.
// GET /api/users/me
func (h *UserHandlers) Me(c *gin.Context) {
	user, err := h.users.Me(c.Request.Context(), currentUser(c))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, proto.SelfUser(user))
}

// UpdateMe updates the caller's profile.
// PATCH /api/users/me
func (h *UserHandlers) UpdateMe(c *gin.Context) {
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	user, err := h.users.UpdateProfile(c.Request.Context(), currentUser(c), store.ProfileUpdate{
		Name:               req.Name,
		AvatarURL:          req.AvatarURL,
		NotificationsToken: req.NotificationsToken,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, proto.SelfUser(user))
}

// SearchUsers finds a user by public uid.
// GET /api/users/search?uid=ABCD1234
func (h *UserHandlers) SearchUsers(c *gin.Context) {
	user, err := h.users.SearchByUID(c.Request.Context(), c.Query("uid"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, proto.PublicUser(user))
}

package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/securechat-server/internal/auth"
	"github.com/vovakirdan/securechat-server/internal/blob"
	"github.com/vovakirdan/securechat-server/internal/core"
	"github.com/vovakirdan/securechat-server/internal/store"
)

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, auth.ErrUserExists), errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, core.ErrBadRequest), errors.Is(err, blob.ErrUnsupportedType):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrNotMember), errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status and JSON body. Unclassified errors are
// logged and hidden from the client.
func writeError(c *gin.Context, log *zerolog.Logger, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(status, ErrorResponse{Error: "internal server error", Code: core.ErrCodeInternal})
		return
	}
	code, ok := codes[status]
	if !ok {
		code = core.ErrorFrom(err).Code
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

var codes = map[int]string{
	http.StatusBadRequest:   core.ErrCodeBadRequest,
	http.StatusUnauthorized: core.ErrCodeUnauthorized,
	http.StatusNotFound:     core.ErrCodeNotFound,
	http.StatusConflict:     "conflict",
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg, Code: core.ErrCodeBadRequest})
}

package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/securechat-server/internal/auth"
)

const (
	// ContextKeyUserID is the context key for storing user ID.
	ContextKeyUserID = "user_id"
	// ContextKeyUID is the context key for storing the public uid.
	ContextKeyUID = "uid"
)

// AuthMiddleware validates the bearer token through the session gate.
func AuthMiddleware(gate *auth.Gate, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := gate.Authenticate(auth.Credentials{Header: c.GetHeader("Authorization")})
		if err != nil {
			logger.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("request refused")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: "unauthorized"})
			return
		}

		c.Set(ContextKeyUserID, principal.UserID)
		c.Set(ContextKeyUID, principal.UID)
		c.Next()
	}
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}

// currentUser returns the authenticated user ID set by AuthMiddleware.
func currentUser(c *gin.Context) string {
	return c.GetString(ContextKeyUserID)
}

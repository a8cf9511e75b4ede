package auth

import (
	"fmt"
	"strings"

	"github.com/vovakirdan/securechat-server/internal/core"
)

// Credentials are the places a connection attempt may carry a token,
// checked in field order.
type Credentials struct {
	// AuthField is an explicit auth value supplied by the client.
	AuthField string
	// Query is the token query parameter.
	Query string
	// Header is the raw Authorization header.
	Header string
}

// Principal is the verified identity of a connection.
type Principal struct {
	UserID string
	UID    string
	Email  string
}

// Gate authenticates connection attempts before they are admitted.
type Gate struct {
	jwt *JWTConfig
}

// NewGate creates a gate verifying tokens with cfg.
func NewGate(cfg *JWTConfig) *Gate {
	return &Gate{jwt: cfg}
}

// Token returns the first non-empty token candidate.
func (c Credentials) Token() string {
	if t := strings.TrimSpace(c.AuthField); t != "" {
		return strings.TrimPrefix(t, "Bearer ")
	}
	if t := strings.TrimSpace(c.Query); t != "" {
		return t
	}
	if h := strings.TrimSpace(c.Header); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

// Authenticate verifies the first present token. Every failure wraps
// core.ErrUnauthorized; the caller must refuse the connection.
func (g *Gate) Authenticate(creds Credentials) (Principal, error) {
	token := creds.Token()
	if token == "" {
		return Principal{}, fmt.Errorf("%w: missing token", core.ErrUnauthorized)
	}
	claims, err := ValidateToken(g.jwt, token)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", core.ErrUnauthorized, err)
	}
	return Principal{UserID: claims.UserID, UID: claims.UID, Email: claims.Email}, nil
}

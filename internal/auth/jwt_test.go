package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/securechat-server/internal/core"
)

func TestValidateToken_ChecksIssuerAudienceAndExpiry(t *testing.T) {
	req := require.New(t)
	cfg := testJWTConfig()

	token, err := GenerateToken(cfg, "user-1", "ABCD1234", "u@example.com")
	req.NoError(err)

	claims, err := ValidateToken(cfg, token)
	req.NoError(err)
	req.Equal("user-1", claims.UserID)
	req.Equal("user-1", claims.Subject)

	other := *cfg
	other.Issuer = "someone-else"
	_, err = ValidateToken(&other, token)
	req.Error(err)

	other = *cfg
	other.Audience = "mobile"
	_, err = ValidateToken(&other, token)
	req.Error(err)

	other = *cfg
	other.Secret = []byte("different")
	_, err = ValidateToken(&other, token)
	req.Error(err)

	expired := *cfg
	expired.TTL = -time.Minute
	stale, err := GenerateToken(&expired, "user-1", "ABCD1234", "u@example.com")
	req.NoError(err)
	_, err = ValidateToken(cfg, stale)
	req.Error(err)
}

func TestGate_PicksFirstPresentCredential(t *testing.T) {
	req := require.New(t)
	cfg := testJWTConfig()
	gate := NewGate(cfg)

	good, err := GenerateToken(cfg, "alice", "ALICE001", "a@example.com")
	req.NoError(err)

	// Explicit field wins over query and header.
	p, err := gate.Authenticate(Credentials{AuthField: good, Query: "garbage", Header: "Bearer garbage"})
	req.NoError(err)
	req.Equal("alice", p.UserID)

	// Query wins over header.
	_, err = gate.Authenticate(Credentials{Query: "garbage", Header: "Bearer " + good})
	req.True(errors.Is(err, core.ErrUnauthorized))

	// Header alone.
	p, err = gate.Authenticate(Credentials{Header: "Bearer " + good})
	req.NoError(err)
	req.Equal("ALICE001", p.UID)

	// Header without the Bearer scheme is ignored.
	_, err = gate.Authenticate(Credentials{Header: good})
	req.True(errors.Is(err, core.ErrUnauthorized))

	_, err = gate.Authenticate(Credentials{})
	req.True(errors.Is(err, core.ErrUnauthorized))
}

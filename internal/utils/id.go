package utils

import (
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"
)

const uidAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// UIDLength is the length of the public user handle.
const UIDLength = 8

// NewID returns a random opaque identifier.
func NewID() string {
	return uuid.NewString()
}

// NewUID returns a short uppercase alphanumeric handle users can share.
func NewUID() string {
	buf := make([]byte, UIDLength)
	max := big.NewInt(int64(len(uidAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// Fallback to uuid entropy if crypto/rand is unavailable.
			u := uuid.New()
			n = big.NewInt(int64(u[i]) % int64(len(uidAlphabet)))
		}
		buf[i] = uidAlphabet[n.Int64()]
	}
	return string(buf)
}

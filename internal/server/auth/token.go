package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/dmitrijs2005/authkeeper/internal/common"
)

// Default opaque token sizes in random bytes.
const (
	RefreshTokenBytes   = 48
	SingleUseTokenBytes = 32
)

// NewOpaqueToken returns size random bytes hex encoded, along with the
// digest to persist. The raw value must be handed to the caller and
// dropped; only the digest is stored.
func NewOpaqueToken(size int) (raw, digest string, err error) {
	raw, err = common.MakeRandHexString(size)
	if err != nil {
		return "", "", fmt.Errorf("generate token: %w", err)
	}
	return raw, Digest(raw), nil
}

// Digest is the SHA-256 of raw, hex encoded.
func Digest(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

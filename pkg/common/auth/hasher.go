package auth

import (
	"crypto/sha256"
	"encoding/hex"
)

// Digest returns the 64-character lowercase hex SHA-256 of a wire-form
// token. It is the only form of a seen token the server ever keeps: the
// revocation table is keyed by this digest, and both issuer and verifier
// recompute it independently from the raw token.
func Digest(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

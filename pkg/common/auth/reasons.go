// Package auth implements the tracking-token subsystem: codec, hashing,
// verification and administrative session revocation.
package auth

import "errors"

// Reason identifies why a token failed verification. Callers must be able to
// tell "don't trust this token" apart from "the system is degraded", so every
// failure carries one of these instead of a generic fault.
type Reason string

const (
	ReasonMalformed             Reason = "malformed"
	ReasonInvalidSignature      Reason = "invalid_signature"
	ReasonExpired               Reason = "expired"
	ReasonRevoked               Reason = "revoked"
	ReasonRevocationCheckFailed Reason = "revocation_check_failed"
)

// Errors
var (
	ErrInvalidPayload   = errors.New("invalid token payload")
	ErrMalformedToken   = errors.New("malformed token")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrTokenExpired     = errors.New("token expired")
)

// ReasonForError maps a codec decode error to its verification reason.
func ReasonForError(err error) Reason {
	switch {
	case errors.Is(err, ErrInvalidSignature):
		return ReasonInvalidSignature
	case errors.Is(err, ErrTokenExpired):
		return ReasonExpired
	default:
		return ReasonMalformed
	}
}

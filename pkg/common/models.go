package common

import (
	"crypto/rand"
	"encoding/base64"
	"time"
)

// RevocationReason records why a token or session was invalidated.
type RevocationReason string

const (
	RevocationReasonUserLogout     RevocationReason = "user_logout"
	RevocationReasonSecurityBreach RevocationReason = "security_breach"
	RevocationReasonAdminAction    RevocationReason = "admin_action"
)

// Auth event types recorded by the audit logger.
const (
	EventLoginFailure     = "login_failure"
	EventAdminForceLogout = "admin_force_logout"
	EventTokenRevoked     = "token_revoked"
)

// TokenPayload is the identity carried by a tracking token. It is created
// once at issuance and never mutated; re-issuing for the same reader always
// produces a fresh TokenID.
type TokenPayload struct {
	// Opaque reader identifier.
	Subject string `json:"subject"`
	// Opaque identifier of the newsletter issue being read.
	NewsletterID string `json:"newsletterId"`
	// Opaque class identifiers, may be empty.
	ClassIDs []string `json:"classIds,omitempty"`
	IssuedAt time.Time `json:"issuedAt"`
	// Always after IssuedAt.
	ExpiresAt time.Time `json:"expiresAt"`
	// Unique per issuance, disambiguates identical payload+time collisions.
	TokenID string `json:"tokenId"`
}

// IsValid checks that the payload carries everything a token must assert.
func (p *TokenPayload) IsValid() (bool, string) {
	if p.Subject == "" {
		return false, "subject must not be empty"
	}
	if p.NewsletterID == "" {
		return false, "newsletterId must not be empty"
	}
	if !p.ExpiresAt.After(p.IssuedAt) {
		return false, "expiresAt must be after issuedAt"
	}
	return true, ""
}

// RevocationRecord marks a token, by digest of its wire form, as no longer
// trustworthy. Records are never deleted; a second revocation of the same
// hash overwrites the first.
type RevocationRecord struct {
	TokenHash string           `json:"tokenHash"`
	Reason    RevocationReason `json:"reason"`
	RevokedAt time.Time        `json:"revokedAt"`
}

// SessionRecord describes one of a reader's active client sessions as known
// to the store. Sessions are registered by the host CMS, not by token
// issuance.
type SessionRecord struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	CreatedAt  time.Time `json:"createdAt"`
	LastSeenAt time.Time `json:"lastSeenAt"`
	Revoked    bool      `json:"revoked"`
}

// AuthEvent is one entry in the append-only authentication audit record.
type AuthEvent struct {
	UserID    string            `json:"userId"`
	EventType string            `json:"eventType"`
	CreatedAt time.Time         `json:"createdAt"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// SuspiciousActivity is a derived signal, recomputed on demand and never
// persisted.
type SuspiciousActivity struct {
	UserID       string `json:"userId"`
	FailureCount int    `json:"failureCount"`
}

// NewSessionID generates a random identifier for a session record.
func NewSessionID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

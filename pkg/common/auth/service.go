package auth

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lettera/trackauth/pkg/common"
)

// RevocationChecker is the read side of the revocation store consumed during
// verification. The store is a remote service; a lookup is a single bounded
// round trip with no retry at this layer.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenHash string) (bool, error)
}

// VerifyResult is the structured outcome of a verification. Reason is set
// exactly when Valid is false. ReasonRevocationCheckFailed means the store
// was unreachable, not that the token is bad; callers pick their own
// fail-open or fail-closed policy for it.
type VerifyResult struct {
	Valid   bool                 `json:"valid"`
	Payload *common.TokenPayload `json:"payload,omitempty"`
	Reason  Reason               `json:"reason,omitempty"`
}

// TokenService issues and verifies tracking tokens.
type TokenService struct {
	codec *TokenCodec
	store RevocationChecker
	ttl   time.Duration
	log   *zap.Logger

	now func() time.Time
}

// NewTokenService creates a token service with a fixed validity window.
func NewTokenService(codec *TokenCodec, store RevocationChecker, ttl time.Duration, log *zap.Logger) *TokenService {
	return &TokenService{
		codec: codec,
		store: store,
		ttl:   ttl,
		log:   log,
		now:   time.Now,
	}
}

// Issue builds a payload valid from now for the configured window, with a
// fresh token id, and signs it. Issuance has no side effects: nothing is
// written to the revocation store.
func (s *TokenService) Issue(subject, newsletterID string, classIDs []string) (string, *common.TokenPayload, error) {
	tokenID, err := NewTokenID()
	if err != nil {
		return "", nil, err
	}

	now := s.now()
	payload := &common.TokenPayload{
		Subject:      subject,
		NewsletterID: newsletterID,
		ClassIDs:     classIDs,
		IssuedAt:     now,
		ExpiresAt:    now.Add(s.ttl),
		TokenID:      tokenID,
	}

	token, err := s.codec.Encode(payload)
	if err != nil {
		return "", nil, err
	}
	return token, payload, nil
}

// Verify decodes the token (signature, then expiry), computes its digest and
// checks the revocation store. It never mutates state.
func (s *TokenService) Verify(ctx context.Context, token string) VerifyResult {
	payload, err := s.codec.Decode(token)
	if err != nil {
		return VerifyResult{Reason: ReasonForError(err)}
	}

	hash := Digest(token)
	revoked, err := s.store.IsRevoked(ctx, hash)
	if err != nil {
		s.log.Warn("revocation lookup failed",
			zap.String("tokenHash", hash),
			zap.Error(err))
		return VerifyResult{Reason: ReasonRevocationCheckFailed}
	}
	if revoked {
		return VerifyResult{Reason: ReasonRevoked}
	}

	return VerifyResult{Valid: true, Payload: payload}
}

// HashOf exposes the revocation digest of a wire token, for callers that
// need to revoke a specific token later without holding onto the raw form.
func (s *TokenService) HashOf(token string) string {
	return Digest(token)
}

package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lettera/trackauth/pkg/common"
)

// trackingClaims is the wire layout of a tracking token's payload segment.
type trackingClaims struct {
	NewsletterID string   `json:"nid"`
	ClassIDs     []string `json:"cls,omitempty"`
	jwt.RegisteredClaims
}

// TokenCodec signs and parses tracking tokens. The signing secret is set
// once at construction and never changes; build a new codec to rotate it.
type TokenCodec struct {
	secret []byte
}

// NewTokenCodec creates a codec around the given HS256 secret.
func NewTokenCodec(secret []byte) *TokenCodec {
	return &TokenCodec{secret: secret}
}

// Encode serializes and signs the payload into the three-segment wire form.
// It fails only on a payload that is missing required fields.
func (c *TokenCodec) Encode(payload *common.TokenPayload) (string, error) {
	if valid, msg := payload.IsValid(); !valid {
		return "", fmt.Errorf("%w: %s", ErrInvalidPayload, msg)
	}

	claims := trackingClaims{
		NewsletterID: payload.NewsletterID,
		ClassIDs:     payload.ClassIDs,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   payload.Subject,
			IssuedAt:  jwt.NewNumericDate(payload.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(payload.ExpiresAt),
			ID:        payload.TokenID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// Decode verifies structure, signature and expiry, in that order, and
// returns the payload. The signature is checked before any claim is
// trusted, expiry included.
func (c *TokenCodec) Decode(tokenStr string) (*common.TokenPayload, error) {
	if strings.Count(tokenStr, ".") != 2 {
		return nil, fmt.Errorf("%w: expected 3 segments", ErrMalformedToken)
	}

	parsed, err := jwt.ParseWithClaims(tokenStr, &trackingClaims{}, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		default:
			return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
		}
	}

	claims, ok := parsed.Claims.(*trackingClaims)
	if !ok {
		return nil, ErrMalformedToken
	}
	if claims.Subject == "" || claims.NewsletterID == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing required claim", ErrMalformedToken)
	}
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing timestamps", ErrMalformedToken)
	}

	return &common.TokenPayload{
		Subject:      claims.Subject,
		NewsletterID: claims.NewsletterID,
		ClassIDs:     claims.ClassIDs,
		IssuedAt:     claims.IssuedAt.Time,
		ExpiresAt:    claims.ExpiresAt.Time,
		TokenID:      claims.ID,
	}, nil
}

// NewTokenID generates a random identifier unique to a single issuance.
func NewTokenID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

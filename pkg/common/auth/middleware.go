package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/lettera/trackauth/pkg/common"
)

// Default auth configuration
const (
	DefaultAuthHeader = "Authorization"
	DefaultAuthScheme = "Bearer"
)

// Errors
var (
	ErrNoAuthHeader  = errors.New("no authorization header")
	ErrInvalidScheme = errors.New("invalid authorization scheme")
)

type contextKey int

const payloadContextKey contextKey = iota

// PayloadFromContext returns the verified token payload stored by the
// middleware.
func PayloadFromContext(ctx context.Context) (*common.TokenPayload, bool) {
	payload, ok := ctx.Value(payloadContextKey).(*common.TokenPayload)
	return payload, ok
}

// ExtractToken pulls the bearer token out of the request headers.
func ExtractToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get(DefaultAuthHeader)
	if authHeader == "" {
		return "", ErrNoAuthHeader
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != DefaultAuthScheme {
		return "", ErrInvalidScheme
	}
	return parts[1], nil
}

// TokenMiddleware guards tracking endpoints with token verification. It
// fails closed: a degraded revocation store rejects the request (503 rather
// than 401, so clients can retry) instead of letting an unverifiable token
// through.
type TokenMiddleware struct {
	Service *TokenService
}

// NewTokenMiddleware creates middleware around the given token service.
func NewTokenMiddleware(service *TokenService) *TokenMiddleware {
	return &TokenMiddleware{Service: service}
}

// Handler verifies the bearer token and stores its payload in the request
// context for the next handler.
func (m *TokenMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := ExtractToken(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		result := m.Service.Verify(r.Context(), token)
		if !result.Valid {
			if result.Reason == ReasonRevocationCheckFailed {
				http.Error(w, string(result.Reason), http.StatusServiceUnavailable)
				return
			}
			http.Error(w, string(result.Reason), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), payloadContextKey, result.Payload)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AdminAuthenticator guards the admin API with a shared Bearer token.
type AdminAuthenticator struct {
	AdminToken string
}

// NewAdminAuthenticator creates a new admin authenticator.
func NewAdminAuthenticator(adminToken string) *AdminAuthenticator {
	return &AdminAuthenticator{AdminToken: adminToken}
}

// Middleware provides HTTP middleware for admin authentication.
func (a *AdminAuthenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization format", http.StatusUnauthorized)
			return
		}

		if parts[1] != a.AdminToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

/* This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/. */

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lettera/trackauth/pkg/common"
	"github.com/lettera/trackauth/pkg/common/auth"
)

// Store is the slice of the revocation store the HTTP layer drives directly.
type Store interface {
	Revoke(ctx context.Context, tokenHash string, reason common.RevocationReason) error
	RecordSession(ctx context.Context, session common.SessionRecord) error
}

type issueRequest struct {
	Subject      string   `json:"subject"`
	NewsletterID string   `json:"newsletterId"`
	ClassIDs     []string `json:"classIds"`
}

type verifyRequest struct {
	Token string `json:"token"`
}

type logoutRequest struct {
	UserID      string `json:"userId"`
	AdminUserID string `json:"adminUserId"`
}

type revokeRequest struct {
	// Either the raw wire token or its precomputed hash.
	Token     string `json:"token"`
	TokenHash string `json:"tokenHash"`
	Reason    string `json:"reason"`
}

func createRouter(tokens *auth.TokenService, admin *auth.AdminSessionService, db Store, adminAuth *auth.AdminAuthenticator, logger *zap.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)

	tokenGuard := auth.NewTokenMiddleware(tokens)

	r.Route("/api/v1", func(r chi.Router) {
		// Unauthenticated routes
		r.Group(func(r chi.Router) {
			r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("OK"))
			})

			r.Post("/token", func(w http.ResponseWriter, r *http.Request) {
				var req issueRequest
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
					return
				}
				if req.Subject == "" || req.NewsletterID == "" {
					http.Error(w, "Missing subject or newsletterId", http.StatusBadRequest)
					return
				}

				token, payload, err := tokens.Issue(req.Subject, req.NewsletterID, req.ClassIDs)
				if err != nil {
					http.Error(w, "Failed to issue token", http.StatusInternalServerError)
					logger.Error("token issuance failed", zap.Error(err))
					return
				}

				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]interface{}{
					"token":     token,
					"tokenId":   payload.TokenID,
					"expiresAt": payload.ExpiresAt.UTC().Format(time.RFC3339),
				})
			})

			r.Post("/token/verify", func(w http.ResponseWriter, r *http.Request) {
				var req verifyRequest
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
					return
				}
				if req.Token == "" {
					http.Error(w, "Missing token field", http.StatusBadRequest)
					return
				}

				result := tokens.Verify(r.Context(), req.Token)
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(result)
			})
		})

		// Tracking ingestion: only requests carrying a verified token get in.
		r.Group(func(r chi.Router) {
			r.Use(tokenGuard.Handler)
			r.Post("/events", func(w http.ResponseWriter, r *http.Request) {
				payload, _ := auth.PayloadFromContext(r.Context())
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusAccepted)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"status":       "accepted",
					"subject":      payload.Subject,
					"newsletterId": payload.NewsletterID,
				})
			})
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(adminAuth.Middleware)

			r.Post("/admin/logout", func(w http.ResponseWriter, r *http.Request) {
				var req logoutRequest
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
					return
				}
				if req.UserID == "" || req.AdminUserID == "" {
					http.Error(w, "Missing userId or adminUserId", http.StatusBadRequest)
					return
				}

				if !admin.ForceLogout(r.Context(), req.UserID, req.AdminUserID) {
					http.Error(w, "Failed to revoke user sessions", http.StatusInternalServerError)
					return
				}

				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]string{
					"status":  "success",
					"message": "User sessions revoked",
				})
			})

			r.Get("/admin/users/{userID}/sessions", func(w http.ResponseWriter, r *http.Request) {
				userID := chi.URLParam(r, "userID")
				sessions := admin.GetUserSessions(r.Context(), userID)

				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]interface{}{
					"sessions": sessions,
				})
			})

			r.Post("/admin/users/{userID}/sessions", func(w http.ResponseWriter, r *http.Request) {
				userID := chi.URLParam(r, "userID")

				sessionID, err := common.NewSessionID()
				if err != nil {
					http.Error(w, "Failed to generate session id", http.StatusInternalServerError)
					return
				}
				now := time.Now()
				session := common.SessionRecord{
					ID:         sessionID,
					UserID:     userID,
					CreatedAt:  now,
					LastSeenAt: now,
				}
				if err := db.RecordSession(r.Context(), session); err != nil {
					http.Error(w, "Failed to record session", http.StatusInternalServerError)
					logger.Error("session write failed", zap.String("userId", userID), zap.Error(err))
					return
				}

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusCreated)
				json.NewEncoder(w).Encode(session)
			})

			r.Get("/admin/suspicious", func(w http.ResponseWriter, r *http.Request) {
				flagged := admin.DetectSuspiciousActivity(r.Context())

				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]interface{}{
					"suspicious": flagged,
				})
			})

			r.Post("/admin/revoke", func(w http.ResponseWriter, r *http.Request) {
				var req revokeRequest
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
					return
				}

				hash := req.TokenHash
				if hash == "" && req.Token != "" {
					hash = tokens.HashOf(req.Token)
				}
				if hash == "" {
					http.Error(w, "Missing token or tokenHash field", http.StatusBadRequest)
					return
				}

				reason := common.RevocationReason(req.Reason)
				switch reason {
				case "":
					reason = common.RevocationReasonAdminAction
				case common.RevocationReasonUserLogout,
					common.RevocationReasonSecurityBreach,
					common.RevocationReasonAdminAction:
				default:
					http.Error(w, "Unknown revocation reason", http.StatusBadRequest)
					return
				}

				if err := db.Revoke(r.Context(), hash, reason); err != nil {
					http.Error(w, "Failed to revoke token", http.StatusInternalServerError)
					logger.Error("token revocation failed", zap.String("tokenHash", hash), zap.Error(err))
					return
				}

				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]string{
					"status":  "success",
					"message": "Token revoked",
				})
			})
		})
	})

	return r
}

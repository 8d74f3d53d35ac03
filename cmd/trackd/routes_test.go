package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lettera/trackauth/pkg/common"
	"github.com/lettera/trackauth/pkg/common/auth"
)

const testAdminToken = "test-admin-token"

// mockStore is an in-memory implementation of the store contract.
type mockStore struct {
	revoked      map[string]common.RevocationReason
	sessions     map[string][]common.SessionRecord
	events       []common.AuthEvent
	revokedUsers []string
	revokeAllErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		revoked:  make(map[string]common.RevocationReason),
		sessions: make(map[string][]common.SessionRecord),
	}
}

func (m *mockStore) IsRevoked(_ context.Context, tokenHash string) (bool, error) {
	_, ok := m.revoked[tokenHash]
	return ok, nil
}

func (m *mockStore) Revoke(_ context.Context, tokenHash string, reason common.RevocationReason) error {
	m.revoked[tokenHash] = reason
	return nil
}

func (m *mockStore) RevokeAllForUser(_ context.Context, userID string) error {
	if m.revokeAllErr != nil {
		return m.revokeAllErr
	}
	m.revokedUsers = append(m.revokedUsers, userID)
	return nil
}

func (m *mockStore) ListSessions(_ context.Context, userID string) ([]common.SessionRecord, error) {
	return m.sessions[userID], nil
}

func (m *mockStore) QueryFailureEvents(_ context.Context, _ time.Time) ([]common.AuthEvent, error) {
	return m.events, nil
}

func (m *mockStore) RecordSession(_ context.Context, session common.SessionRecord) error {
	m.sessions[session.UserID] = append(m.sessions[session.UserID], session)
	return nil
}

type mockAudit struct {
	events []common.AuthEvent
}

func (m *mockAudit) LogAuthEvent(_ context.Context, event common.AuthEvent) error {
	m.events = append(m.events, event)
	return nil
}

func newTestRouter(db *mockStore, audit *mockAudit) http.Handler {
	logger := zap.NewNop()
	codec := auth.NewTokenCodec([]byte("routes-test-secret"))
	tokens := auth.NewTokenService(codec, db, 30*time.Minute, logger)
	admin := auth.NewAdminSessionService(db, audit, 24*time.Hour, logger)
	return createRouter(tokens, admin, db, auth.NewAdminAuthenticator(testAdminToken), logger)
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func adminHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer " + testAdminToken}
}

func issueTestToken(t *testing.T, handler http.Handler) string {
	t.Helper()
	rr := doJSON(t, handler, "POST", "/api/v1/token", issueRequest{
		Subject:      "user-123",
		NewsletterID: "week-42",
		ClassIDs:     []string{"class-7a"},
	}, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["token"])
	return resp["token"]
}

func TestHealthRoute(t *testing.T) {
	handler := newTestRouter(newMockStore(), &mockAudit{})

	rr := doJSON(t, handler, "GET", "/api/v1/health", nil, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())
}

func TestIssueAndVerifyToken(t *testing.T) {
	handler := newTestRouter(newMockStore(), &mockAudit{})
	token := issueTestToken(t, handler)

	rr := doJSON(t, handler, "POST", "/api/v1/token/verify", verifyRequest{Token: token}, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var result auth.VerifyResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.True(t, result.Valid)
	require.NotNil(t, result.Payload)
	assert.Equal(t, "user-123", result.Payload.Subject)
	assert.Equal(t, "week-42", result.Payload.NewsletterID)
}

func TestIssueTokenRejectsIncompleteRequest(t *testing.T) {
	handler := newTestRouter(newMockStore(), &mockAudit{})

	rr := doJSON(t, handler, "POST", "/api/v1/token", issueRequest{Subject: "user-123"}, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, handler, "POST", "/api/v1/token", issueRequest{NewsletterID: "week-42"}, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestVerifyReportsReasonForBadToken(t *testing.T) {
	handler := newTestRouter(newMockStore(), &mockAudit{})

	rr := doJSON(t, handler, "POST", "/api/v1/token/verify", verifyRequest{Token: "garbage"}, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var result auth.VerifyResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.False(t, result.Valid)
	assert.Equal(t, auth.ReasonMalformed, result.Reason)
}

func TestEventsRequireValidToken(t *testing.T) {
	db := newMockStore()
	handler := newTestRouter(db, &mockAudit{})
	token := issueTestToken(t, handler)

	rr := doJSON(t, handler, "POST", "/api/v1/events", map[string]string{"event": "article_view"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = doJSON(t, handler, "POST", "/api/v1/events", map[string]string{"event": "article_view"},
		map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusAccepted, rr.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "user-123", resp["subject"])
}

func TestAdminRoutesRequireAdminToken(t *testing.T) {
	handler := newTestRouter(newMockStore(), &mockAudit{})

	rr := doJSON(t, handler, "POST", "/api/v1/admin/logout",
		logoutRequest{UserID: "user-456", AdminUserID: "admin-123"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = doJSON(t, handler, "GET", "/api/v1/admin/suspicious", nil,
		map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAdminForceLogout(t *testing.T) {
	db := newMockStore()
	audit := &mockAudit{}
	handler := newTestRouter(db, audit)

	rr := doJSON(t, handler, "POST", "/api/v1/admin/logout",
		logoutRequest{UserID: "user-456", AdminUserID: "admin-123"}, adminHeaders())
	require.Equal(t, http.StatusOK, rr.Code)

	assert.Equal(t, []string{"user-456"}, db.revokedUsers)
	require.Len(t, audit.events, 1)
	assert.Equal(t, "user-456", audit.events[0].UserID)
	assert.Equal(t, "admin-123", audit.events[0].Metadata["adminUserId"])
}

func TestAdminForceLogoutStoreFailure(t *testing.T) {
	db := newMockStore()
	db.revokeAllErr = errors.New("store down")
	audit := &mockAudit{}
	handler := newTestRouter(db, audit)

	rr := doJSON(t, handler, "POST", "/api/v1/admin/logout",
		logoutRequest{UserID: "user-456", AdminUserID: "admin-123"}, adminHeaders())
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Empty(t, audit.events)
}

func TestAdminSessionRoutes(t *testing.T) {
	db := newMockStore()
	handler := newTestRouter(db, &mockAudit{})

	rr := doJSON(t, handler, "POST", "/api/v1/admin/users/user-456/sessions", nil, adminHeaders())
	require.Equal(t, http.StatusCreated, rr.Code)

	var created common.SessionRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.Equal(t, "user-456", created.UserID)
	assert.NotEmpty(t, created.ID)

	rr = doJSON(t, handler, "GET", "/api/v1/admin/users/user-456/sessions", nil, adminHeaders())
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Sessions []common.SessionRecord `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Sessions, 1)
	assert.Equal(t, created.ID, resp.Sessions[0].ID)
}

func TestAdminSuspiciousRoute(t *testing.T) {
	db := newMockStore()
	for i := 0; i < 6; i++ {
		db.events = append(db.events, common.AuthEvent{UserID: "user-1", EventType: common.EventLoginFailure})
	}
	db.events = append(db.events, common.AuthEvent{UserID: "user-2", EventType: common.EventLoginFailure})
	handler := newTestRouter(db, &mockAudit{})

	rr := doJSON(t, handler, "GET", "/api/v1/admin/suspicious", nil, adminHeaders())
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Suspicious []common.SuspiciousActivity `json:"suspicious"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Suspicious, 1)
	assert.Equal(t, common.SuspiciousActivity{UserID: "user-1", FailureCount: 6}, resp.Suspicious[0])
}

func TestAdminRevokeRawToken(t *testing.T) {
	db := newMockStore()
	handler := newTestRouter(db, &mockAudit{})
	token := issueTestToken(t, handler)

	rr := doJSON(t, handler, "POST", "/api/v1/admin/revoke",
		revokeRequest{Token: token, Reason: string(common.RevocationReasonSecurityBreach)}, adminHeaders())
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, common.RevocationReasonSecurityBreach, db.revoked[auth.Digest(token)])

	// The token must now fail verification, and keep failing.
	for i := 0; i < 2; i++ {
		vr := doJSON(t, handler, "POST", "/api/v1/token/verify", verifyRequest{Token: token}, nil)
		require.Equal(t, http.StatusOK, vr.Code)

		var result auth.VerifyResult
		require.NoError(t, json.Unmarshal(vr.Body.Bytes(), &result))
		assert.False(t, result.Valid)
		assert.Equal(t, auth.ReasonRevoked, result.Reason)
	}
}

func TestAdminRevokeDefaultsReason(t *testing.T) {
	db := newMockStore()
	handler := newTestRouter(db, &mockAudit{})

	rr := doJSON(t, handler, "POST", "/api/v1/admin/revoke",
		revokeRequest{TokenHash: "deadbeef"}, adminHeaders())
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, common.RevocationReasonAdminAction, db.revoked["deadbeef"])
}

func TestAdminRevokeRejectsBadRequests(t *testing.T) {
	db := newMockStore()
	handler := newTestRouter(db, &mockAudit{})

	rr := doJSON(t, handler, "POST", "/api/v1/admin/revoke", revokeRequest{}, adminHeaders())
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, handler, "POST", "/api/v1/admin/revoke",
		revokeRequest{TokenHash: "deadbeef", Reason: "bogus"}, adminHeaders())
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

// Package store implements the revocation and session store contract on
// redis. The rest of the system treats it as a remote service reached one
// bounded round trip at a time.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lettera/trackauth/pkg/audit"
	"github.com/lettera/trackauth/pkg/common"
)

// RedisStore keeps revocation records and session state in redis hashes,
// keyed the way the control plane keys its entities.
type RedisStore struct {
	db      *redis.Client
	timeout time.Duration
}

// NewRedisStore creates a store on the given client.
func NewRedisStore(db *redis.Client) *RedisStore {
	return &RedisStore{db: db, timeout: time.Second}
}

func revocationKey(tokenHash string) string {
	return fmt.Sprintf("revoked:%s", tokenHash)
}

func sessionKey(userID, sessionID string) string {
	return fmt.Sprintf("session:%s:%s", userID, sessionID)
}

// IsRevoked reports whether a revocation record exists for the token hash.
func (r *RedisStore) IsRevoked(ctx context.Context, tokenHash string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	n, err := r.db.Exists(ctx, revocationKey(tokenHash)).Result()
	if err != nil {
		return false, fmt.Errorf("revocation lookup: %w", err)
	}
	return n > 0, nil
}

// Revoke writes the revocation record for a token hash. Revoking an already
// revoked hash overwrites the record; records are never deleted.
func (r *RedisStore) Revoke(ctx context.Context, tokenHash string, reason common.RevocationReason) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	data := map[string]interface{}{
		"tokenHash": tokenHash,
		"reason":    string(reason),
		"revokedAt": time.Now().Format(time.RFC3339Nano),
	}
	if err := r.db.HSet(ctx, revocationKey(tokenHash), data).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// GetRevocation returns the revocation record for a token hash, or nil when
// the token has not been revoked.
func (r *RedisStore) GetRevocation(ctx context.Context, tokenHash string) (*common.RevocationRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	data, err := r.db.HGetAll(ctx, revocationKey(tokenHash)).Result()
	if err != nil {
		return nil, fmt.Errorf("revocation fetch: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return &common.RevocationRecord{
		TokenHash: data["tokenHash"],
		Reason:    common.RevocationReason(data["reason"]),
		RevokedAt: parseTime(data["revokedAt"]),
	}, nil
}

// RecordSession stores a session for a user. Sessions are registered by the
// host CMS, not by token issuance.
func (r *RedisStore) RecordSession(ctx context.Context, session common.SessionRecord) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	data := map[string]interface{}{
		"id":         session.ID,
		"userId":     session.UserID,
		"createdAt":  session.CreatedAt.Format(time.RFC3339Nano),
		"lastSeenAt": session.LastSeenAt.Format(time.RFC3339Nano),
		"revoked":    session.Revoked,
	}
	if err := r.db.HSet(ctx, sessionKey(session.UserID, session.ID), data).Err(); err != nil {
		return fmt.Errorf("record session: %w", err)
	}
	return nil
}

// ListSessions retrieves all sessions stored for a user.
func (r *RedisStore) ListSessions(ctx context.Context, userID string) ([]common.SessionRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	keys, err := r.scanKeys(ctx, sessionKey(userID, "*"))
	if err != nil {
		return nil, err
	}

	sessions := make([]common.SessionRecord, 0, len(keys))
	for _, key := range keys {
		data, err := r.db.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("session fetch: %w", err)
		}
		sessions = append(sessions, common.SessionRecord{
			ID:         data["id"],
			UserID:     data["userId"],
			CreatedAt:  parseTime(data["createdAt"]),
			LastSeenAt: parseTime(data["lastSeenAt"]),
			Revoked:    parseBool(data["revoked"]),
		})
	}
	return sessions, nil
}

// RevokeAllForUser marks every session of the user revoked in a single
// transaction. Re-running it for the same user is safe: already revoked
// sessions are simply written again.
func (r *RedisStore) RevokeAllForUser(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	keys, err := r.scanKeys(ctx, sessionKey(userID, "*"))
	if err != nil {
		return err
	}

	pipe := r.db.TxPipeline()
	for _, key := range keys {
		pipe.HSet(ctx, key, "revoked", true)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("revoke sessions for %s: %w", userID, err)
	}
	return nil
}

// QueryFailureEvents returns the login-failure events appended to the audit
// stream since the given time. The time/type filter runs store-side; callers
// only aggregate.
func (r *RedisStore) QueryFailureEvents(ctx context.Context, since time.Time) ([]common.AuthEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// Stream ids are ms timestamps, so the window bound maps directly onto
	// the range start.
	start := strconv.FormatInt(since.UnixMilli(), 10)
	entries, err := r.db.XRange(ctx, audit.EventStream, start, "+").Result()
	if err != nil {
		return nil, fmt.Errorf("failure-event query: %w", err)
	}

	events := make([]common.AuthEvent, 0, len(entries))
	for _, entry := range entries {
		eventType, _ := entry.Values["eventType"].(string)
		if eventType != common.EventLoginFailure {
			continue
		}
		userID, _ := entry.Values["userId"].(string)
		createdAt, _ := entry.Values["createdAt"].(string)

		event := common.AuthEvent{
			UserID:    userID,
			EventType: eventType,
			CreatedAt: parseTime(createdAt),
		}
		if raw, ok := entry.Values["metadata"].(string); ok && raw != "" {
			_ = json.Unmarshal([]byte(raw), &event.Metadata)
		}
		events = append(events, event)
	}
	return events, nil
}

func (r *RedisStore) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := r.db.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", pattern, err)
	}
	return keys, nil
}

// Helper functions to parse string values from redis
func parseBool(value string) bool {
	v, _ := strconv.ParseBool(value)
	return v
}

func parseTime(value string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, value)
	return t
}

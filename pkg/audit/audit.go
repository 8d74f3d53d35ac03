// Package audit records authentication-relevant events in an append-only
// redis stream and pushes them to the affected user's live sessions.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lettera/trackauth/pkg/common"
)

// EventStream is the append-only stream every auth event lands on.
const EventStream = "authevents"

// UserChannel is the pub/sub channel a user's live sessions subscribe to.
// A force-logout event published here is what lets the client self-terminate
// in real time.
func UserChannel(userID string) string {
	return fmt.Sprintf("authevents:user:%s", userID)
}

// RedisAuditLogger appends auth events to the event stream and publishes
// them on the target user's channel.
type RedisAuditLogger struct {
	db      *redis.Client
	timeout time.Duration
}

// NewRedisAuditLogger creates a logger on the given client.
func NewRedisAuditLogger(db *redis.Client) *RedisAuditLogger {
	return &RedisAuditLogger{db: db, timeout: time.Second}
}

// LogAuthEvent appends the event and notifies the user's channel. The append
// is the durable record; the publish is best-effort fan-out and its error is
// folded into the same result since a lost push means the forced logout will
// not propagate until the client next verifies.
func (l *RedisAuditLogger) LogAuthEvent(ctx context.Context, event common.AuthEvent) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("marshal event metadata: %w", err)
	}

	values := map[string]interface{}{
		"userId":    event.UserID,
		"eventType": event.EventType,
		"createdAt": event.CreatedAt.Format(time.RFC3339Nano),
		"metadata":  string(metadata),
	}

	pipe := l.db.TxPipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{Stream: EventStream, Values: values})
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	pipe.Publish(ctx, UserChannel(event.UserID), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append auth event: %w", err)
	}
	return nil
}

package auth

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/lettera/trackauth/pkg/common"
)

// SuspiciousFailureThreshold is the strict lower bound on recent
// authentication failures before a user is flagged. Exactly this many
// failures does not qualify.
const SuspiciousFailureThreshold = 5

// SessionStore is the session-scoped surface of the revocation store
// consumed by the admin service.
type SessionStore interface {
	RevokeAllForUser(ctx context.Context, userID string) error
	ListSessions(ctx context.Context, userID string) ([]common.SessionRecord, error)
	QueryFailureEvents(ctx context.Context, since time.Time) ([]common.AuthEvent, error)
}

// AuditLogger appends to the authentication event record.
type AuditLogger interface {
	LogAuthEvent(ctx context.Context, event common.AuthEvent) error
}

// AdminSessionService performs administrative session revocation and scans
// the event history for repeated-failure patterns.
type AdminSessionService struct {
	store    SessionStore
	audit    AuditLogger
	lookback time.Duration
	log      *zap.Logger

	now func() time.Time
}

// NewAdminSessionService creates the admin service. lookback bounds the
// failure-event window scanned by DetectSuspiciousActivity.
func NewAdminSessionService(store SessionStore, audit AuditLogger, lookback time.Duration, log *zap.Logger) *AdminSessionService {
	return &AdminSessionService{
		store:    store,
		audit:    audit,
		lookback: lookback,
		log:      log,
		now:      time.Now,
	}
}

// ForceLogout revokes every session of the target user. On success it writes
// an audit event attributed to the TARGET user, not the admin: the event has
// to land on the target's own event stream so their live client can receive
// it and self-terminate. If the revocation fails, no audit event is written
// and false is returned.
func (s *AdminSessionService) ForceLogout(ctx context.Context, targetUserID, adminUserID string) bool {
	if err := s.store.RevokeAllForUser(ctx, targetUserID); err != nil {
		s.log.Error("bulk session revocation failed",
			zap.String("userId", targetUserID),
			zap.String("adminUserId", adminUserID),
			zap.Error(err))
		return false
	}

	event := common.AuthEvent{
		UserID:    targetUserID,
		EventType: common.EventAdminForceLogout,
		CreatedAt: s.now(),
		Metadata: map[string]string{
			"action":      common.EventAdminForceLogout,
			"adminUserId": adminUserID,
		},
	}
	if err := s.audit.LogAuthEvent(ctx, event); err != nil {
		// The revocation itself took effect, so the call still succeeds;
		// the lost audit record is surfaced through the log.
		s.log.Error("audit write failed after session revocation",
			zap.String("userId", targetUserID),
			zap.Error(err))
	}
	return true
}

// GetUserSessions lists the sessions known for a user. Read failures degrade
// to an empty list instead of propagating.
func (s *AdminSessionService) GetUserSessions(ctx context.Context, userID string) []common.SessionRecord {
	sessions, err := s.store.ListSessions(ctx, userID)
	if err != nil {
		s.log.Warn("session lookup failed, reporting no sessions",
			zap.String("userId", userID),
			zap.Error(err))
		return []common.SessionRecord{}
	}
	return sessions
}

// DetectSuspiciousActivity aggregates recent authentication failures per
// user and returns those strictly above the threshold, ordered by failure
// count descending then user id. Query failures degrade to an empty result.
func (s *AdminSessionService) DetectSuspiciousActivity(ctx context.Context) []common.SuspiciousActivity {
	since := s.now().Add(-s.lookback)
	events, err := s.store.QueryFailureEvents(ctx, since)
	if err != nil {
		s.log.Warn("failure-event query failed, reporting no suspicious activity",
			zap.Error(err))
		return []common.SuspiciousActivity{}
	}

	counts := make(map[string]int)
	for _, event := range events {
		counts[event.UserID]++
	}

	flagged := make([]common.SuspiciousActivity, 0)
	for userID, count := range counts {
		if count > SuspiciousFailureThreshold {
			flagged = append(flagged, common.SuspiciousActivity{
				UserID:       userID,
				FailureCount: count,
			})
		}
	}

	sort.Slice(flagged, func(i, j int) bool {
		if flagged[i].FailureCount != flagged[j].FailureCount {
			return flagged[i].FailureCount > flagged[j].FailureCount
		}
		return flagged[i].UserID < flagged[j].UserID
	})
	return flagged
}

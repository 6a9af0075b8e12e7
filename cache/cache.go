// Package cache holds the advisory session store and the recovery sync
// counter. Neither is a source of truth: a miss or an error always falls
// through to the relational store, never to a denial.
package cache

import (
	"context"
	"time"
)

// DefaultSessionTTL is the reference session record lifetime.
const DefaultSessionTTL = 7 * 24 * time.Hour

// SessionRecord is the lightweight per-user entry kept alongside a live
// session. It carries no authorization state.
type SessionRecord struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionStore is a TTL key-value store of session records keyed by the
// internal user id.
type SessionStore interface {
	Put(ctx context.Context, rec SessionRecord, ttl time.Duration) error
	Get(ctx context.Context, userID string) (*SessionRecord, bool)
	Delete(ctx context.Context, userID string) error
}

// SyncCounter tracks how often the recovery synchronizer fired, keyed per
// calendar day. Used for operational alerting only.
type SyncCounter interface {
	// Incr bumps the day's counter and returns the running count.
	Incr(ctx context.Context, day string) (int64, error)
}

// DayKey formats the counter key for a point in time (UTC calendar day).
func DayKey(t time.Time) string {
	return "recovery:" + t.UTC().Format("2006-01-02")
}

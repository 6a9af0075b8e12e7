// Package redis backs the session cache and sync counter with a shared
// Redis instance.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stagedoor/identity/cache"
)

// SessionStore implements cache.SessionStore using Redis hashes.
type SessionStore struct {
	client *redis.Client
	prefix string
}

// NewSessionStore creates a new SessionStore. prefix namespaces the keys,
// e.g. "stagedoor".
func NewSessionStore(client *redis.Client, prefix string) *SessionStore {
	return &SessionStore{
		client: client,
		prefix: prefix,
	}
}

func (r *SessionStore) sessionKey(userID string) string {
	return fmt.Sprintf("%s:session:%s", r.prefix, userID)
}

func (r *SessionStore) counterKey(day string) string {
	return fmt.Sprintf("%s:sync:%s", r.prefix, day)
}

// Put stores a session record with the given TTL.
func (r *SessionStore) Put(ctx context.Context, rec cache.SessionRecord, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = cache.DefaultSessionTTL
	}
	key := r.sessionKey(rec.UserID)

	entry := map[string]any{
		"user_id":    rec.UserID,
		"email":      rec.Email,
		"provider":   rec.Provider,
		"created_at": rec.CreatedAt.Unix(),
	}

	if _, err := r.client.HSet(ctx, key, entry).Result(); err != nil {
		return fmt.Errorf("failed to set session in Redis: %w", err)
	}

	if _, err := r.client.Expire(ctx, key, ttl).Result(); err != nil {
		return fmt.Errorf("failed to set session expiry in Redis: %w", err)
	}

	return nil
}

// Get retrieves a session record. A Redis error reads as a miss; callers
// fall through to the relational store.
func (r *SessionStore) Get(ctx context.Context, userID string) (*cache.SessionRecord, bool) {
	res, err := r.client.HGetAll(ctx, r.sessionKey(userID)).Result()
	if err != nil || len(res) == 0 {
		return nil, false
	}

	rec := &cache.SessionRecord{
		UserID:   res["user_id"],
		Email:    res["email"],
		Provider: res["provider"],
	}
	if unix, perr := parseUnix(res["created_at"]); perr == nil {
		rec.CreatedAt = unix
	}

	return rec, true
}

// Delete removes the session record. Deleting an absent entry is not an error.
func (r *SessionStore) Delete(ctx context.Context, userID string) error {
	if _, err := r.client.Del(ctx, r.sessionKey(userID)).Result(); err != nil {
		return fmt.Errorf("failed to delete session in Redis: %w", err)
	}
	return nil
}

// Incr implements cache.SyncCounter on the same client. The key expires two
// days after its last bump so stale day counters clean themselves up.
func (r *SessionStore) Incr(ctx context.Context, day string) (int64, error) {
	key := r.counterKey(day)

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment sync counter in Redis: %w", err)
	}

	if _, err := r.client.Expire(ctx, key, 48*time.Hour).Result(); err != nil {
		return count, fmt.Errorf("failed to set sync counter expiry in Redis: %w", err)
	}

	return count, nil
}

var (
	_ cache.SessionStore = (*SessionStore)(nil)
	_ cache.SyncCounter  = (*SessionStore)(nil)
)

func parseUnix(s string) (time.Time, error) {
	var unix int64
	if _, err := fmt.Sscanf(s, "%d", &unix); err != nil {
		return time.Time{}, err
	}
	return time.Unix(unix, 0), nil
}

package identity

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventWebhookCreated  ActivityEventType = "identity.webhook.created"
	ActivityEventWebhookUpdated  ActivityEventType = "identity.webhook.updated"
	ActivityEventWebhookDeleted  ActivityEventType = "identity.webhook.deleted"
	ActivityEventWebhookIgnored  ActivityEventType = "identity.webhook.ignored"
	ActivityEventRecoverySuccess ActivityEventType = "identity.recovery.success"
	ActivityEventRecoveryFailure ActivityEventType = "identity.recovery.failure"
	// ActivityEventRecoveryAlert fires when the per-day recovery count crosses
	// the threshold: the webhook channel itself is probably unhealthy.
	ActivityEventRecoveryAlert ActivityEventType = "identity.recovery.alert"
	ActivityEventLogout        ActivityEventType = "identity.session.logout"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	UserID     string
	ExternalID string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

// NormalizeActivitySink substitutes a no-op sink for nil.
func NormalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

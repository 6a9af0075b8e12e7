// Package sync rebuilds missing local identities from the upstream provider.
// It is the fallback path for when a webhook delivery was lost: a valid
// session token references a user the store has never seen, so the user is
// fetched from the provider and materialized on demand.
package sync

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"

	"github.com/stagedoor/identity"
	"github.com/stagedoor/identity/cache"
	"github.com/stagedoor/identity/provider"
)

// DefaultTimeout bounds the upstream fetch during recovery. Recovery runs
// inline with a user request, so it must fail fast.
const DefaultTimeout = 10 * time.Second

// DefaultAlertThreshold is the per-day recovery count past which an alert
// event fires. Steady recoveries mean the webhook channel is broken.
const DefaultAlertThreshold = 5

// UserReader fetches a user from the upstream identity provider.
type UserReader interface {
	GetUser(ctx context.Context, externalID string) (*provider.User, error)
}

// Config configures the recovery service.
type Config struct {
	Users    identity.Users
	Provider UserReader
	Counter  cache.SyncCounter
	Sink     identity.ActivitySink
	Logger   identity.Logger
	Metrics  *Collector
	// Timeout bounds the provider fetch. Zero means DefaultTimeout.
	Timeout time.Duration
	// AlertThreshold is the daily recovery count that triggers an alert.
	// Zero means DefaultAlertThreshold.
	AlertThreshold int64
	// UseHashID derives internal ids deterministically from the external id
	// so recovery and webhook ingestion propose the same row.
	UseHashID bool
}

// Service recovers identities absent from the local store.
type Service struct {
	users     identity.Users
	provider  UserReader
	counter   cache.SyncCounter
	sink      identity.ActivitySink
	logger    identity.Logger
	metrics   *Collector
	timeout   time.Duration
	threshold int64
	useHashID bool
	now       func() time.Time
}

// NewService creates a recovery service.
func NewService(cfg Config) *Service {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	threshold := cfg.AlertThreshold
	if threshold <= 0 {
		threshold = DefaultAlertThreshold
	}

	logger := cfg.Logger
	if logger == nil {
		logger = identity.DefaultLogger()
	}

	return &Service{
		users:     cfg.Users,
		provider:  cfg.Provider,
		counter:   cfg.Counter,
		sink:      identity.NormalizeActivitySink(cfg.Sink),
		logger:    logger,
		metrics:   cfg.Metrics,
		timeout:   timeout,
		threshold: threshold,
		useHashID: cfg.UseHashID,
		now:       time.Now,
	}
}

// Recover materializes the user identified by externalID in the local store.
// If the user already exists it is returned as is. Failures surface as
// authentication errors so callers can turn them into a re-login challenge.
func (s *Service) Recover(ctx context.Context, externalID string) (*identity.User, error) {
	if s == nil || s.users == nil || s.provider == nil {
		return nil, goerrors.New("recovery service is not configured", goerrors.CategoryInternal).
			WithCode(goerrors.CodeInternal)
	}

	if externalID == "" {
		return nil, identity.ErrAuthenticationFailed.Clone()
	}

	// Another request may have recovered this identity while we were queued.
	existing, err := s.users.ByExternalID(ctx, externalID)
	if err == nil {
		return existing, nil
	}
	if !identity.IsUserNotFound(err) {
		return nil, err
	}

	user, err := s.recoverFromProvider(ctx, externalID)
	if err != nil {
		s.recordFailure(ctx, externalID, err)
		return nil, err
	}

	s.recordSuccess(ctx, user)
	s.bumpCounter(ctx, externalID)

	return user, nil
}

func (s *Service) recoverFromProvider(ctx context.Context, externalID string) (*identity.User, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	upstream, err := s.provider.GetUser(fetchCtx, externalID)
	if err != nil {
		s.logger.Error("recovery fetch for %s failed: %v", externalID, err)
		upErr := identity.ErrUpstream.Clone().
			WithMetadata(map[string]any{"external_id": externalID})
		upErr.Source = err
		return nil, authFailure(upErr)
	}

	email, ok := upstream.PrimaryEmail()
	if !ok {
		emailErr := identity.ErrMissingPrimaryEmail.Clone().
			WithMetadata(map[string]any{"external_id": externalID})
		return nil, authFailure(emailErr)
	}

	prov, subject := identity.SelectProviderIdentity(linkedAccounts(upstream), externalID)

	record := &identity.User{
		ID:              s.internalID(externalID),
		ExternalID:      externalID,
		Provider:        prov,
		ProviderSubject: subject,
		Email:           email,
	}

	created, err := s.users.CreateIdentity(ctx, record)
	if err != nil {
		if identity.IsDuplicateIdentity(err) {
			// The webhook landed first. Its row wins.
			return s.users.ByExternalID(ctx, externalID)
		}
		return nil, err
	}

	return created, nil
}

// authFailure collapses a recovery error into the uniform authentication
// failure callers render, keeping the specific cause in the source chain.
func authFailure(cause *goerrors.Error) *goerrors.Error {
	authErr := identity.ErrAuthenticationFailed.Clone()
	authErr.Source = cause
	return authErr
}

func (s *Service) internalID(externalID string) uuid.UUID {
	if s.useHashID {
		if id, err := hashid.NewUUID(externalID); err == nil {
			return id
		}
	}
	return uuid.New()
}

func linkedAccounts(u *provider.User) []identity.LinkedAccount {
	accounts := make([]identity.LinkedAccount, 0, len(u.ExternalAccounts))
	for _, a := range u.ExternalAccounts {
		accounts = append(accounts, identity.LinkedAccount{
			Type:    a.Provider,
			Subject: a.Subject,
		})
	}
	return accounts
}

func (s *Service) bumpCounter(ctx context.Context, externalID string) {
	if s.counter == nil {
		return
	}

	day := cache.DayKey(s.now())
	count, err := s.counter.Incr(ctx, day)
	if err != nil {
		s.logger.Warn("recovery counter increment failed: %v", err)
		return
	}

	if count > s.threshold {
		s.logger.Warn("recovery count for %s is %d, webhook channel may be unhealthy", day, count)
		if s.metrics != nil {
			s.metrics.RecordAlert()
		}
		s.record(ctx, identity.ActivityEvent{
			EventType:  identity.ActivityEventRecoveryAlert,
			ExternalID: externalID,
			Metadata:   map[string]any{"day": day, "count": count},
			OccurredAt: s.now(),
		})
	}
}

func (s *Service) recordSuccess(ctx context.Context, user *identity.User) {
	if s.metrics != nil {
		s.metrics.RecordRecovery()
	}
	s.record(ctx, identity.ActivityEvent{
		EventType:  identity.ActivityEventRecoverySuccess,
		UserID:     user.ID.String(),
		ExternalID: user.ExternalID,
		OccurredAt: s.now(),
	})
}

func (s *Service) recordFailure(ctx context.Context, externalID string, cause error) {
	if s.metrics != nil {
		s.metrics.RecordFailure()
	}
	s.record(ctx, identity.ActivityEvent{
		EventType:  identity.ActivityEventRecoveryFailure,
		ExternalID: externalID,
		Metadata:   map[string]any{"error": cause.Error()},
		OccurredAt: s.now(),
	})
}

func (s *Service) record(ctx context.Context, event identity.ActivityEvent) {
	if err := s.sink.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record failed: %v", err)
	}
}

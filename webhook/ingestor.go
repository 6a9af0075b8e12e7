package webhook

import (
	"context"
	"encoding/json"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"

	"github.com/stagedoor/identity"
)

// Provider event types. Unknown types are acknowledged without processing so
// future event kinds never break delivery retries.
const (
	EventIdentityCreated = "identity.created"
	EventIdentityUpdated = "identity.updated"
	EventIdentityDeleted = "identity.deleted"
	EventSessionCreated  = "session.created"
)

// Outcome classifies what an event application did.
type Outcome string

const (
	OutcomeCreated      Outcome = "created"
	OutcomeExists       Outcome = "exists"
	OutcomeUpdated      Outcome = "updated"
	OutcomeDeleted      Outcome = "deleted"
	OutcomeAcknowledged Outcome = "acknowledged"
	OutcomeIgnored      Outcome = "ignored"
)

// Event is the provider's delivery envelope.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Validate will run validation rules
func (e Event) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Type, validation.Required),
	)
}

// identityData is the identity payload inside identity.* events. It mirrors
// the provider's user read shape.
type identityData struct {
	ID             string `json:"id"`
	EmailAddresses []struct {
		ID      string `json:"id"`
		Address string `json:"email_address"`
	} `json:"email_addresses"`
	PrimaryEmailID   string `json:"primary_email_address_id"`
	ExternalAccounts []struct {
		Provider string `json:"provider"`
		Subject  string `json:"provider_user_id"`
	} `json:"external_accounts"`
}

func (d identityData) primaryEmail() string {
	for _, e := range d.EmailAddresses {
		if e.ID == d.PrimaryEmailID && e.Address != "" {
			return e.Address
		}
	}
	return ""
}

func (d identityData) linkedAccounts() []identity.LinkedAccount {
	accounts := make([]identity.LinkedAccount, 0, len(d.ExternalAccounts))
	for _, a := range d.ExternalAccounts {
		accounts = append(accounts, identity.LinkedAccount{
			Type:    a.Provider,
			Subject: a.Subject,
		})
	}
	return accounts
}

// Result reports how an event was applied.
type Result struct {
	Outcome Outcome
	Message string
	User    *identity.User
}

// Ingestor applies provider lifecycle events to the identity store,
// idempotently; replayed deliveries converge on the same rows.
type Ingestor struct {
	users     identity.Users
	logger    identity.Logger
	sink      identity.ActivitySink
	metrics   *Collector
	useHashID bool
}

// IngestorOption customizes the Ingestor.
type IngestorOption func(*Ingestor)

// WithLogger overrides the default logger.
func WithLogger(l identity.Logger) IngestorOption {
	return func(i *Ingestor) {
		if l != nil {
			i.logger = l
		}
	}
}

// WithActivitySink attaches an activity sink for applied events.
func WithActivitySink(s identity.ActivitySink) IngestorOption {
	return func(i *Ingestor) {
		i.sink = identity.NormalizeActivitySink(s)
	}
}

// WithMetrics attaches a prometheus collector.
func WithMetrics(c *Collector) IngestorOption {
	return func(i *Ingestor) {
		i.metrics = c
	}
}

// WithDeterministicIDs derives internal ids from the external id via hashid
// instead of minting random UUIDs. Both creation paths then propose the same
// id for the same identity.
func WithDeterministicIDs() IngestorOption {
	return func(i *Ingestor) {
		i.useHashID = true
	}
}

// NewIngestor creates a webhook event ingestor.
func NewIngestor(users identity.Users, opts ...IngestorOption) *Ingestor {
	i := &Ingestor{
		users:  users,
		logger: identity.DefaultLogger(),
		sink:   identity.NormalizeActivitySink(nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(i)
		}
	}
	return i
}

// Process applies one verified event. Unknown event types are acknowledged,
// never rejected.
func (i *Ingestor) Process(ctx context.Context, event Event) (*Result, error) {
	if err := event.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid webhook payload").
			WithCode(goerrors.CodeBadRequest)
	}

	res, err := i.dispatch(ctx, event)
	if i.metrics != nil {
		outcome := "error"
		if err == nil && res != nil {
			outcome = string(res.Outcome)
		}
		i.metrics.RecordEvent(event.Type, outcome)
	}
	return res, err
}

func (i *Ingestor) dispatch(ctx context.Context, event Event) (*Result, error) {
	switch event.Type {
	case EventIdentityCreated:
		return i.applyCreated(ctx, event)
	case EventIdentityUpdated:
		return i.applyUpdated(ctx, event)
	case EventIdentityDeleted:
		return i.applyDeleted(ctx, event)
	case EventSessionCreated:
		// Login notifications carry no state we own; acknowledge so the
		// provider stops retrying.
		i.logger.Debug("webhook session.created acknowledged")
		return &Result{Outcome: OutcomeAcknowledged, Message: "Session event acknowledged"}, nil
	default:
		i.logger.Info("webhook event type %q received but not processed", event.Type)
		i.record(ctx, identity.ActivityEventWebhookIgnored, "", map[string]any{"type": event.Type})
		return &Result{Outcome: OutcomeIgnored, Message: "Event received but not processed"}, nil
	}
}

func (i *Ingestor) applyCreated(ctx context.Context, event Event) (*Result, error) {
	data, err := decodeIdentityData(event.Data)
	if err != nil {
		return nil, err
	}

	existing, err := i.users.ByExternalID(ctx, data.ID)
	if err == nil {
		// At-least-once delivery; the replay is a success, not a conflict.
		return &Result{Outcome: OutcomeExists, Message: "User already exists", User: existing}, nil
	}
	if !identity.IsUserNotFound(err) {
		return nil, err
	}

	email := data.primaryEmail()
	if email == "" {
		return nil, goerrors.New("identity.created payload has no primary email", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"external_id": data.ID})
	}

	prov, subject := identity.SelectProviderIdentity(data.linkedAccounts(), data.ID)

	record := &identity.User{
		ID:              i.internalID(data.ID),
		ExternalID:      data.ID,
		Provider:        prov,
		ProviderSubject: subject,
		Email:           email,
	}

	created, err := i.users.CreateIdentity(ctx, record)
	if err != nil {
		if identity.IsDuplicateIdentity(err) {
			// Raced with recovery; whoever won, the row is there now.
			winner, rerr := i.users.ByExternalID(ctx, data.ID)
			if rerr != nil {
				return nil, rerr
			}
			return &Result{Outcome: OutcomeExists, Message: "User already exists", User: winner}, nil
		}
		return nil, err
	}

	i.record(ctx, identity.ActivityEventWebhookCreated, data.ID, map[string]any{
		"user_id":  created.ID.String(),
		"provider": string(created.Provider),
	})

	return &Result{Outcome: OutcomeCreated, Message: "User created", User: created}, nil
}

func (i *Ingestor) applyUpdated(ctx context.Context, event Event) (*Result, error) {
	data, err := decodeIdentityData(event.Data)
	if err != nil {
		return nil, err
	}

	existing, err := i.users.ByExternalID(ctx, data.ID)
	if err != nil {
		// An update implies the entity exists; out-of-order delivery is a
		// real error here and the provider's retry will land after created.
		return nil, err
	}

	patch := &identity.User{}
	if email := data.primaryEmail(); email != "" {
		patch.Email = email
	}

	updated, err := i.users.PatchIdentity(ctx, existing.ID, patch)
	if err != nil {
		return nil, err
	}

	i.record(ctx, identity.ActivityEventWebhookUpdated, data.ID, map[string]any{
		"user_id": updated.ID.String(),
	})

	return &Result{Outcome: OutcomeUpdated, Message: "User updated", User: updated}, nil
}

func (i *Ingestor) applyDeleted(ctx context.Context, event Event) (*Result, error) {
	data, err := decodeIdentityData(event.Data)
	if err != nil {
		return nil, err
	}

	if _, err := i.users.ByExternalID(ctx, data.ID); err != nil {
		if identity.IsUserNotFound(err) {
			return &Result{Outcome: OutcomeDeleted, Message: "User already absent"}, nil
		}
		return nil, err
	}

	if err := i.users.DeleteByExternalID(ctx, data.ID); err != nil {
		return nil, err
	}

	i.record(ctx, identity.ActivityEventWebhookDeleted, data.ID, nil)

	return &Result{Outcome: OutcomeDeleted, Message: "User deleted"}, nil
}

func (i *Ingestor) internalID(externalID string) uuid.UUID {
	if i.useHashID {
		if id, err := hashid.NewUUID(externalID); err == nil {
			return id
		}
	}
	return uuid.New()
}

func (i *Ingestor) record(ctx context.Context, et identity.ActivityEventType, externalID string, meta map[string]any) {
	err := i.sink.Record(ctx, identity.ActivityEvent{
		EventType:  et,
		ExternalID: externalID,
		Metadata:   meta,
		OccurredAt: time.Now(),
	})
	if err != nil {
		i.logger.Warn("activity sink record failed: %v", err)
	}
}

func decodeIdentityData(raw json.RawMessage) (*identityData, error) {
	if len(raw) == 0 {
		return nil, goerrors.New("webhook payload has no data", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	data := &identityData{}
	if err := json.Unmarshal(raw, data); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid webhook payload").
			WithCode(goerrors.CodeBadRequest)
	}

	if data.ID == "" {
		return nil, goerrors.New("webhook payload has no identity id", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	return data, nil
}

// Package webhook verifies and applies the identity provider's lifecycle
// event deliveries, keeping the local user store eventually consistent.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/stagedoor/identity"
)

const (
	// HeaderID, HeaderTimestamp and HeaderSignature are the provider's
	// delivery headers; all three are required on every call.
	HeaderID        = "webhook-id"
	HeaderTimestamp = "webhook-timestamp"
	HeaderSignature = "webhook-signature"

	secretPrefix = "whsec_"

	// DefaultTolerance bounds delivery-timestamp skew in both directions.
	DefaultTolerance = 5 * time.Minute
)

// Verifier checks delivery signatures against the shared webhook secret.
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// VerifierOption customizes a Verifier.
type VerifierOption func(*Verifier)

// WithTolerance overrides the timestamp skew tolerance.
func WithTolerance(d time.Duration) VerifierOption {
	return func(v *Verifier) {
		if d > 0 {
			v.tolerance = d
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// NewVerifier creates a Verifier from the configured secret. The secret uses
// the provider's "whsec_" base64 form; a missing secret is an operator
// misconfiguration, surfaced as ErrMissingSigningSecret at call sites.
func NewVerifier(secret string, opts ...VerifierOption) (*Verifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, identity.ErrMissingSigningSecret.Clone()
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, secretPrefix))
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "webhook secret is not valid base64").
			WithTextCode(identity.ErrMissingSigningSecret.TextCode)
	}

	v := &Verifier{
		secret:    raw,
		tolerance: DefaultTolerance,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v, nil
}

// Verify checks the delivery headers against the payload. The signed content
// is "<id>.<timestamp>.<payload>"; the signature header may carry several
// space-separated "v1,<base64>" candidates from key rotation.
func (v *Verifier) Verify(id, timestamp, signature string, payload []byte) error {
	if id == "" || timestamp == "" || signature == "" {
		return goerrors.New("missing webhook delivery headers", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{
				"id_present":        id != "",
				"timestamp_present": timestamp != "",
				"signature_present": signature != "",
			})
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return goerrors.New("webhook timestamp is not a unix time", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	now := v.now()
	delivered := time.Unix(ts, 0)
	if delivered.Before(now.Add(-v.tolerance)) || delivered.After(now.Add(v.tolerance)) {
		return goerrors.New("webhook timestamp outside tolerance", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"timestamp": timestamp})
	}

	expected := v.Sign(id, timestamp, payload)

	for _, candidate := range strings.Fields(signature) {
		parts := strings.SplitN(candidate, ",", 2)
		if len(parts) != 2 || parts[0] != "v1" {
			continue
		}
		if hmac.Equal([]byte(parts[1]), []byte(expected)) {
			return nil
		}
	}

	return goerrors.New("webhook signature mismatch", goerrors.CategoryValidation).
		WithCode(goerrors.CodeBadRequest)
}

// Sign computes the base64 HMAC-SHA256 signature for a delivery. Exposed so
// tests and local tooling can forge valid deliveries.
func (v *Verifier) Sign(id, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	fmt.Fprintf(mac, "%s.%s.", id, timestamp)
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

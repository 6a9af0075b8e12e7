// Package identity keeps externally managed OAuth identities in sync with the
// marketplace's own user records and authorizes every protected request.
//
// The external provider owns sign-in; this package owns the local User row,
// the session tokens the application issues, and role enforcement. Local rows
// are created by two independent paths that must converge on the same record:
// the webhook ingestor (see the webhook subpackage), which applies provider
// lifecycle events, and the recovery synchronizer (see the sync subpackage),
// which rebuilds a missing row on demand when a valid token references an
// identity no webhook ever delivered. Both paths insert and re-read on a
// uniqueness conflict; there is no cross-request locking.
//
// Tokens are HMAC-signed bearer credentials that never carry a role. The role
// is read from the store on every request so role changes apply immediately
// to already-issued tokens.
package identity

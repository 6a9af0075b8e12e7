package identity

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeTokenExpired     = "TOKEN_EXPIRED"
	textCodeTokenMalformed   = "TOKEN_MALFORMED"
	textCodeSignatureInvalid = "TOKEN_SIGNATURE_INVALID"
	textCodeTokenEncoding    = "TOKEN_ENCODING_FAILED"
	textCodeAuthnFailed      = "AUTHENTICATION_FAILED"
	textCodeAuthzFailed      = "AUTHORIZATION_FAILED"
	textCodeUserNotFound     = "USER_NOT_FOUND"
	textCodeDuplicate        = "DUPLICATE_IDENTITY"
	textCodeMissingSecret    = "SIGNING_SECRET_MISSING"
	textCodeUpstream         = "UPSTREAM_PROVIDER_ERROR"
	textCodePrimaryEmail     = "PRIMARY_EMAIL_MISSING"
)

// ErrTokenExpired is returned when a token's expiry has passed.
var ErrTokenExpired = goerrors.New("authentication token expired", goerrors.CategoryAuth).
	WithTextCode(textCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed is returned for structurally invalid tokens.
var ErrTokenMalformed = goerrors.New("authentication token malformed", goerrors.CategoryAuth).
	WithTextCode(textCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrSignatureInvalid is returned when the token signature does not match.
var ErrSignatureInvalid = goerrors.New("authentication token signature invalid", goerrors.CategoryAuth).
	WithTextCode(textCodeSignatureInvalid).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenEncoding is returned when a token cannot be issued.
var ErrTokenEncoding = goerrors.New("unable to encode session token", goerrors.CategoryInternal).
	WithTextCode(textCodeTokenEncoding).
	WithCode(goerrors.CodeInternal)

// ErrAuthenticationFailed is the only authentication error end users see; the
// message is intentionally stable and actionable.
var ErrAuthenticationFailed = goerrors.New("please sign in again", goerrors.CategoryAuth).
	WithTextCode(textCodeAuthnFailed).
	WithCode(goerrors.CodeUnauthorized)

// ErrAuthorizationFailed is returned when a valid principal lacks the role.
var ErrAuthorizationFailed = goerrors.New("insufficient role for this resource", goerrors.CategoryAuthz).
	WithTextCode(textCodeAuthzFailed).
	WithCode(goerrors.CodeForbidden)

// ErrUserNotFound is returned when a user was required to exist.
var ErrUserNotFound = goerrors.New("user not found", goerrors.CategoryNotFound).
	WithTextCode(textCodeUserNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrDuplicateIdentity reports a unique-constraint conflict on the identity
// key. Callers must treat it as "someone else created it first" and re-read;
// it is never surfaced to an HTTP client.
var ErrDuplicateIdentity = goerrors.New("identity already exists", goerrors.CategoryConflict).
	WithTextCode(textCodeDuplicate).
	WithCode(goerrors.CodeConflict)

// ErrMissingSigningSecret means the operator never configured the shared
// secret; a 500, not a client error.
var ErrMissingSigningSecret = goerrors.New("signing secret is not configured", goerrors.CategoryInternal).
	WithTextCode(textCodeMissingSecret).
	WithCode(goerrors.CodeInternal)

// ErrUpstream is returned when the external provider call errors or times out.
var ErrUpstream = goerrors.New("external identity provider unavailable", goerrors.CategoryOperation).
	WithTextCode(textCodeUpstream).
	WithCode(goerrors.CodeInternal)

// ErrMissingPrimaryEmail is returned when the upstream record has no email
// matching its declared primary-email id.
var ErrMissingPrimaryEmail = goerrors.New("provider user has no primary email", goerrors.CategoryOperation).
	WithTextCode(textCodePrimaryEmail).
	WithCode(goerrors.CodeInternal)

// HasTextCode checks whether err (or anything it wraps) carries the text code.
func HasTextCode(err error, code string) bool {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	return rich.TextCode == code
}

// IsDuplicateIdentity checks for the identity uniqueness conflict, either as
// our rich error or as a raw driver violation.
func IsDuplicateIdentity(err error) bool {
	if err == nil {
		return false
	}
	return HasTextCode(err, textCodeDuplicate) || IsUniqueViolation(err)
}

// IsUserNotFound checks for the rich not-found error.
func IsUserNotFound(err error) bool {
	return HasTextCode(err, textCodeUserNotFound)
}

// IsAuthenticationFailed checks for the stable authentication failure.
func IsAuthenticationFailed(err error) bool {
	return HasTextCode(err, textCodeAuthnFailed)
}

// IsUniqueViolation will check for driver-level unique constraint errors.
// SQLite and Postgres word these differently and neither exports a typed
// error through database/sql.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "constraint failed: UNIQUE") ||
		strings.Contains(msg, "SQLSTATE 23505")
}

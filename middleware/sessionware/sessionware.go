// Package sessionware authenticates requests with bearer session tokens and
// enforces role requirements. The token only proves who the caller is; the
// principal, including its role, is re-resolved from the identity store on
// every request so role changes apply without reissuing tokens.
package sessionware

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/stagedoor/identity"
	"github.com/stagedoor/identity/cache"
)

const (
	// PrincipalKey is the fiber locals key holding the resolved *identity.User.
	PrincipalKey = "identity:principal"
	// ClaimsKey is the fiber locals key holding the verified *identity.SessionClaims.
	ClaimsKey = "identity:claims"

	authScheme = "Bearer"
)

// Recoverer rebuilds a missing local identity from the upstream provider.
// *sync.Service satisfies it.
type Recoverer interface {
	Recover(ctx context.Context, externalID string) (*identity.User, error)
}

// RecoverFunc adapts a function to Recoverer.
type RecoverFunc func(ctx context.Context, externalID string) (*identity.User, error)

// Recover implements Recoverer.
func (f RecoverFunc) Recover(ctx context.Context, externalID string) (*identity.User, error) {
	return f(ctx, externalID)
}

// Config configures the session middleware.
type Config struct {
	// Tokens verifies bearer tokens. Required.
	Tokens identity.TokenService
	// Users resolves principals. Required.
	Users identity.Users
	// Sessions is the advisory session cache. Optional; lookup and refresh
	// failures never deny a request.
	Sessions cache.SessionStore
	// Recovery rebuilds identities missing from the store. Optional; without
	// it an unknown subject fails authentication.
	Recovery Recoverer
	// SessionTTL is the cache entry lifetime refreshed on each request.
	// Zero means cache.DefaultSessionTTL.
	SessionTTL time.Duration
	// Filter skips the middleware when it returns true.
	Filter func(*fiber.Ctx) bool
	// Optional lets the request through with no principal when authentication
	// fails instead of rendering an error. Handlers behind an optional chain
	// must treat a nil PrincipalFrom as anonymous.
	Optional bool
	// ErrorHandler renders authentication failures. Defaults to a 401 JSON body.
	ErrorHandler fiber.ErrorHandler

	Logger identity.Logger
}

func (cfg *Config) setDefaults() {
	if cfg.Logger == nil {
		cfg.Logger = identity.DefaultLogger()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = cache.DefaultSessionTTL
	}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = defaultErrorHandler
	}
}

func defaultErrorHandler(c *fiber.Ctx, _ error) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": "please sign in again",
	})
}

// New returns a fiber handler that authenticates the request and stores the
// principal and claims in locals. Any failure along the way collapses into a
// single authentication error so callers cannot probe for token state.
func New(cfg Config) fiber.Handler {
	cfg.setDefaults()

	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			return c.Next()
		}

		deny := func(err error) error {
			if cfg.Optional {
				cfg.Logger.Debug("optional authentication failed, proceeding anonymously: %v", err)
				return c.Next()
			}
			return cfg.ErrorHandler(c, err)
		}

		raw, err := TokenFromHeader(c)
		if err != nil {
			return deny(err)
		}

		claims, err := cfg.Tokens.Verify(raw)
		if err != nil {
			cfg.Logger.Debug("session token rejected: %v", err)
			return deny(identity.ErrAuthenticationFailed.Clone())
		}

		user, err := resolvePrincipal(c, cfg, claims)
		if err != nil {
			cfg.Logger.Info("principal resolution for %s failed: %v", claims.Subject, err)
			return deny(identity.ErrAuthenticationFailed.Clone())
		}

		refreshSession(c, cfg, user)

		c.Locals(PrincipalKey, user)
		c.Locals(ClaimsKey, claims)

		ctx := identity.WithContext(c.UserContext(), user)
		c.SetUserContext(identity.WithClaimsContext(ctx, claims))

		return c.Next()
	}
}

// TokenFromHeader extracts the bearer token from the Authorization header.
func TokenFromHeader(c *fiber.Ctx) (string, error) {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return "", identity.ErrAuthenticationFailed.Clone()
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], authScheme) || parts[1] == "" {
		return "", identity.ErrAuthenticationFailed.Clone()
	}

	return parts[1], nil
}

// resolvePrincipal reads the store first rather than the session cache: cached
// records carry no role, and the store read is what makes a role change apply
// to tokens already in flight. The cache is only refreshed afterwards and
// stays advisory.
func resolvePrincipal(c *fiber.Ctx, cfg Config, claims *identity.SessionClaims) (*identity.User, error) {
	ctx := c.UserContext()

	user, err := cfg.Users.ByExternalID(ctx, claims.Subject)
	if err == nil {
		return user, nil
	}

	if !identity.IsUserNotFound(err) {
		return nil, err
	}

	if cfg.Recovery == nil {
		return nil, err
	}

	return cfg.Recovery.Recover(ctx, claims.Subject)
}

func refreshSession(c *fiber.Ctx, cfg Config, user *identity.User) {
	if cfg.Sessions == nil {
		return
	}

	rec := cache.SessionRecord{
		UserID:    user.ID.String(),
		Email:     user.Email,
		Provider:  string(user.Provider),
		CreatedAt: time.Now(),
	}
	if existing, ok := cfg.Sessions.Get(c.UserContext(), rec.UserID); ok {
		rec.CreatedAt = existing.CreatedAt
	}

	if err := cfg.Sessions.Put(c.UserContext(), rec, cfg.SessionTTL); err != nil {
		cfg.Logger.Warn("session cache refresh failed: %v", err)
	}
}

// RequireRole returns a handler that admits only principals whose role is in
// allowed. It must run after New. A principal with no role is denied even if
// the allowed list is empty.
func RequireRole(allowed ...identity.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := PrincipalFrom(c)
		if user == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "please sign in again",
			})
		}

		if !user.Role.In(allowed...) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":          "insufficient role",
				"required_roles": identity.RoleStrings(allowed),
			})
		}

		return c.Next()
	}
}

// RequireOnboarded admits only principals that finished onboarding. It must
// run after New.
func RequireOnboarded() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := PrincipalFrom(c)
		if user == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "please sign in again",
			})
		}

		if !user.OnboardingComplete {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "onboarding incomplete",
			})
		}

		return c.Next()
	}
}

// PrincipalFrom returns the resolved principal, or nil when the request was
// not authenticated.
func PrincipalFrom(c *fiber.Ctx) *identity.User {
	user, _ := c.Locals(PrincipalKey).(*identity.User)
	return user
}

// ClaimsFrom returns the verified session claims, or nil.
func ClaimsFrom(c *fiber.Ctx) *identity.SessionClaims {
	claims, _ := c.Locals(ClaimsKey).(*identity.SessionClaims)
	return claims
}

package sessionware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"

	"github.com/stagedoor/identity"
	"github.com/stagedoor/identity/cache"
)

// Controller serves the session lifecycle endpoints. All routes expect the
// New middleware to have run first.
type Controller struct {
	Tokens   identity.TokenService
	Sessions cache.SessionStore
	Sink     identity.ActivitySink
	Logger   identity.Logger
	Debug    bool
}

// NewController creates the session controller.
func NewController(tokens identity.TokenService, sessions cache.SessionStore) *Controller {
	return &Controller{
		Tokens:   tokens,
		Sessions: sessions,
		Sink:     identity.NormalizeActivitySink(nil),
		Logger:   identity.DefaultLogger(),
	}
}

// RegisterSessionRoutes mounts the session endpoints. Session and refresh
// require authentication; logout runs behind an optional authentication chain
// so it stays idempotent and succeeds even when the token is absent or stale.
func RegisterSessionRoutes(r fiber.Router, ctrl *Controller, cfg Config) {
	grp := r.Group("/auth")

	authn := New(cfg)
	grp.Get("/session", authn, ctrl.Session)
	grp.Post("/refresh", authn, ctrl.Refresh)

	optional := cfg
	optional.Optional = true
	grp.Post("/logout", New(optional), ctrl.Logout)
}

// Session handles GET /auth/session. It reports the resolved principal for
// the presented token.
func (ctrl *Controller) Session(c *fiber.Ctx) error {
	user := PrincipalFrom(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "please sign in again",
		})
	}

	if ctrl.Debug {
		ctrl.Logger.Debug("session principal: %s", print.MaybePrettyJSON(user))
	}

	return c.JSON(fiber.Map{
		"valid": true,
		"user":  user,
	})
}

// Refresh handles POST /auth/refresh. It reissues the presented token with
// fresh timestamps; the claims are otherwise carried over unchanged.
func (ctrl *Controller) Refresh(c *fiber.Ctx) error {
	raw, err := TokenFromHeader(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "please sign in again",
		})
	}

	token, err := ctrl.Tokens.Refresh(raw)
	if err != nil {
		ctrl.Logger.Info("token refresh failed: %v", err)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "please sign in again",
		})
	}

	return c.JSON(fiber.Map{
		"token": token,
	})
}

// Logout handles POST /auth/logout. It drops the cached session entry and
// always reports success; the token itself stays valid until expiry, so
// clients must discard it.
func (ctrl *Controller) Logout(c *fiber.Ctx) error {
	user := PrincipalFrom(c)

	if user != nil && ctrl.Sessions != nil {
		if err := ctrl.Sessions.Delete(c.UserContext(), user.ID.String()); err != nil {
			ctrl.Logger.Warn("session cache delete failed: %v", err)
		}
	}

	if user != nil && ctrl.Sink != nil {
		err := ctrl.Sink.Record(c.UserContext(), identity.ActivityEvent{
			EventType:  identity.ActivityEventLogout,
			UserID:     user.ID.String(),
			ExternalID: user.ExternalID,
			OccurredAt: time.Now(),
		})
		if err != nil {
			ctrl.Logger.Warn("activity sink record failed: %v", err)
		}
	}

	return c.JSON(fiber.Map{
		"success": true,
	})
}

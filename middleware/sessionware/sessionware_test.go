package sessionware_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/stagedoor/identity"
	"github.com/stagedoor/identity/cache"
	"github.com/stagedoor/identity/middleware/sessionware"
)

type fixture struct {
	users    identity.Users
	tokens   identity.TokenService
	sessions *cache.MemorySessionStore
	app      *fiber.App
}

func setupFixture(t *testing.T, cfg sessionware.Config) *fixture {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() {
		_ = db.Close()
		_ = sqldb.Close()
	})
	require.NoError(t, identity.CreateSchema(context.Background(), db))

	f := &fixture{
		users:    identity.NewUsersRepository(db),
		tokens:   identity.NewTokenService([]byte("session-test-key"), 1, "stagedoor", nil, nil),
		sessions: cache.NewMemorySessionStore(),
	}
	t.Cleanup(func() { _ = f.sessions.Close() })

	cfg.Tokens = f.tokens
	cfg.Users = f.users
	if cfg.Sessions == nil {
		cfg.Sessions = f.sessions
	}

	f.app = fiber.New()
	authn := sessionware.New(cfg)

	f.app.Get("/me", authn, func(c *fiber.Ctx) error {
		user := sessionware.PrincipalFrom(c)
		sub := ""
		if claims, ok := identity.GetClaims(c.UserContext()); ok {
			sub = claims.Subject
		}
		return c.JSON(fiber.Map{
			"id":   user.ID.String(),
			"role": string(user.Role),
			"sub":  sub,
		})
	})
	f.app.Get("/artists-only", authn, sessionware.RequireRole(identity.RoleArtist, identity.RoleCollective), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	f.app.Get("/booking", authn, sessionware.RequireOnboarded(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	ctrl := sessionware.NewController(f.tokens, cfg.Sessions)
	sessionware.RegisterSessionRoutes(f.app, ctrl, cfg)

	return f
}

func (f *fixture) seedUser(t *testing.T, externalID string, role identity.Role) *identity.User {
	t.Helper()

	user, err := f.users.CreateIdentity(context.Background(), &identity.User{
		ExternalID:      externalID,
		Provider:        identity.ProviderGoogle,
		ProviderSubject: "goog|" + externalID,
		Email:           externalID + "@example.com",
		Role:            role,
	})
	require.NoError(t, err)
	return user
}

func (f *fixture) tokenFor(t *testing.T, user *identity.User) string {
	t.Helper()
	token, err := f.tokens.IssueForUser(user)
	require.NoError(t, err)
	return token
}

func get(t *testing.T, app *fiber.App, path, token string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	res, err := app.Test(req)
	require.NoError(t, err)
	return res
}

func post(t *testing.T, app *fiber.App, path, token string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, nil)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	res, err := app.Test(req)
	require.NoError(t, err)
	return res
}

func bodyJSON(t *testing.T, res *http.Response) map[string]any {
	t.Helper()
	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestMiddlewareAuthentication(t *testing.T) {
	f := setupFixture(t, sessionware.Config{})

	user := f.seedUser(t, "user_2abc", identity.RoleArtist)
	token := f.tokenFor(t, user)

	t.Run("valid token resolves the principal", func(t *testing.T) {
		res := get(t, f.app, "/me", token)
		assert.Equal(t, http.StatusOK, res.StatusCode)

		body := bodyJSON(t, res)
		assert.Equal(t, user.ID.String(), body["id"])
		assert.Equal(t, "artist", body["role"])
		assert.Equal(t, "user_2abc", body["sub"])
	})

	t.Run("missing header denied", func(t *testing.T) {
		res := get(t, f.app, "/me", "")
		assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
		assert.Equal(t, "please sign in again", bodyJSON(t, res)["error"])
	})

	t.Run("wrong scheme denied", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set(fiber.HeaderAuthorization, "Basic dXNlcjpwYXNz")
		res, err := f.app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	})

	t.Run("garbage token denied with the same message", func(t *testing.T) {
		res := get(t, f.app, "/me", "not-a-token")
		assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
		assert.Equal(t, "please sign in again", bodyJSON(t, res)["error"])
	})

	t.Run("unknown subject without recovery denied", func(t *testing.T) {
		ghost := &identity.User{
			ID:              uuid.New(),
			ExternalID:      "user_ghost",
			Provider:        identity.ProviderGoogle,
			ProviderSubject: "goog|ghost",
			Email:           "ghost@example.com",
		}
		res := get(t, f.app, "/me", f.tokenFor(t, ghost))
		assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	})
}

func TestMiddlewareRecovery(t *testing.T) {
	recovered := 0
	var f *fixture
	f = setupFixture(t, sessionware.Config{
		Recovery: sessionware.RecoverFunc(func(ctx context.Context, externalID string) (*identity.User, error) {
			recovered++
			return f.users.CreateIdentity(ctx, &identity.User{
				ExternalID:      externalID,
				Provider:        identity.ProviderGoogle,
				ProviderSubject: "goog|" + externalID,
				Email:           externalID + "@example.com",
			})
		}),
	})

	ghost := &identity.User{
		ID:              uuid.New(),
		ExternalID:      "user_lost",
		Provider:        identity.ProviderGoogle,
		ProviderSubject: "goog|user_lost",
		Email:           "user_lost@example.com",
	}
	token := f.tokenFor(t, ghost)

	res := get(t, f.app, "/me", token)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, 1, recovered)

	t.Run("second request hits the store", func(t *testing.T) {
		res := get(t, f.app, "/me", token)
		assert.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, 1, recovered)
	})
}

func TestRequireRole(t *testing.T) {
	f := setupFixture(t, sessionware.Config{})

	t.Run("matching role passes", func(t *testing.T) {
		user := f.seedUser(t, "user_artist", identity.RoleArtist)
		res := get(t, f.app, "/artists-only", f.tokenFor(t, user))
		assert.Equal(t, http.StatusOK, res.StatusCode)
	})

	t.Run("wrong role forbidden", func(t *testing.T) {
		user := f.seedUser(t, "user_fan", identity.RoleFan)
		res := get(t, f.app, "/artists-only", f.tokenFor(t, user))
		assert.Equal(t, http.StatusForbidden, res.StatusCode)

		body := bodyJSON(t, res)
		assert.ElementsMatch(t, []any{"artist", "collective"}, body["required_roles"])
	})

	t.Run("no role chosen yet forbidden", func(t *testing.T) {
		user := f.seedUser(t, "user_new", "")
		res := get(t, f.app, "/artists-only", f.tokenFor(t, user))
		assert.Equal(t, http.StatusForbidden, res.StatusCode)
	})

	t.Run("no principal unauthorized", func(t *testing.T) {
		app := fiber.New()
		app.Get("/bare", sessionware.RequireRole(identity.RoleArtist), func(c *fiber.Ctx) error {
			return c.SendStatus(fiber.StatusOK)
		})
		req := httptest.NewRequest(http.MethodGet, "/bare", nil)
		res, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	})
}

func TestRoleChangeAppliesToExistingTokens(t *testing.T) {
	f := setupFixture(t, sessionware.Config{})

	user := f.seedUser(t, "user_2abc", identity.RoleFan)
	token := f.tokenFor(t, user)

	res := get(t, f.app, "/artists-only", token)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	_, err := f.users.SetRole(context.Background(), user.ID, identity.RoleArtist)
	require.NoError(t, err)

	// Same token, new role, different outcome.
	res = get(t, f.app, "/artists-only", token)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestRequireOnboarded(t *testing.T) {
	f := setupFixture(t, sessionware.Config{})

	user := f.seedUser(t, "user_2abc", identity.RoleVenue)
	token := f.tokenFor(t, user)

	res := get(t, f.app, "/booking", token)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	_, err := f.users.CompleteOnboarding(context.Background(), user.ID)
	require.NoError(t, err)

	res = get(t, f.app, "/booking", token)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

// failingSessions is a SessionStore whose backend is down.
type failingSessions struct{}

func (failingSessions) Put(context.Context, cache.SessionRecord, time.Duration) error {
	return fmt.Errorf("session backend down")
}

func (failingSessions) Get(context.Context, string) (*cache.SessionRecord, bool) {
	return nil, false
}

func (failingSessions) Delete(context.Context, string) error {
	return fmt.Errorf("session backend down")
}

func TestSessionCacheFailuresNeverDeny(t *testing.T) {
	f := setupFixture(t, sessionware.Config{Sessions: failingSessions{}})

	user := f.seedUser(t, "user_2abc", identity.RoleArtist)
	token := f.tokenFor(t, user)

	res := get(t, f.app, "/me", token)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	t.Run("logout still succeeds", func(t *testing.T) {
		res := post(t, f.app, "/auth/logout", token)
		assert.Equal(t, http.StatusOK, res.StatusCode)
	})
}

func TestSessionEndpoints(t *testing.T) {
	f := setupFixture(t, sessionware.Config{})

	user := f.seedUser(t, "user_2abc", identity.RoleArtist)
	token := f.tokenFor(t, user)

	t.Run("session reports the principal", func(t *testing.T) {
		res := get(t, f.app, "/auth/session", token)
		assert.Equal(t, http.StatusOK, res.StatusCode)

		body := bodyJSON(t, res)
		assert.Equal(t, true, body["valid"])
		payload, ok := body["user"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "user_2abc", payload["external_id"])
	})

	t.Run("refresh returns a new usable token", func(t *testing.T) {
		res := post(t, f.app, "/auth/refresh", token)
		assert.Equal(t, http.StatusOK, res.StatusCode)

		body := bodyJSON(t, res)
		refreshed, ok := body["token"].(string)
		require.True(t, ok)
		require.NotEmpty(t, refreshed)

		res = get(t, f.app, "/me", refreshed)
		assert.Equal(t, http.StatusOK, res.StatusCode)
	})

	t.Run("authenticated request populates the session cache", func(t *testing.T) {
		_, ok := f.sessions.Get(context.Background(), user.ID.String())
		assert.True(t, ok)
	})

	t.Run("logout clears the cache entry and succeeds", func(t *testing.T) {
		res := post(t, f.app, "/auth/logout", token)
		assert.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, true, bodyJSON(t, res)["success"])

		_, ok := f.sessions.Get(context.Background(), user.ID.String())
		assert.False(t, ok)
	})

	t.Run("token still verifies after logout until expiry", func(t *testing.T) {
		res := get(t, f.app, "/me", token)
		assert.Equal(t, http.StatusOK, res.StatusCode)
	})

	t.Run("session and refresh require authentication", func(t *testing.T) {
		res := get(t, f.app, "/auth/session", "")
		assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

		res = post(t, f.app, "/auth/refresh", "")
		assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	})

	t.Run("logout without a token still succeeds", func(t *testing.T) {
		res := post(t, f.app, "/auth/logout", "")
		assert.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, true, bodyJSON(t, res)["success"])
	})

	t.Run("logout with a garbage token still succeeds", func(t *testing.T) {
		res := post(t, f.app, "/auth/logout", "not-a-token")
		assert.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, true, bodyJSON(t, res)["success"])
	})

	t.Run("authenticated logout still clears the cache entry", func(t *testing.T) {
		res := get(t, f.app, "/me", token)
		require.Equal(t, http.StatusOK, res.StatusCode)
		_, ok := f.sessions.Get(context.Background(), user.ID.String())
		require.True(t, ok)

		res = post(t, f.app, "/auth/logout", token)
		assert.Equal(t, http.StatusOK, res.StatusCode)

		_, ok = f.sessions.Get(context.Background(), user.ID.String())
		assert.False(t, ok)
	})
}

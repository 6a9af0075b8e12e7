package identity_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagedoor/identity"
)

var testSigningKey = []byte("test-signing-key-please-rotate")

func newTestTokenService(t *testing.T) *identity.TokenServiceImpl {
	t.Helper()
	return identity.NewTokenService(testSigningKey, 1, "stagedoor", nil, nil)
}

func completeClaims(subject string) *identity.SessionClaims {
	return &identity.SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: subject},
		Email:            "ada@example.com",
		Provider:         "google",
		ProviderSubject:  "google-oauth2|100",
	}
}

func TestTokenServiceIssueAndVerify(t *testing.T) {
	svc := newTestTokenService(t)

	token, err := svc.Issue(completeClaims("user_2abc"))
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.Verify(token)
	require.NoError(t, err)

	assert.Equal(t, "user_2abc", claims.ExternalID())
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.Equal(t, "google", claims.Provider)
	assert.Equal(t, "google-oauth2|100", claims.ProviderSubject)
	assert.Equal(t, "stagedoor", claims.Issuer)
	assert.False(t, claims.Issued().IsZero())
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.Expires(), time.Minute)
}

func TestTokenServiceIssueMissingSigningKey(t *testing.T) {
	svc := identity.NewTokenService(nil, 1, "stagedoor", nil, nil)

	_, err := svc.Issue(completeClaims("user_2abc"))
	require.Error(t, err)
	assert.True(t, identity.HasTextCode(err, identity.ErrMissingSigningSecret.TextCode))
}

func TestTokenServiceIssueIncompleteClaims(t *testing.T) {
	svc := newTestTokenService(t)

	cases := []struct {
		name   string
		mutate func(c *identity.SessionClaims)
	}{
		{"missing subject", func(c *identity.SessionClaims) { c.Subject = "" }},
		{"missing email", func(c *identity.SessionClaims) { c.Email = "" }},
		{"missing provider", func(c *identity.SessionClaims) { c.Provider = "" }},
		{"missing provider subject", func(c *identity.SessionClaims) { c.ProviderSubject = "" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			claims := completeClaims("user_2abc")
			tc.mutate(claims)

			_, err := svc.Issue(claims)
			require.Error(t, err)
			assert.True(t, identity.HasTextCode(err, identity.ErrTokenEncoding.TextCode))
		})
	}
}

func TestTokenServiceVerifyExpired(t *testing.T) {
	svc := newTestTokenService(t)

	claims := completeClaims("user_2abc")
	claims.IssuedAt = jwt.NewNumericDate(time.Now().Add(-2 * time.Hour))
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	token, err := svc.Issue(claims)
	require.NoError(t, err)

	_, err = svc.Verify(token)
	require.Error(t, err)
	assert.True(t, identity.HasTextCode(err, identity.ErrTokenExpired.TextCode))
}

func TestTokenServiceVerifyWrongKey(t *testing.T) {
	svc := newTestTokenService(t)
	other := identity.NewTokenService([]byte("a-different-key-entirely"), 1, "stagedoor", nil, nil)

	token, err := other.Issue(completeClaims("user_2abc"))
	require.NoError(t, err)

	_, err = svc.Verify(token)
	require.Error(t, err)
	assert.True(t, identity.HasTextCode(err, identity.ErrSignatureInvalid.TextCode))
}

func TestTokenServiceVerifyMalformed(t *testing.T) {
	svc := newTestTokenService(t)

	for _, raw := range []string{"", "not-a-token", "aaa.bbb"} {
		_, err := svc.Verify(raw)
		require.Error(t, err)
		assert.True(t, identity.HasTextCode(err, identity.ErrTokenMalformed.TextCode), "token %q", raw)
	}
}

func TestTokenServiceVerifyAudience(t *testing.T) {
	aud := jwt.ClaimStrings{"stagedoor-app", "stagedoor-admin"}
	svc := identity.NewTokenService(testSigningKey, 1, "stagedoor", aud, nil)

	t.Run("stamps and accepts the configured audience", func(t *testing.T) {
		token, err := svc.Issue(completeClaims("user_2abc"))
		require.NoError(t, err)

		claims, err := svc.Verify(token)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string(aud), []string(claims.Audience))
	})

	t.Run("rejects a token minted for another audience", func(t *testing.T) {
		other := identity.NewTokenService(testSigningKey, 1, "stagedoor", jwt.ClaimStrings{"somewhere-else"}, nil)
		token, err := other.Issue(completeClaims("user_2abc"))
		require.NoError(t, err)

		_, err = svc.Verify(token)
		require.Error(t, err)
		assert.True(t, identity.HasTextCode(err, identity.ErrTokenMalformed.TextCode))
	})
}

func TestTokenServiceVerifyRejectsUnexpectedMethod(t *testing.T) {
	svc := newTestTokenService(t)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, completeClaims("user_2abc"))
	raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.Verify(raw)
	require.Error(t, err)
}

func TestTokenServiceIssueForUser(t *testing.T) {
	svc := newTestTokenService(t)

	t.Run("prefers external id as subject", func(t *testing.T) {
		user := &identity.User{
			ID:              uuid.New(),
			ExternalID:      "user_2abc",
			Provider:        identity.ProviderGoogle,
			ProviderSubject: "google-oauth2|100",
			Email:           "ada@example.com",
			Role:            identity.RoleArtist,
		}

		token, err := svc.IssueForUser(user)
		require.NoError(t, err)

		claims, err := svc.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, "user_2abc", claims.Subject)
	})

	t.Run("falls back to internal id", func(t *testing.T) {
		user := &identity.User{
			ID:              uuid.New(),
			Provider:        identity.ProviderGoogle,
			ProviderSubject: "google-oauth2|100",
			Email:           "ada@example.com",
		}

		token, err := svc.IssueForUser(user)
		require.NoError(t, err)

		claims, err := svc.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, user.ID.String(), claims.Subject)
	})
}

func TestTokenServiceTokenCarriesNoRole(t *testing.T) {
	svc := newTestTokenService(t)

	user := &identity.User{
		ID:              uuid.New(),
		ExternalID:      "user_2abc",
		Provider:        identity.ProviderGoogle,
		ProviderSubject: "google-oauth2|100",
		Email:           "ada@example.com",
		Role:            identity.RoleVenue,
	}

	token, err := svc.IssueForUser(user)
	require.NoError(t, err)

	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	require.NoError(t, err)

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	require.True(t, ok)
	_, hasRole := mapClaims["role"]
	assert.False(t, hasRole)
	_, hasUserRole := mapClaims["user_role"]
	assert.False(t, hasUserRole)
}

func TestTokenServiceRefresh(t *testing.T) {
	svc := newTestTokenService(t)

	t.Run("reissues with fresh expiry", func(t *testing.T) {
		claims := completeClaims("user_2abc")
		claims.IssuedAt = jwt.NewNumericDate(time.Now().Add(-30 * time.Minute))
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(30 * time.Minute))
		token, err := svc.Issue(claims)
		require.NoError(t, err)

		refreshed, err := svc.Refresh(token)
		require.NoError(t, err)

		next, err := svc.Verify(refreshed)
		require.NoError(t, err)
		assert.Equal(t, "user_2abc", next.Subject)
		assert.Equal(t, "ada@example.com", next.Email)
		assert.True(t, next.Expires().After(claims.ExpiresAt.Time))
	})

	t.Run("expired token cannot refresh", func(t *testing.T) {
		claims := completeClaims("user_2abc")
		claims.IssuedAt = jwt.NewNumericDate(time.Now().Add(-2 * time.Hour))
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
		token, err := svc.Issue(claims)
		require.NoError(t, err)

		_, err = svc.Refresh(token)
		require.Error(t, err)
		assert.True(t, identity.HasTextCode(err, identity.ErrTokenExpired.TextCode))
	})
}

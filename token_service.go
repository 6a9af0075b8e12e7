package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// TokenService signs and verifies session tokens
type TokenService interface {
	Issue(claims *SessionClaims) (string, error)
	IssueForUser(user *User) (string, error)
	Verify(token string) (*SessionClaims, error)
	Refresh(token string) (string, error)
}

// TokenServiceImpl implements the TokenService interface
type TokenServiceImpl struct {
	signingKey      []byte
	tokenExpiration int
	issuer          string
	audience        jwt.ClaimStrings
	logger          Logger
}

// NewTokenService creates a new TokenService instance. tokenExpiration is in
// hours; zero falls back to 24.
func NewTokenService(signingKey []byte, tokenExpiration int, issuer string, audience jwt.ClaimStrings, logger Logger) *TokenServiceImpl {
	if logger == nil {
		logger = defLogger{}
	}
	if tokenExpiration <= 0 {
		tokenExpiration = 24
	}
	return &TokenServiceImpl{
		signingKey:      signingKey,
		tokenExpiration: tokenExpiration,
		issuer:          issuer,
		audience:        audience,
		logger:          logger,
	}
}

// NewTokenServiceFromConfig builds a TokenService from a Config.
func NewTokenServiceFromConfig(cfg Config, logger Logger) *TokenServiceImpl {
	return NewTokenService(
		[]byte(cfg.GetSigningKey()),
		cfg.GetTokenExpiration(),
		cfg.GetIssuer(),
		cfg.GetAudience(),
		logger,
	)
}

// Issue signs the provided claims. Issued-at and expiry are stamped here when
// the caller left them unset.
func (ts *TokenServiceImpl) Issue(claims *SessionClaims) (string, error) {
	if len(ts.signingKey) == 0 {
		return "", ErrMissingSigningSecret.Clone()
	}
	if claims == nil {
		return "", errors.New("claims must not be nil", errors.CategoryValidation).
			WithTextCode(ErrTokenEncoding.TextCode)
	}

	now := time.Now()
	if claims.RegisteredClaims.IssuedAt == nil {
		claims.RegisteredClaims.IssuedAt = jwt.NewNumericDate(now)
	}
	if claims.RegisteredClaims.ExpiresAt == nil {
		claims.RegisteredClaims.ExpiresAt = jwt.NewNumericDate(now.Add(time.Duration(ts.tokenExpiration) * time.Hour))
	}
	if claims.RegisteredClaims.Issuer == "" {
		claims.RegisteredClaims.Issuer = ts.issuer
	}
	if claims.RegisteredClaims.Audience == nil && len(ts.audience) > 0 {
		aud := make(jwt.ClaimStrings, len(ts.audience))
		copy(aud, ts.audience)
		claims.RegisteredClaims.Audience = aud
	}

	if field := claims.missingField(); field != "" {
		return "", errors.New("session claims are incomplete", errors.CategoryValidation).
			WithTextCode(ErrTokenEncoding.TextCode).
			WithMetadata(map[string]any{"missing": field})
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, ErrTokenEncoding.Category, ErrTokenEncoding.Message).
			WithTextCode(ErrTokenEncoding.TextCode)
	}

	return signed, nil
}

// IssueForUser issues a token whose subject is the user's external id when
// linked, otherwise the internal id.
func (ts *TokenServiceImpl) IssueForUser(user *User) (string, error) {
	if user == nil {
		return "", errors.New("user must not be nil", errors.CategoryValidation).
			WithTextCode(ErrTokenEncoding.TextCode)
	}

	subject := user.ExternalID
	if subject == "" {
		subject = user.ID.String()
	}

	return ts.Issue(&SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: subject},
		Email:            user.Email,
		Provider:         string(user.Provider),
		ProviderSubject:  user.ProviderSubject,
	})
}

// Verify parses and validates a token string, returning structured claims.
// It has no side effects.
func (ts *TokenServiceImpl) Verify(tokenString string) (*SessionClaims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 2)
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("TokenService verify encountered unexpected signing method: %v", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrSignatureInvalid
		default:
			return nil, errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
				WithTextCode(ErrTokenMalformed.TextCode)
		}
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		ts.logger.Error("TokenService verify could not decode or validate claims")
		return nil, ErrTokenMalformed
	}

	return claims, nil
}

// Refresh verifies the presented token and re-issues it with a fresh expiry.
// An invalid or expired input fails with the verification error unchanged.
func (ts *TokenServiceImpl) Refresh(tokenString string) (string, error) {
	claims, err := ts.Verify(tokenString)
	if err != nil {
		return "", err
	}

	return ts.Issue(&SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: claims.RegisteredClaims.Subject},
		Email:            claims.Email,
		Provider:         claims.Provider,
		ProviderSubject:  claims.ProviderSubject,
	})
}

var _ TokenService = (*TokenServiceImpl)(nil)

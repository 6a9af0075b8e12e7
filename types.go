package identity

import "fmt"

// Logger is the minimal logging surface the package needs. Implementations
// may treat the trailing args as key/value pairs; see the log subpackage for
// a zerolog-backed adapter.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds token issuance options
type Config interface {
	GetSigningKey() string
	GetTokenExpiration() int
	GetIssuer() string
	GetAudience() []string
}

// SimpleConfig is a literal-friendly Config implementation.
type SimpleConfig struct {
	SigningKey      string
	TokenExpiration int
	Issuer          string
	Audience        []string
}

func (c SimpleConfig) GetSigningKey() string { return c.SigningKey }

// GetTokenExpiration returns the token lifetime in hours.
func (c SimpleConfig) GetTokenExpiration() int { return c.TokenExpiration }

func (c SimpleConfig) GetIssuer() string { return c.Issuer }

func (c SimpleConfig) GetAudience() []string { return c.Audience }

// Identity holds the attributes of a resolved principal
type Identity interface {
	ID() string
	ExternalID() string
	Email() string
	Provider() string
	Role() string
}

// DefaultLogger returns a stdout printf logger used when no Logger is wired.
func DefaultLogger() Logger {
	return defLogger{}
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] IDENTITY "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] IDENTITY "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] IDENTITY "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] IDENTITY "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

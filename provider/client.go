// Package provider is the read client for the external identity provider's
// user API. The provider owns sign-in; this client only reconstructs what a
// lost webhook should have delivered.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Config configures the provider API client.
type Config struct {
	// BaseURL is the provider API root, e.g. "https://api.provider.test/v1".
	BaseURL string
	// APIKey is the bearer secret for server-to-server reads.
	APIKey string
	// Timeout bounds each request; zero uses 10s.
	Timeout time.Duration
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Client wraps the provider's user-read API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// EmailAddress is one address on the provider-side user record.
type EmailAddress struct {
	ID      string `json:"id"`
	Address string `json:"email_address"`
}

// Account is a linked OAuth account on the provider-side user record. The
// Provider field carries the provider's own account-type string, e.g.
// "oauth_google".
type Account struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	Subject  string `json:"provider_user_id"`
}

// User is the provider-side user record as returned by the read API.
type User struct {
	ID               string         `json:"id"`
	EmailAddresses   []EmailAddress `json:"email_addresses"`
	PrimaryEmailID   string         `json:"primary_email_address_id"`
	ExternalAccounts []Account      `json:"external_accounts"`
}

// PrimaryEmail returns the address matching the declared primary-email id.
func (u *User) PrimaryEmail() (string, bool) {
	if u == nil {
		return "", false
	}
	for _, e := range u.EmailAddresses {
		if e.ID == u.PrimaryEmailID && e.Address != "" {
			return e.Address, true
		}
	}
	return "", false
}

// New creates a new provider client.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("provider: base URL is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		http:    httpClient,
	}, nil
}

// GetUser fetches a provider user by its provider-side id.
func (c *Client) GetUser(ctx context.Context, externalID string) (*User, error) {
	if c == nil || c.http == nil {
		return nil, fmt.Errorf("provider: client not initialized")
	}

	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, fmt.Errorf("provider: external id is required")
	}

	url := fmt.Sprintf("%s/users/%s", c.baseURL, externalID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("provider: failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider: user read failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		// Bodies are small; keep a snippet for the operator log.
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("provider: user read returned %d: %s", res.StatusCode, strings.TrimSpace(string(snippet)))
	}

	user := &User{}
	if err := json.NewDecoder(res.Body).Decode(user); err != nil {
		return nil, fmt.Errorf("provider: failed to decode user: %w", err)
	}

	return user, nil
}

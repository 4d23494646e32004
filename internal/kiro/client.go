// Package kiro provides a client for fetching account and balance data
// from the kiro.dev service API.
package kiro

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.kiro.dev"
	requestTimeout = 10 * time.Second
	maxBodySize    = 1 << 20 // 1 MB
	tokenPrefix    = "kiro_"
)

var (
	// ErrUnauthorized indicates the access token is expired or invalid.
	ErrUnauthorized = errors.New("kiro: unauthorized (access token expired or invalid)")
	// ErrRateLimited indicates the API rate limit was hit.
	ErrRateLimited = errors.New("kiro: rate limited")
)

// Client fetches account data from the kiro.dev API.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the service endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(u, "/")
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// NewClient creates a client for the given access token.
// Returns nil if the token is empty or has the wrong prefix.
func NewClient(token string, opts ...Option) *Client {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	if !strings.HasPrefix(token, tokenPrefix) {
		return nil
	}
	c := &Client{
		token:   token,
		baseURL: defaultBaseURL,
		http:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchAll fetches the account profile and its balance.
// Partial data is returned even if some requests fail.
func (c *Client) FetchAll(ctx context.Context) *AccountData {
	result := &AccountData{FetchedAt: time.Now()}

	acct, err := c.FetchAccount(ctx)
	if err != nil {
		result.Error = err
		return result
	}
	result.Account = acct

	balance, balErr := c.FetchBalance(ctx)
	if balErr == nil {
		result.Balance = balance
	} else {
		result.Error = balErr
	}

	return result
}

// FetchAccount returns the profile for the token's account.
func (c *Client) FetchAccount(ctx context.Context) (Account, error) {
	body, err := c.get(ctx, "/v1/account")
	if err != nil {
		return Account{}, err
	}

	var acct Account
	if err := json.Unmarshal(body, &acct); err != nil {
		return Account{}, fmt.Errorf("kiro: parsing account: %w", err)
	}
	return acct, nil
}

// FetchBalance returns the normalized credit balance for the token's account.
func (c *Client) FetchBalance(ctx context.Context) (*Balance, error) {
	body, err := c.get(ctx, "/v1/account/balance")
	if err != nil {
		return nil, err
	}

	var raw BalanceResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("kiro: parsing balance: %w", err)
	}

	credits, ok := parseCredits(raw.Balance)
	if !ok {
		return nil, fmt.Errorf("kiro: balance field unparseable")
	}

	b := &Balance{Credits: credits}
	if quota, ok := parseCredits(raw.Quota); ok {
		b.Quota = quota
		b.HasQuota = true
	}
	if raw.ExpiresAt != nil {
		if t, err := time.Parse(time.RFC3339, *raw.ExpiresAt); err == nil {
			b.ExpiresAt = t
		}
	}
	return b, nil
}

// get performs an authenticated GET request and returns the response body.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("kiro: creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "github.com/chun1617/Kir-Manager-sub002/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kiro: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, ErrUnauthorized
	case http.StatusTooManyRequests:
		return nil, ErrRateLimited
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("kiro: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("kiro: reading response: %w", err)
	}
	return body, nil
}

// parseCredits parses the polymorphic credit fields. Handles int (120),
// float (120.5), and string ("120.5", "1,200", or "120 credits").
func parseCredits(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}

	// Try number first (covers both int and float JSON)
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}

	// Try string
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		s = strings.TrimSuffix(s, "credits")
		s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return v, true
		}
	}

	return 0, false
}

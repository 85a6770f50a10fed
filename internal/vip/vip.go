// Package vip grants pending in-game login commands to a player passport.
package vip

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Gateway is the command-grant contract used after a campaign batch.
type Gateway interface {
	GrantCommands(ctx context.Context, passport int64, commands []string, expiresAt *time.Time) error
}

var (
	ErrRejected      = errors.New("vip: gateway rejected request")
	ErrInvalidGrant  = errors.New("vip: invalid grant")
	ErrNotConfigured = errors.New("vip: gateway not configured")
)

// ExpiryLayout is the wall-clock format the command API expects; seconds are always zero.
const ExpiryLayout = "2006-01-02 15:04:00"

// BuildCommands turns a multi-line template into one command per non-blank
// line, each prefixed with the passport number.
func BuildCommands(passport int64, template string) []string {
	var out []string
	for _, line := range strings.Split(template, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, fmt.Sprintf("%d %s", passport, line))
	}
	return out
}

// FormatExpiry renders t as wall-clock time in loc.
func FormatExpiry(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(ExpiryLayout)
}

// Client calls the set-next-login-commands endpoint.
type Client struct {
	baseURL    string
	token      string
	loc        *time.Location
	httpClient *http.Client
}

func NewClient(baseURL, token string, loc *time.Location) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		loc:        loc,
		httpClient: &http.Client{Timeout: time.Minute},
	}
}

type grantRequest struct {
	Passport  int64    `json:"passport"`
	Commands  []string `json:"commands,omitempty"`
	ExpiresAt string   `json:"expires_at,omitempty"`
}

func (c *Client) GrantCommands(ctx context.Context, passport int64, commands []string, expiresAt *time.Time) error {
	if c == nil || c.baseURL == "" {
		return ErrNotConfigured
	}
	if passport <= 0 {
		return fmt.Errorf("%w: passport must be positive", ErrInvalidGrant)
	}
	if len(commands) == 0 && expiresAt == nil {
		return fmt.Errorf("%w: nothing to grant", ErrInvalidGrant)
	}

	payload := grantRequest{Passport: passport, Commands: commands}
	if expiresAt != nil {
		payload.ExpiresAt = FormatExpiry(*expiresAt, c.loc)
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/set-next-login-commands", bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("vip request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}
	return nil
}

// Package bridge talks to the central server that owns user entries and the
// relay's runtime settings.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mcoot/relaygate/internal/config"
	"github.com/mcoot/relaygate/internal/model"
)

// Errors
var (
	ErrUnexpectedStatus = errors.New("unexpected status from central server")
	ErrUnauthorized     = errors.New("central server rejected the relay password")
)

const passwordHeader = "Authorization"

// Config holds bridge connection settings
type Config struct {
	BaseURL  string
	Password string
	Timeout  time.Duration
	// Refresh is the interval between runtime settings fetches
	Refresh time.Duration
}

// DefaultConfig returns default bridge configuration
func DefaultConfig() Config {
	return Config{
		Timeout: 10 * time.Second,
		Refresh: time.Minute,
	}
}

// Client fetches user entries and runtime settings from the central server
type Client struct {
	baseURL    string
	password   string
	refresh    time.Duration
	httpClient *http.Client
	central    *config.Central
	logger     *slog.Logger
}

// New creates a new bridge Client. Fetched settings are written into central.
func New(cfg Config, central *config.Central, logger *slog.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.Refresh == 0 {
		cfg.Refresh = DefaultConfig().Refresh
	}
	return &Client{
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		password: cfg.Password,
		refresh:  cfg.Refresh,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		central: central,
		logger:  logger.With(slog.String("component", "bridge")),
	}
}

// GetUser fetches the entry for accountID. Accounts the central server has no
// record of get a blank entry.
func (c *Client) GetUser(ctx context.Context, accountID model.AccountID) (*model.UserEntry, error) {
	var entry model.UserEntry
	status, err := c.get(ctx, fmt.Sprintf("/gs/user/%d", accountID), &entry)
	if status == http.StatusNotFound {
		return model.NewUserEntry(accountID), nil
	}
	if err != nil {
		return nil, err
	}

	entry.AccountID = accountID
	if entry.UserRoles == nil {
		entry.UserRoles = []string{}
	}
	return &entry, nil
}

// FetchCentral fetches the current runtime settings without applying them
func (c *Client) FetchCentral(ctx context.Context) (config.CentralSnapshot, error) {
	snap := config.DefaultCentral()
	if _, err := c.get(ctx, "/gs/config", &snap); err != nil {
		return config.CentralSnapshot{}, err
	}
	return snap, nil
}

// Refresh fetches runtime settings and applies them
func (c *Client) Refresh(ctx context.Context) error {
	snap, err := c.FetchCentral(ctx)
	if err != nil {
		return err
	}

	prev := c.central.Snapshot()
	c.central.Update(snap)
	if prev != snap {
		c.logger.Info("central settings changed",
			slog.Bool("maintenance", snap.Maintenance),
			slog.Int("tps", int(snap.TPS)),
			slog.Bool("whitelist", snap.Whitelist),
		)
	}
	return nil
}

// Run refreshes runtime settings until ctx is cancelled.
// Failed refreshes keep the previous settings.
func (c *Client) Run(ctx context.Context) {
	if err := c.Refresh(ctx); err != nil {
		c.logger.Warn("initial central refresh failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(c.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
				c.logger.Warn("central refresh failed", slog.String("error", err.Error()))
			}
		}
	}
}

// get performs a GET and decodes a JSON body into result. The status is
// returned even on error so callers can special-case it.
func (c *Client) get(ctx context.Context, path string, result any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.password != "" {
		req.Header.Set(passwordHeader, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return resp.StatusCode, ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.StatusCode, nil
}

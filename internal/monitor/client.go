package monitor

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

	"github.com/chun1617/Kir-Manager-sub002/internal/autoswitch"
	"github.com/chun1617/Kir-Manager-sub002/internal/config"
	"github.com/chun1617/Kir-Manager-sub002/internal/model"
)

const (
	clientTimeout    = 5 * time.Second
	maxResponseBytes = 1 << 20
)

// Client drives a running monitor daemon over its HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the daemon listening on addr.
func NewClient(addr string) *Client {
	if addr == "" {
		addr = "127.0.0.1:8791"
	}
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: strings.TrimSuffix(base, "/"),
		http:    &http.Client{Timeout: clientTimeout},
	}
}

// NewRemote probes the daemon and falls back to direct file access when
// it is not reachable.
func NewRemote(ctx context.Context, addr, settingsPath string) autoswitch.Remote {
	c := NewClient(addr)
	if c.Healthy(ctx) {
		return c
	}
	return FileFallback{SettingsPath: settingsPath}
}

// Healthy reports whether the daemon answers its health check.
func (c *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	return resp.StatusCode == http.StatusOK
}

// Start switches the daemon into the running state.
func (c *Client) Start(ctx context.Context) error {
	return c.postResult(ctx, "/v1/monitor/start")
}

// Stop switches the daemon into the stopped state.
func (c *Client) Stop(ctx context.Context) error {
	return c.postResult(ctx, "/v1/monitor/stop")
}

// Status returns the monitor lifecycle fields of the daemon status.
func (c *Client) Status(ctx context.Context) (model.AutoSwitchStatus, error) {
	var st model.AutoSwitchStatus
	if err := c.getJSON(ctx, "/v1/status", &st); err != nil {
		return model.AutoSwitchStatus{}, err
	}
	return st, nil
}

// DaemonStatus returns the full daemon status payload.
func (c *Client) DaemonStatus(ctx context.Context) (Status, error) {
	var st Status
	if err := c.getJSON(ctx, "/v1/status", &st); err != nil {
		return Status{}, err
	}
	return st, nil
}

// Events returns the daemon's buffered event history.
func (c *Client) Events(ctx context.Context) ([]Event, error) {
	var events []Event
	if err := c.getJSON(ctx, "/v1/events", &events); err != nil {
		return nil, err
	}
	return events, nil
}

// LoadSettings fetches the settings document held by the daemon.
func (c *Client) LoadSettings(ctx context.Context) (model.AutoSwitchSettings, error) {
	var settings model.AutoSwitchSettings
	if err := c.getJSON(ctx, "/v1/settings", &settings); err != nil {
		return model.AutoSwitchSettings{}, err
	}
	return settings, nil
}

// SaveSettings replaces the settings document through the daemon, which
// persists it to disk.
func (c *Client) SaveSettings(ctx context.Context, settings model.AutoSwitchSettings) error {
	body, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/v1/settings", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return decodeResult(resp)
}

func (c *Client) postResult(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return decodeResult(resp)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("monitor: unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out)
}

func decodeResult(resp *http.Response) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("monitor: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var res model.Result
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&res); err != nil {
		return fmt.Errorf("decoding result: %w", err)
	}
	if !res.Success {
		return errors.New(res.Message)
	}
	return nil
}

// FileFallback is a Remote for when no daemon is reachable: settings IO
// goes straight to disk and start reports the daemon as unavailable.
type FileFallback struct {
	SettingsPath string
}

func (f FileFallback) Start(context.Context) error {
	return errors.New("monitor daemon not running (start it with 'kirman monitor start')")
}

// Stop is a no-op without a daemon; there is nothing to stop.
func (f FileFallback) Stop(context.Context) error { return nil }

func (f FileFallback) Status(context.Context) (model.AutoSwitchStatus, error) {
	return model.AutoSwitchStatus{State: model.StateStopped}, nil
}

func (f FileFallback) SaveSettings(_ context.Context, settings model.AutoSwitchSettings) error {
	return config.SaveSettingsFile(f.path(), settings)
}

func (f FileFallback) LoadSettings(context.Context) (model.AutoSwitchSettings, error) {
	return config.LoadSettingsFile(f.path())
}

func (f FileFallback) path() string {
	if f.SettingsPath != "" {
		return f.SettingsPath
	}
	return config.SettingsPath()
}

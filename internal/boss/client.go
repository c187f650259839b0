// Package boss talks to the BOSS process launcher that runs the notify and
// build participants.
package boss

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/henriksa/boss-launcher-webhook/internal/config"
	"github.com/henriksa/boss-launcher-webhook/internal/core"
)

const launchPath = "/api/v1/launch"

// ErrLaunchRejected is returned when the launcher answers with a non-2xx status.
var ErrLaunchRejected = errors.New("launch rejected")

// LaunchRequest is the body posted to the launcher.
type LaunchRequest struct {
	Process string      `json:"process"`
	Fields  core.Fields `json:"fields"`
}

// Client posts launch requests to BOSS.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient builds a launcher client. When a token is configured every
// request carries it as a bearer token.
func NewClient(ctx context.Context, cfg *config.BossConfig, logger *slog.Logger) *Client {
	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	if cfg.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
		httpClient = oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, httpClient), ts)
		httpClient.Timeout = cfg.RequestTimeout
	}
	return &Client{baseURL: cfg.URL, http: httpClient, logger: logger}
}

// Send starts process with the given fields.
func (c *Client) Send(ctx context.Context, process string, fields core.Fields) error {
	body, err := json.Marshal(LaunchRequest{Process: process, Fields: fields})
	if err != nil {
		return fmt.Errorf("failed to encode launch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+launchPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create launch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to launch %s: %w", process, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: %s returned %d: %s", ErrLaunchRejected, process, resp.StatusCode, bytes.TrimSpace(msg))
	}

	c.logger.Debug("process launched", "process", process, "duration", time.Since(start))
	return nil
}

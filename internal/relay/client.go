// Package relay forwards received hooks to other webhook consumers.
package relay

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/henriksa/boss-launcher-webhook/internal/core"
)

// ErrRelayRejected is returned when a target answers with a non-2xx status.
var ErrRelayRejected = errors.New("relay rejected")

// forwardedPrefixes are the canonical header prefixes copied to targets so
// they can verify and dispatch the hook themselves.
var forwardedPrefixes = []string{"Content-Type", "User-Agent", "X-Github-", "X-Hub-Signature", "X-Gitlab-"}

// Client posts hooks as received. Targets with TLS verification disabled
// go through a separate transport.
type Client struct {
	verified   *http.Client
	unverified *http.Client
	logger     *slog.Logger
}

// NewClient builds a relay client with the given per-request timeout.
func NewClient(timeout time.Duration, logger *slog.Logger) *Client {
	insecure := http.DefaultTransport.(*http.Transport).Clone()
	insecure.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // per target verify_ssl=false
	return &Client{
		verified:   &http.Client{Timeout: timeout},
		unverified: &http.Client{Timeout: timeout, Transport: insecure},
		logger:     logger,
	}
}

// Forward posts hook to target.
func (c *Client) Forward(ctx context.Context, target *core.RelayTarget, hook *core.Hook) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, bytes.NewReader(hook.Body))
	if err != nil {
		return fmt.Errorf("failed to create relay request for %s: %w", target.Name, err)
	}
	for key, values := range hook.Header {
		if forwarded(key) {
			req.Header[key] = values
		}
	}

	client := c.verified
	if !target.VerifySSL {
		client = c.unverified
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to relay to %s: %w", target.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: %s returned %d: %s", ErrRelayRejected, target.Name, resp.StatusCode, bytes.TrimSpace(msg))
	}

	c.logger.Debug("hook relayed", "target", target.Name, "duration", time.Since(start))
	return nil
}

func forwarded(key string) bool {
	key = http.CanonicalHeaderKey(key)
	for _, prefix := range forwardedPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

package server

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/henriksa/boss-launcher-webhook/internal/config"
	"github.com/henriksa/boss-launcher-webhook/internal/core"
	"github.com/henriksa/boss-launcher-webhook/internal/server/handler"
)

type emptyStore struct{}

func (emptyStore) FindMappings(context.Context, string, string) ([]*core.WebhookMapping, error) {
	return nil, nil
}
func (emptyStore) GetMapping(context.Context, int64) (*core.WebhookMapping, error) {
	return nil, core.ErrNotFound
}
func (emptyStore) ListMappings(context.Context) ([]*core.WebhookMapping, error) { return nil, nil }

const gitlabBody = `{"object_kind": "push", "ref": "refs/heads/master", "after": "abc",
	"project": {"git_http_url": "https://gitlab.example.com/a/b.git"}}`

func newTestRouter(t *testing.T, sources []string, perMinute int) http.Handler {
	t.Helper()
	return newGuardedRouter(t, &config.WebhookConfig{AllowedSources: sources, RateLimitPerMin: perMinute})
}

func newGuardedRouter(t *testing.T, cfg *config.WebhookConfig) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	guard, err := newSourceGuard(cfg, logger)
	require.NoError(t, err)
	webhooks := handler.NewWebhookHandler(&config.WebhookConfig{}, emptyStore{}, nil, nil, nil, logger)
	return NewRouter(webhooks, guard, logger)
}

func post(router http.Handler, remote string) *httptest.ResponseRecorder {
	return postWithHeaders(router, remote, nil)
}

func postWithHeaders(router http.Handler, remote string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/gitlab", bytes.NewBufferString(gitlabBody))
	req.RemoteAddr = remote
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Health(t *testing.T) {
	router := newTestRouter(t, nil, 0)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestRouter_AllowedSources(t *testing.T) {
	router := newTestRouter(t, []string{"10.0.0.0/8", "192.168.1.5"}, 0)

	tests := []struct {
		remote string
		want   int
	}{
		{remote: "10.1.2.3:5555", want: http.StatusOK},
		{remote: "192.168.1.5:80", want: http.StatusOK},
		{remote: "192.168.1.6:80", want: http.StatusForbidden},
		{remote: "[::1]:8080", want: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.remote, func(t *testing.T) {
			assert.Equal(t, tt.want, post(router, tt.remote).Code)
		})
	}
}

func TestRouter_RateLimit(t *testing.T) {
	// 10 per minute gives a burst of one
	router := newTestRouter(t, nil, 10)

	assert.Equal(t, http.StatusOK, post(router, "10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusTooManyRequests, post(router, "10.0.0.1:1001").Code)
	assert.Equal(t, http.StatusOK, post(router, "10.0.0.2:1000").Code, "limits are per source")
}

func TestRouter_ForwardedHeadersFromUntrustedPeer(t *testing.T) {
	router := newTestRouter(t, []string{"10.0.0.0/8"}, 0)

	rec := postWithHeaders(router, "203.0.113.9:4000", map[string]string{"X-Forwarded-For": "10.9.9.9"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = postWithHeaders(router, "203.0.113.9:4000", map[string]string{"X-Real-IP": "10.9.9.9"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRouter_RateLimitIgnoresRotatedHeaders(t *testing.T) {
	router := newTestRouter(t, nil, 10)

	var codes []int
	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4", "10.0.0.5"} {
		codes = append(codes, postWithHeaders(router, "203.0.113.9:4000", map[string]string{"X-Real-IP": ip}).Code)
	}
	assert.Equal(t, []int{200, 429, 429, 429, 429}, codes)
}

func TestRouter_TrustedProxy(t *testing.T) {
	router := newGuardedRouter(t, &config.WebhookConfig{
		AllowedSources: []string{"10.0.0.0/8"},
		TrustedProxies: []string{"172.16.0.1"},
	})

	rec := postWithHeaders(router, "172.16.0.1:4000", map[string]string{"X-Forwarded-For": "10.9.9.9"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = postWithHeaders(router, "172.16.0.1:4000", map[string]string{"X-Forwarded-For": "203.0.113.9"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSourceGuard_ConcurrentFirstRequestsShareLimiter(t *testing.T) {
	guard, err := newSourceGuard(&config.WebhookConfig{RateLimitPerMin: 10}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if guard.allow("198.51.100.1") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, allowed, "burst of one across concurrent first requests")
}

func TestNewSourceGuard_InvalidSource(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := newSourceGuard(&config.WebhookConfig{AllowedSources: []string{"not-an-ip"}}, logger)
	assert.Error(t, err)

	_, err = newSourceGuard(&config.WebhookConfig{TrustedProxies: []string{"proxy.local"}}, logger)
	assert.Error(t, err)
}

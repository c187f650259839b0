package boss

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/henriksa/boss-launcher-webhook/internal/config"
	"github.com/henriksa/boss-launcher-webhook/internal/core"
)

func TestClient_Send(t *testing.T) {
	var got LaunchRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, launchPath, r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	cfg := &config.BossConfig{URL: srv.URL, Token: "s3cret", RequestTimeout: time.Second}
	c := NewClient(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := c.Send(context.Background(), "build", core.Fields{core.FieldBranch: "master"})
	require.NoError(t, err)

	assert.Equal(t, "Bearer s3cret", auth)
	assert.Equal(t, "build", got.Process)
	assert.Equal(t, "master", got.Fields[core.FieldBranch])
}

func TestClient_SendWithoutToken(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	c := NewClient(context.Background(), &config.BossConfig{URL: srv.URL}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, c.Send(context.Background(), "notify", core.Fields{}))
	assert.Empty(t, auth)
}

func TestClient_SendRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no such process", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(context.Background(), &config.BossConfig{URL: srv.URL}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	err := c.Send(context.Background(), "nope", core.Fields{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLaunchRejected)
	assert.Contains(t, err.Error(), "no such process")
}

package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/henriksa/boss-launcher-webhook/internal/core"
)

type recordingForwarder struct {
	mu      sync.Mutex
	targets []string
	err     error
}

func (f *recordingForwarder) Forward(_ context.Context, target *core.RelayTarget, _ *core.Hook) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets = append(f.targets, target.Name)
	return f.err
}

func TestRelayer_ForwardsActiveTargets(t *testing.T) {
	fwd := &recordingForwarder{}
	r := NewRelayer(fwd, 2, 10, discard())
	hook := &core.Hook{Body: []byte(`{}`)}

	require.NoError(t, r.Relay(context.Background(), &core.RelayTarget{Name: "mirror", Active: true}, hook))
	require.NoError(t, r.Relay(context.Background(), &core.RelayTarget{Name: "old", Active: false}, hook))
	r.Stop()

	assert.Equal(t, []string{"mirror"}, fwd.targets)
}

func TestRelayer_ForwardErrorIsLogged(t *testing.T) {
	fwd := &recordingForwarder{err: errors.New("connection refused")}
	r := NewRelayer(fwd, 1, 10, discard())

	require.NoError(t, r.Relay(context.Background(), &core.RelayTarget{Name: "mirror", Active: true}, &core.Hook{}))
	r.Stop()
	assert.Len(t, fwd.targets, 1)
}

func TestRelayer_Stopped(t *testing.T) {
	r := NewRelayer(&recordingForwarder{}, 1, 1, discard())
	r.Stop()
	r.Stop()

	err := r.Relay(context.Background(), &core.RelayTarget{Name: "mirror", Active: true}, &core.Hook{})
	assert.ErrorIs(t, err, ErrStopped)
}

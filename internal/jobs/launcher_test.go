package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/henriksa/boss-launcher-webhook/internal/core"
	"github.com/henriksa/boss-launcher-webhook/mocks"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLauncher_RoutesProcesses(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockSender(ctrl)

	notifyFields := core.Fields{core.FieldMsg: "hello"}
	buildFields := core.Fields{core.FieldBranch: "master"}
	sender.EXPECT().Send(gomock.Any(), "notify", notifyFields).Return(nil)
	sender.EXPECT().Send(gomock.Any(), "build", buildFields).Return(errors.New("boss down"))

	l := NewLauncher(sender, "notify", "build", 2, 10, discard())
	require.NoError(t, l.Notify(context.Background(), notifyFields))
	require.NoError(t, l.Trigger(context.Background(), buildFields), "delivery failure is not reported to the caller")
	l.Stop()
}

type blockingSender struct {
	release chan struct{}
	mu      sync.Mutex
	sent    int
}

func (b *blockingSender) Send(context.Context, string, core.Fields) error {
	<-b.release
	b.mu.Lock()
	b.sent++
	b.mu.Unlock()
	return nil
}

func TestLauncher_QueueFull(t *testing.T) {
	sender := &blockingSender{release: make(chan struct{})}
	l := NewLauncher(sender, "notify", "build", 1, 1, discard())

	// one in flight, one queued, then the queue is full
	var err error
	for range 10 {
		if err = l.Trigger(context.Background(), core.Fields{}); err != nil {
			break
		}
	}
	assert.ErrorIs(t, err, ErrQueueFull)

	close(sender.release)
	l.Stop()
	assert.GreaterOrEqual(t, sender.sent, 1)
}

func TestLauncher_StopDrainsAndRejects(t *testing.T) {
	sender := &blockingSender{release: make(chan struct{})}
	close(sender.release)
	l := NewLauncher(sender, "notify", "build", 1, 10, discard())

	for range 5 {
		require.NoError(t, l.Notify(context.Background(), core.Fields{}))
	}
	l.Stop()
	assert.Equal(t, 5, sender.sent)

	assert.ErrorIs(t, l.Trigger(context.Background(), core.Fields{}), ErrStopped)
	l.Stop()
}

func TestLauncher_CanceledContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	l := NewLauncher(mocks.NewMockSender(ctrl), "notify", "build", 1, 1, discard())
	defer l.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Notify(ctx, core.Fields{}), context.Canceled)
}

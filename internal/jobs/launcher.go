// Package jobs runs launcher and relay calls in the background so webhook
// requests do not wait on downstream services.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/henriksa/boss-launcher-webhook/internal/core"
)

var (
	ErrQueueFull = errors.New("job queue is full")
	ErrStopped   = errors.New("job queue is stopped")
)

// Sender delivers a single launch to BOSS.
//
//go:generate mockgen -destination=../../mocks/mock_sender.go -package=mocks . Sender
type Sender interface {
	Send(ctx context.Context, process string, fields core.Fields) error
}

type launch struct {
	process string
	fields  core.Fields
}

// Launcher implements core.Notifier and core.Builder on top of a pool of
// worker goroutines. Enqueueing succeeds or fails synchronously; delivery
// errors are only logged.
type Launcher struct {
	sender        Sender
	notifyProcess string
	buildProcess  string
	pool          *pool[launch]
	logger        *slog.Logger
}

var (
	_ core.Notifier = (*Launcher)(nil)
	_ core.Builder  = (*Launcher)(nil)
)

// NewLauncher starts maxWorkers workers reading from a queue of queueSize.
// Non-positive values default to 1 worker and a queue of 100.
func NewLauncher(sender Sender, notifyProcess, buildProcess string, maxWorkers, queueSize int, logger *slog.Logger) *Launcher {
	l := &Launcher{
		sender:        sender,
		notifyProcess: notifyProcess,
		buildProcess:  buildProcess,
		logger:        logger,
	}
	l.pool = newPool("launcher", maxWorkers, queueSize, l.deliver, logger)
	return l
}

func (l *Launcher) deliver(workerID int, job launch) {
	if err := l.sender.Send(context.Background(), job.process, job.fields); err != nil {
		l.logger.Error("launch failed",
			"worker_id", workerID,
			"process", job.process,
			"repourl", job.fields[core.FieldRepoURL],
			"error", err,
		)
		return
	}
	l.logger.Info("launched", "worker_id", workerID, "process", job.process, "repourl", job.fields[core.FieldRepoURL])
}

// Notify queues the notify participant.
func (l *Launcher) Notify(ctx context.Context, fields core.Fields) error {
	return l.enqueue(ctx, l.notifyProcess, fields)
}

// Trigger queues the build participant.
func (l *Launcher) Trigger(ctx context.Context, fields core.Fields) error {
	return l.enqueue(ctx, l.buildProcess, fields)
}

func (l *Launcher) enqueue(ctx context.Context, process string, fields core.Fields) error {
	if err := l.pool.submit(ctx, launch{process: process, fields: fields}); err != nil {
		return fmt.Errorf("cannot queue %s: %w", process, err)
	}
	return nil
}

// Stop rejects new launches and waits until queued ones are delivered.
func (l *Launcher) Stop() {
	l.pool.stop()
}

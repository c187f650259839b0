package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/henriksa/boss-launcher-webhook/internal/core"
)

// Forwarder posts a received hook to one relay target.
type Forwarder interface {
	Forward(ctx context.Context, target *core.RelayTarget, hook *core.Hook) error
}

type relayJob struct {
	target *core.RelayTarget
	hook   *core.Hook
}

// Relayer copies accepted hooks to relay targets in the background.
type Relayer struct {
	forwarder Forwarder
	pool      *pool[relayJob]
	logger    *slog.Logger
}

// NewRelayer starts workers forwarding through forwarder.
func NewRelayer(forwarder Forwarder, workers, queueSize int, logger *slog.Logger) *Relayer {
	r := &Relayer{forwarder: forwarder, logger: logger}
	r.pool = newPool("relay", workers, queueSize, r.forward, logger)
	return r
}

func (r *Relayer) forward(workerID int, job relayJob) {
	if err := r.forwarder.Forward(context.Background(), job.target, job.hook); err != nil {
		r.logger.Error("relay failed", "worker_id", workerID, "target", job.target.Name, "url", job.target.URL, "error", err)
		return
	}
	r.logger.Info("relayed", "worker_id", workerID, "target", job.target.Name)
}

// Relay queues hook for target. Inactive targets are ignored.
func (r *Relayer) Relay(ctx context.Context, target *core.RelayTarget, hook *core.Hook) error {
	if !target.Active {
		return nil
	}
	if err := r.pool.submit(ctx, relayJob{target: target, hook: hook}); err != nil {
		return fmt.Errorf("cannot relay to %s: %w", target.Name, err)
	}
	return nil
}

// Stop waits until queued relays are sent.
func (r *Relayer) Stop() {
	r.pool.stop()
}

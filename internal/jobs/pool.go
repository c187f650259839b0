package jobs

import (
	"context"
	"log/slog"
	"sync"
)

// pool runs handle for every submitted job on a fixed number of workers.
type pool[T any] struct {
	name    string
	queue   chan T
	handle  func(workerID int, job T)
	wg      sync.WaitGroup
	mu      sync.RWMutex
	stopped bool
	logger  *slog.Logger
}

// newPool starts workers reading from a queue of size. Non-positive values
// default to 1 worker and a queue of 100.
func newPool[T any](name string, workers, size int, handle func(int, T), logger *slog.Logger) *pool[T] {
	if workers <= 0 {
		workers = 1
	}
	if size <= 0 {
		size = 100
	}
	p := &pool[T]{
		name:   name,
		queue:  make(chan T, size),
		handle: handle,
		logger: logger,
	}
	for i := range workers {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

func (p *pool[T]) worker(id int) {
	defer p.wg.Done()
	p.logger.Debug("starting worker", "pool", p.name, "id", id)
	for job := range p.queue {
		p.handle(id, job)
	}
	p.logger.Debug("shutting down worker", "pool", p.name, "id", id)
}

// submit queues job without blocking.
func (p *pool[T]) submit(ctx context.Context, job T) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case p.queue <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// stop rejects new jobs and waits until queued ones are handled.
func (p *pool[T]) stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	p.logger.Info("stopping workers and waiting for queued jobs", "pool", p.name)
	p.wg.Wait()
	p.logger.Info("all queued jobs have been handled", "pool", p.name)
}

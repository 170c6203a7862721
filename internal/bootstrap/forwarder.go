package bootstrap

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/fx"
)

const (
	publishTimeout = 2 * time.Second
	forwardBuffer  = 256
)

type publishJob func(ctx context.Context) error

// EventForwarder runs publishes on its own goroutine so a slow or
// unreachable broker never stalls the realtime read loop. Jobs run in the
// order they were enqueued; when the buffer is full new jobs are dropped.
type EventForwarder struct {
	jobs    chan publishJob
	done    chan struct{}
	timeout time.Duration
	log     *slog.Logger

	mu     sync.RWMutex
	closed bool
}

func NewEventForwarder(size int, timeout time.Duration, logger *slog.Logger) *EventForwarder {
	if size <= 0 {
		size = forwardBuffer
	}
	if timeout <= 0 {
		timeout = publishTimeout
	}
	f := &EventForwarder{
		jobs:    make(chan publishJob, size),
		done:    make(chan struct{}),
		timeout: timeout,
		log:     logger.With("component", "forwarder"),
	}
	go f.run()
	return f
}

func (f *EventForwarder) run() {
	defer close(f.done)
	for job := range f.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
		err := job(ctx)
		cancel()
		if err != nil {
			f.log.Warn("failed to publish event", "error", err)
		}
	}
}

// Enqueue reports whether the job was accepted.
func (f *EventForwarder) Enqueue(job publishJob) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return false
	}
	select {
	case f.jobs <- job:
		return true
	default:
		f.log.Warn("event forwarder full, dropping publish", "capacity", cap(f.jobs))
		return false
	}
}

// Close stops accepting jobs and waits for the queued ones to finish or for
// ctx to end.
func (f *EventForwarder) Close(ctx context.Context) error {
	f.mu.Lock()
	if !f.closed {
		f.closed = true
		close(f.jobs)
	}
	f.mu.Unlock()

	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func ProvideEventForwarder(lc fx.Lifecycle, logger *slog.Logger) *EventForwarder {
	f := NewEventForwarder(forwardBuffer, publishTimeout, logger)
	lc.Append(fx.Hook{
		OnStop: f.Close,
	})
	return f
}

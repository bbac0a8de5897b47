// Package pool provides the bounded dispatch pool decoupling message arrival
// from message processing. Producers only enqueue; a fixed set of workers
// drains the queue, so a slow handler can never stall a transport goroutine.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/next-trace/scg-misp-bridge/contract/bridge"
	berr "github.com/next-trace/scg-misp-bridge/contract/errors"
)

// Handler processes one dequeued item. Panics and errors are the handler's
// own business to surface; the pool only guarantees the worker survives.
type Handler[T any] func(ctx context.Context, item T)

// Pool is a bounded-queue worker pool. Submit fails fast when the queue is
// at capacity; Shutdown drains rather than cancels.
type Pool[T any] struct {
	handler Handler[T]
	logger  *slog.Logger

	jobs chan T
	stop chan struct{}

	runCtx    context.Context
	runCancel context.CancelFunc

	mu     sync.Mutex
	closed bool

	pending sync.WaitGroup
	workers sync.WaitGroup
}

// New starts a pool with cfg.WorkerCount workers and a queue of
// cfg.QueueCapacity slots. Both must be positive.
func New[T any](cfg bridge.PoolConfig, h Handler[T], logger *slog.Logger) (*Pool[T], error) {
	if h == nil {
		return nil, fmt.Errorf("nil handler: %w", berr.ErrInvalidParameters)
	}

	if cfg.QueueCapacity <= 0 || cfg.WorkerCount <= 0 {
		return nil, fmt.Errorf("pool sizing %+v: %w", cfg, berr.ErrInvalidParameters)
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool[T]{
		handler:   h,
		logger:    logger,
		jobs:      make(chan T, cfg.QueueCapacity),
		stop:      make(chan struct{}),
		runCtx:    ctx,
		runCancel: cancel,
	}

	p.workers.Add(cfg.WorkerCount)
	for range cfg.WorkerCount {
		go p.worker()
	}

	return p, nil
}

// Submit enqueues one item. It never blocks: a full queue returns
// ErrQueueFull immediately and a shut-down pool returns ErrNotRunning.
func (p *Pool[T]) Submit(item T) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("pool shut down: %w", berr.ErrNotRunning)
	}

	p.pending.Add(1)
	p.mu.Unlock()

	select {
	case p.jobs <- item:
		return nil
	default:
		p.pending.Done()
		return fmt.Errorf("pool at capacity: %w", berr.ErrQueueFull)
	}
}

// Shutdown stops admission and waits for queued and in-flight items to
// finish. When ctx expires first, in-flight handlers are canceled, the
// remaining queue is discarded, and the abandoned count is reported via
// ErrDrainTimeout. Repeated calls are no-ops.
func (p *Pool[T]) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}

	p.closed = true
	p.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		p.pending.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		close(p.stop)
		p.workers.Wait()
		p.runCancel()

		return nil
	case <-ctx.Done():
		close(p.stop)
		p.runCancel()

		abandoned := p.discard()
		p.logger.Warn("pool drain timed out", "abandoned", abandoned)

		return fmt.Errorf("abandoned %d items: %w", abandoned, berr.ErrDrainTimeout)
	}
}

// discard empties the queue after a drain timeout, returning the count of
// items that never ran.
func (p *Pool[T]) discard() int {
	n := 0

	for {
		select {
		case <-p.jobs:
			n++
			p.pending.Done()
		default:
			return n
		}
	}
}

func (p *Pool[T]) worker() {
	defer p.workers.Done()

	for {
		select {
		case <-p.stop:
			return
		case item := <-p.jobs:
			p.run(item)
		}
	}
}

func (p *Pool[T]) run(item T) {
	defer p.pending.Done()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pool handler panicked", "panic", r)
		}
	}()

	p.handler(p.runCtx, item)
}

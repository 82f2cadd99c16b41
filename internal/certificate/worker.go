package certificate

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrDispatcherClosed is returned by Enqueue after Shutdown has begun.
var ErrDispatcherClosed = errors.New("certificate dispatcher is shut down")

// Dispatcher runs orchestrator passes in the background with a bounded
// degree of parallelism. Triggers arrive from the API; there is no internal
// timer. The per-domain lock inside the orchestrator keeps concurrent
// triggers for the same domain serialized.
type Dispatcher struct {
	orchestrator *Orchestrator
	sem          chan struct{}
	logger       *slog.Logger

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

// NewDispatcher creates a new Dispatcher instance. maxConcurrent bounds the
// number of simultaneously running passes; values below 1 are treated as 1.
func NewDispatcher(orchestrator *Orchestrator, maxConcurrent int, logger *slog.Logger) *Dispatcher {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		orchestrator: orchestrator,
		sem:          make(chan struct{}, maxConcurrent),
		logger:       logger,
	}
}

// Enqueue schedules one lifecycle pass for the domain and returns without
// waiting for it. Blocks only while all worker slots are busy.
func (d *Dispatcher) Enqueue(ctx context.Context, domain string, force bool) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	d.wg.Add(1)
	d.mu.Unlock()

	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		d.wg.Done()
		return ctx.Err()
	}

	go func() {
		defer d.wg.Done()
		defer func() { <-d.sem }()

		// The pass outlives the trigger request on purpose; Shutdown waits
		// for it instead.
		runCtx := context.WithoutCancel(ctx)
		if _, err := d.orchestrator.Run(runCtx, domain, force); err != nil {
			d.logger.Error("background certificate pass failed",
				"domain", domain,
				"error", err,
			)
		}
	}()

	return nil
}

// Shutdown stops accepting new work and waits for in-flight passes to
// finish or the context to expire.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

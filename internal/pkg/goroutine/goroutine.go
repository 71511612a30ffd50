// Package goroutine runs background tasks with a bounded concurrency limit.
//
// The emergency recovery channel publishes its encrypted document through
// this manager so issuance never blocks on object-storage latency; Wait is
// called once at shutdown to drain in-flight publishes.
package goroutine

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
)

// DefaultLimit is used when NewManager receives a non-positive limit.
const DefaultLimit = 64

// Manager schedules functions onto goroutines up to a concurrency limit and
// collects their errors for Wait.
type Manager struct {
	mu     sync.Mutex
	errs   []error
	wg     sync.WaitGroup
	sema   chan struct{}
	state  sync.RWMutex
	closed bool
}

// NewManager creates a Manager with the provided maximum concurrency.
func NewManager(limit int) *Manager {
	if limit < 1 {
		limit = DefaultLimit
	}
	return &Manager{sema: make(chan struct{}, limit)}
}

// Go schedules f when capacity is available. At the limit, or after Wait has
// been called, the task is dropped with a warning rather than queued.
func (g *Manager) Go(pCtx context.Context, f func(ctx context.Context) error) {
	if g == nil {
		return
	}

	g.state.RLock()
	closed := g.closed
	g.state.RUnlock()
	if closed {
		slog.WarnContext(pCtx, "goroutine manager is closed, dropping task")
		return
	}

	select {
	case g.sema <- struct{}{}:
		g.wg.Add(1)
		go func() {
			defer func() {
				<-g.sema
				if rvr := recover(); rvr != nil {
					slog.ErrorContext(pCtx, "panic in background task", "panic", rvr, "stack", string(debug.Stack()))
				}
				g.wg.Done()
			}()

			select {
			case <-pCtx.Done():
				slog.WarnContext(pCtx, "background task canceled", "because", pCtx.Err())
			default:
				if err := f(pCtx); err != nil {
					g.mu.Lock()
					g.errs = append(g.errs, err)
					g.mu.Unlock()
				}
			}
		}()

	default:
		slog.WarnContext(pCtx, "goroutine limit reached, dropping task")
	}
}

// Wait blocks until all scheduled tasks finish and returns collected errors.
// The manager accepts no new tasks afterwards.
func (g *Manager) Wait() error {
	if g == nil {
		return nil
	}

	g.state.Lock()
	g.closed = true
	g.state.Unlock()

	g.wg.Wait()

	g.mu.Lock()
	defer g.mu.Unlock()
	return errors.Join(g.errs...)
}

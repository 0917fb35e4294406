package hostops

import (
	"context"
	"sync"
)

// SimulatedExecutor is a trivial Executor: Prepare queues a callback,
// Flush runs everything queued since the last Flush in submission order.
// It exists to keep the io_uring-style Prepare/Flush batching shape alive
// in a kernel with no real character device to drive through it — see
// DESIGN.md's disposition of github.com/pawelgaczynski/giouring.
type SimulatedExecutor struct {
	mu      sync.Mutex
	pending []func()
	closed  bool
}

// NewSimulatedExecutor returns a ready Executor.
func NewSimulatedExecutor() *SimulatedExecutor {
	return &SimulatedExecutor{}
}

func (e *SimulatedExecutor) Prepare(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.pending = append(e.pending, fn)
}

func (e *SimulatedExecutor) Flush(ctx context.Context) error {
	e.mu.Lock()
	batch := e.pending
	e.pending = nil
	e.mu.Unlock()

	for _, fn := range batch {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fn()
	}
	return nil
}

func (e *SimulatedExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.pending = nil
	return nil
}

var _ Executor = (*SimulatedExecutor)(nil)

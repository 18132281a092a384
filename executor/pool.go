// Package executor provides a bounded worker pool used to offload blocking
// metadata/blob I/O from the calling goroutine. Ownership follows the
// original implementation's weakref.finalize(self, Project._shutdown_executor,
// self.executor) pattern: a pool MemoCore creates itself is torn down via a
// runtime finalizer that closes only over the pool handle, never over the
// owning *memo.Core, so the finalizer cannot resurrect or pin the Core it
// serves. A pool the caller injects is never touched by MemoCore's shutdown
// path — the caller keeps ownership.
package executor

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Pool bounds the number of concurrently in-flight tasks.
type Pool struct {
	sem *semaphore.Weighted
}

// New returns a Pool allowing up to n concurrent tasks.
func New(n int) *Pool {
	if n <= 0 {
		n = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(n))}
}

// NewOwned returns a Pool like New, but registers a finalizer that releases
// the pool's resources if the caller drops its last reference without
// calling Close. The finalizer closes only over the returned *Pool, never
// over any larger owning structure, so it cannot keep unrelated state alive.
func NewOwned(n int) *Pool {
	p := New(n)
	runtime.SetFinalizer(p, func(p *Pool) {
		p.Close()
	})
	return p
}

// Submit runs fn, blocking until a slot is available or ctx is done.
func (p *Pool) Submit(ctx context.Context, fn func() (any, error)) (any, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.sem.Release(1)
	return fn()
}

// Close releases the pool. A Pool has no background goroutines to stop —
// Close exists so NewOwned's finalizer and an injected pool's explicit
// shutdown share one no-op-safe call.
func (p *Pool) Close() error {
	runtime.SetFinalizer(p, nil)
	return nil
}

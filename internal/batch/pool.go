package batch

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Pool bounds how many units of work run at once.
type Pool struct {
	sem  *semaphore.Weighted
	size int
	wg   sync.WaitGroup
}

// NewPool creates a pool with n permits. n < 1 is treated as 1.
func NewPool(n int) *Pool {
	if n < 1 {
		n = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(n)), size: n}
}

// Size returns the number of permits.
func (p *Pool) Size() int {
	return p.size
}

// Acquire blocks until a permit is free or ctx is done.
func (p *Pool) Acquire(ctx context.Context) error {
	return p.sem.Acquire(ctx, 1)
}

// Release returns a permit.
func (p *Pool) Release() {
	p.sem.Release(1)
}

// Go acquires a permit and runs fn on its own goroutine, releasing the
// permit when fn returns.
func (p *Pool) Go(ctx context.Context, fn func()) error {
	if err := p.Acquire(ctx); err != nil {
		return err
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.Release()
		fn()
	}()
	return nil
}

// Wait blocks until every function started with Go has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

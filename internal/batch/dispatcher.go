// Package batch pushes many independent per-product updates through a
// bounded pool, turning individual failures into outcomes instead of
// aborting the batch.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Strategy controls how work is scheduled.
type Strategy string

const (
	// StrategyWindowed runs fixed windows of Concurrency items. A window
	// starts only after the previous one has fully settled, with Pacing in
	// between.
	StrategyWindowed Strategy = "windowed"

	// StrategySliding keeps up to Concurrency items in flight and starts a
	// new one as soon as a permit frees, rate limited to Concurrency starts
	// per Pacing.
	StrategySliding Strategy = "sliding"
)

const (
	DefaultConcurrency = 5
	DefaultPacing      = 100 * time.Millisecond
)

// Outcome is the result of one dispatched operation.
type Outcome struct {
	ProductID string `json:"productId"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Err       error  `json:"-"`
}

// Progress is reported after every completed operation.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Options configures a Dispatcher. Zero values take the defaults.
type Options struct {
	Concurrency int
	Pacing      time.Duration
	Strategy    Strategy

	// Sleep waits between windows. Tests replace it to avoid real delays.
	Sleep func(time.Duration)

	Logger *slog.Logger
}

// Dispatcher runs batches. It is safe for concurrent use; each batch gets
// its own pool.
type Dispatcher struct {
	concurrency int
	pacing      time.Duration
	strategy    Strategy
	sleep       func(time.Duration)
	logger      *slog.Logger
}

// New creates a Dispatcher.
func New(opts Options) *Dispatcher {
	d := &Dispatcher{
		concurrency: opts.Concurrency,
		pacing:      opts.Pacing,
		strategy:    opts.Strategy,
		sleep:       opts.Sleep,
		logger:      opts.Logger,
	}
	if d.concurrency < 1 {
		d.concurrency = DefaultConcurrency
	}
	if d.pacing <= 0 {
		d.pacing = DefaultPacing
	}
	if d.strategy == "" {
		d.strategy = StrategyWindowed
	}
	if d.sleep == nil {
		d.sleep = time.Sleep
	}
	if d.logger == nil {
		d.logger = slog.New(slog.DiscardHandler)
	}
	return d
}

// Concurrency returns the window size.
func (d *Dispatcher) Concurrency() int {
	return d.concurrency
}

// Dispatch runs op for every request and returns one outcome per request in
// request order. id names the product a request belongs to. progress, if
// non-nil, is called after each completion.
//
// The batch itself is not cancellable: ctx is handed to op, and every
// request still produces an outcome.
func Dispatch[T any](ctx context.Context, d *Dispatcher, reqs []T, id func(T) string, op func(context.Context, T) error, progress func(Progress)) []Outcome {
	outcomes := make([]Outcome, len(reqs))
	if len(reqs) == 0 {
		return outcomes
	}

	var (
		mu   sync.Mutex
		done int
	)
	run := func(i int) {
		outcomes[i] = invoke(ctx, reqs[i], id, op)
		mu.Lock()
		done++
		if progress != nil {
			progress(Progress{Current: done, Total: len(reqs)})
		}
		mu.Unlock()
	}

	// Scheduling waits ignore cancellation so every request gets an outcome.
	sched := context.WithoutCancel(ctx)
	pool := NewPool(d.concurrency)

	switch d.strategy {
	case StrategySliding:
		limiter := rate.NewLimiter(rate.Every(d.pacing/time.Duration(d.concurrency)), d.concurrency)
		for i := range reqs {
			_ = limiter.Wait(sched)
			_ = pool.Go(sched, func() { run(i) })
		}
		pool.Wait()

	default:
		for start := 0; start < len(reqs); start += d.concurrency {
			end := min(start+d.concurrency, len(reqs))
			for i := start; i < end; i++ {
				_ = pool.Go(sched, func() { run(i) })
			}
			pool.Wait()

			d.logger.Debug("batch window settled",
				slog.Int("from", start),
				slog.Int("to", end),
				slog.Int("total", len(reqs)),
			)
			if end < len(reqs) {
				d.sleep(d.pacing)
			}
		}
	}

	return outcomes
}

// invoke runs one operation, converting errors and panics into a failed
// outcome.
func invoke[T any](ctx context.Context, req T, id func(T) string, op func(context.Context, T) error) (out Outcome) {
	out.ProductID = id(req)
	defer func() {
		if r := recover(); r != nil {
			out.Success = false
			out.Err = fmt.Errorf("panic: %v", r)
			out.Error = out.Err.Error()
		}
	}()

	if err := op(ctx, req); err != nil {
		out.Err = err
		out.Error = err.Error()
		return out
	}
	out.Success = true
	return out
}

// Summary counts outcomes.
type Summary struct {
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	FailedIDs []string `json:"failedIds,omitempty"`
}

// Summarize tallies a batch result.
func Summarize(outcomes []Outcome) Summary {
	var s Summary
	for _, o := range outcomes {
		if o.Success {
			s.Succeeded++
			continue
		}
		s.Failed++
		s.FailedIDs = append(s.FailedIDs, o.ProductID)
	}
	return s
}

package batch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("p%d", i+1)
	}
	return out
}

func self(s string) string { return s }

func newTestDispatcher(strategy Strategy, sleeps *[]time.Duration) *Dispatcher {
	var mu sync.Mutex
	return New(Options{
		Strategy: strategy,
		Sleep: func(d time.Duration) {
			mu.Lock()
			defer mu.Unlock()
			if sleeps != nil {
				*sleeps = append(*sleeps, d)
			}
		},
	})
}

func TestDispatch_PartialFailure(t *testing.T) {
	for _, strategy := range []Strategy{StrategyWindowed, StrategySliding} {
		t.Run(string(strategy), func(t *testing.T) {
			d := newTestDispatcher(strategy, nil)
			reqs := ids(7)

			outcomes := Dispatch(context.Background(), d, reqs, self, func(_ context.Context, id string) error {
				if id == "p3" || id == "p6" {
					return errors.New("rejected")
				}
				return nil
			}, nil)

			require.Len(t, outcomes, 7)
			for i, o := range outcomes {
				assert.Equal(t, reqs[i], o.ProductID, "outcome order")
			}
			assert.False(t, outcomes[2].Success)
			assert.False(t, outcomes[5].Success)
			assert.Equal(t, "rejected", outcomes[2].Error)

			s := Summarize(outcomes)
			assert.Equal(t, 5, s.Succeeded)
			assert.Equal(t, 2, s.Failed)
			assert.Equal(t, []string{"p3", "p6"}, s.FailedIDs)
		})
	}
}

func TestDispatch_ProgressAfterEveryCompletion(t *testing.T) {
	d := newTestDispatcher(StrategyWindowed, nil)

	var seen []Progress
	Dispatch(context.Background(), d, ids(12), self, func(context.Context, string) error {
		return nil
	}, func(p Progress) {
		seen = append(seen, p)
	})

	require.Len(t, seen, 12)
	for i, p := range seen {
		assert.Equal(t, i+1, p.Current)
		assert.Equal(t, 12, p.Total)
	}
}

func TestDispatch_WindowedBoundsConcurrency(t *testing.T) {
	var sleeps []time.Duration
	d := newTestDispatcher(StrategyWindowed, &sleeps)

	var inFlight, peak atomic.Int32
	Dispatch(context.Background(), d, ids(12), self, func(context.Context, string) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	}, nil)

	assert.LessOrEqual(t, peak.Load(), int32(DefaultConcurrency))
	// 12 items make 3 windows; pacing only between them.
	assert.Equal(t, []time.Duration{DefaultPacing, DefaultPacing}, sleeps)
}

func TestDispatch_WindowBarrier(t *testing.T) {
	d := newTestDispatcher(StrategyWindowed, nil)

	var (
		mu       sync.Mutex
		finished = map[string]bool{}
		violated bool
	)
	reqs := ids(10)
	Dispatch(context.Background(), d, reqs, self, func(_ context.Context, id string) error {
		mu.Lock()
		// The second window must not start before the first has finished.
		if slices.Index(reqs, id) >= DefaultConcurrency {
			for _, prev := range reqs[:5] {
				if !finished[prev] {
					violated = true
				}
			}
		}
		mu.Unlock()

		time.Sleep(time.Millisecond)

		mu.Lock()
		finished[id] = true
		mu.Unlock()
		return nil
	}, nil)

	assert.False(t, violated)
}

func TestDispatch_NoPacingForSingleWindow(t *testing.T) {
	var sleeps []time.Duration
	d := newTestDispatcher(StrategyWindowed, &sleeps)

	Dispatch(context.Background(), d, ids(5), self, func(context.Context, string) error { return nil }, nil)
	assert.Empty(t, sleeps)
}

func TestDispatch_PanicBecomesFailure(t *testing.T) {
	d := newTestDispatcher(StrategyWindowed, nil)

	outcomes := Dispatch(context.Background(), d, ids(3), self, func(_ context.Context, id string) error {
		if id == "p2" {
			panic("boom")
		}
		return nil
	}, nil)

	assert.True(t, outcomes[0].Success)
	assert.False(t, outcomes[1].Success)
	assert.Contains(t, outcomes[1].Error, "boom")
	assert.True(t, outcomes[2].Success)
}

func TestDispatch_CancelledContextStillYieldsOutcomes(t *testing.T) {
	d := newTestDispatcher(StrategySliding, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := Dispatch(ctx, d, ids(4), self, func(ctx context.Context, _ string) error {
		return ctx.Err()
	}, nil)

	require.Len(t, outcomes, 4)
	for _, o := range outcomes {
		assert.False(t, o.Success)
		assert.ErrorIs(t, o.Err, context.Canceled)
	}
}

func TestDispatch_Empty(t *testing.T) {
	d := New(Options{})
	outcomes := Dispatch(context.Background(), d, nil, self, func(context.Context, string) error {
		t.Fatal("op must not run")
		return nil
	}, nil)
	assert.Empty(t, outcomes)
}

func TestPool_Go(t *testing.T) {
	p := NewPool(2)
	assert.Equal(t, 2, p.Size())

	var n atomic.Int32
	for range 6 {
		require.NoError(t, p.Go(context.Background(), func() { n.Add(1) }))
	}
	p.Wait()
	assert.Equal(t, int32(6), n.Load())
}

func TestPool_AcquireRespectsContext(t *testing.T) {
	p := NewPool(1)
	require.NoError(t, p.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, p.Acquire(ctx))

	p.Release()
	assert.NoError(t, p.Acquire(context.Background()))
}

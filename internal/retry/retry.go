// Package retry runs fallible operations with capped exponential backoff and
// ±20% jitter, retrying only failures that are likely to be transient.
package retry

import (
	"context"
	"errors"
	"net"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"

	"gizmo-stock/internal/model"
)

// ErrAborted is returned when the context is cancelled before an attempt
// or while waiting between attempts. It is never retried.
var ErrAborted = errors.New("aborted")

// Timer lets tests replace real sleeps between attempts.
type Timer = backoff.Timer

// DefaultRetryableStatuses are the HTTP statuses treated as transient.
var DefaultRetryableStatuses = []int{408, 429, 500, 502, 503, 504}

// Options configures Do. Zero values take the defaults below.
type Options struct {
	MaxRetries        int           // default 3; total calls <= MaxRetries+1
	BaseDelay         time.Duration // default 1s
	MaxDelay          time.Duration // default 10s
	BackoffMultiplier float64       // default 2
	RetryableStatuses []int         // default DefaultRetryableStatuses

	// OnRetry is called before each sleep with the 1-based number of the
	// attempt that just failed.
	OnRetry func(attempt int, err error, delay time.Duration)

	// Timer overrides the sleep implementation. Nil uses real time.
	Timer Timer

	// NoRetry disables retries while keeping classification and abort handling.
	NoRetry bool
}

// DefaultOptions returns the standard retry policy.
func DefaultOptions() Options {
	return Options{
		MaxRetries:        3,
		BaseDelay:         time.Second,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2,
		RetryableStatuses: DefaultRetryableStatuses,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxRetries <= 0 && !o.NoRetry {
		o.MaxRetries = d.MaxRetries
	}
	if o.NoRetry {
		o.MaxRetries = 0
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = d.BaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = d.MaxDelay
	}
	if o.BackoffMultiplier <= 0 {
		o.BackoffMultiplier = d.BackoffMultiplier
	}
	if o.RetryableStatuses == nil {
		o.RetryableStatuses = d.RetryableStatuses
	}
	return o
}

// Do calls operation until it succeeds, fails with a non-retryable error,
// or the retry budget is spent. On exhaustion the last error is returned
// unchanged.
func Do(ctx context.Context, operation func(ctx context.Context) error, opts Options) error {
	_, err := DoWithData(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, operation(ctx)
	}, opts)
	return err
}

// DoWithData is Do for operations that return a value.
func DoWithData[T any](ctx context.Context, operation func(ctx context.Context) (T, error), opts Options) (T, error) {
	opts = opts.withDefaults()

	attempt := 0
	op := func() (T, error) {
		var zero T
		if ctx.Err() != nil {
			return zero, backoff.Permanent(ErrAborted)
		}
		attempt++
		res, err := operation(ctx)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return zero, backoff.Permanent(ErrAborted)
		}
		if !IsRetryable(err, opts.RetryableStatuses) {
			return zero, backoff.Permanent(err)
		}
		return zero, err
	}

	var notify backoff.Notify
	if opts.OnRetry != nil {
		notify = func(err error, delay time.Duration) {
			opts.OnRetry(attempt, err, delay)
		}
	}

	res, err := backoff.RetryNotifyWithTimerAndData(op, newPolicy(ctx, opts), notify, opts.Timer)
	if err != nil && ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return res, ErrAborted
	}
	return res, err
}

// newPolicy builds the backoff schedule: min(base·mult^(k-1), max) × U[0.8,1.2],
// rounded to whole milliseconds.
func newPolicy(ctx context.Context, opts Options) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = opts.BaseDelay
	exp.Multiplier = opts.BackoffMultiplier
	exp.MaxInterval = opts.MaxDelay
	exp.RandomizationFactor = 0.2
	exp.MaxElapsedTime = 0
	exp.Reset()

	var b backoff.BackOff = millis{exp}
	b = backoff.WithMaxRetries(b, uint64(opts.MaxRetries))
	return backoff.WithContext(b, ctx)
}

// millis rounds every delay to a whole millisecond.
type millis struct {
	backoff.BackOff
}

func (m millis) NextBackOff() time.Duration {
	d := m.BackOff.NextBackOff()
	if d == backoff.Stop {
		return d
	}
	return d.Round(time.Millisecond)
}

// IsRetryable reports whether err is a transport failure or an HTTP status
// listed in statuses.
func IsRetryable(err error, statuses []int) bool {
	if err == nil || errors.Is(err, ErrAborted) {
		return false
	}
	if status, ok := model.StatusOf(err); ok {
		for _, s := range statuses {
			if s == status {
				return true
			}
		}
		return false
	}
	if errors.Is(err, model.ErrNetwork) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

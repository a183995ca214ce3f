// Package clock abstracts wall-clock time so TTL checks and session
// timestamps can be driven deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Real is the production clock backed by time.Now.
type Real struct{}

// New returns the system clock.
func New() Clock {
	return Real{}
}

// Now returns the current system time.
func (Real) Now() time.Time {
	return time.Now()
}

// Mock is a settable clock for tests. Safe for concurrent use.
type Mock struct {
	mu      sync.Mutex
	current time.Time
}

// NewMock creates a Mock starting at the given time.
func NewMock(start time.Time) *Mock {
	return &Mock{current: start}
}

func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Set moves the clock to t.
func (m *Mock) Set(t time.Time) {
	m.mu.Lock()
	m.current = t
	m.mu.Unlock()
}

// Advance moves the clock forward by d.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	m.current = m.current.Add(d)
	m.mu.Unlock()
}

package model

import (
	"bytes"
	"encoding/json"
)

// Opt is a value that may be absent. The zero Opt is absent, which keeps
// "no change requested" distinct from an explicit zero.
type Opt[T any] struct {
	value T
	ok    bool
}

// Some returns a present Opt holding v.
func Some[T any](v T) Opt[T] {
	return Opt[T]{value: v, ok: true}
}

// None returns an absent Opt.
func None[T any]() Opt[T] {
	return Opt[T]{}
}

// Get returns the value and whether it is present.
func (o Opt[T]) Get() (T, bool) {
	return o.value, o.ok
}

// IsSet reports whether a value is present.
func (o Opt[T]) IsSet() bool {
	return o.ok
}

// IsZero reports absence; used by the omitzero JSON tag option.
func (o Opt[T]) IsZero() bool {
	return !o.ok
}

// Or returns the value if present, otherwise fallback.
func (o Opt[T]) Or(fallback T) T {
	if o.ok {
		return o.value
	}
	return fallback
}

// Ptr returns a pointer to a copy of the value, or nil when absent.
func (o Opt[T]) Ptr() *T {
	if !o.ok {
		return nil
	}
	v := o.value
	return &v
}

// OptFromPtr converts a nil-able pointer to an Opt.
func OptFromPtr[T any](p *T) Opt[T] {
	if p == nil {
		return Opt[T]{}
	}
	return Some(*p)
}

func (o Opt[T]) MarshalJSON() ([]byte, error) {
	if !o.ok {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

func (o *Opt[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = Opt[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

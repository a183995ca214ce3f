// Package cache provides TTL caches that can be persisted as a single JSON
// blob and restored across restarts.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"gizmo-stock/internal/clock"
)

// Well-known caches.
const (
	ImageTTL   = 24 * time.Hour
	ProductTTL = 5 * time.Minute

	ImageKey   = "gizmo.imageCache"
	ProductKey = "gizmo.productCache"
)

// Blobs persists a cache snapshot.
type Blobs interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
}

// Options configures a TTLCache.
type Options struct {
	// Name labels log lines and lookup callbacks.
	Name  string
	TTL   time.Duration
	Clock clock.Clock

	// Store and Key enable Load and Save.
	Store Blobs
	Key   string

	// OnLookup is called after every Get.
	OnLookup func(name string, hit bool)

	Logger *slog.Logger
}

type entry[V any] struct {
	value V
	at    time.Time
}

// wireEntry is the persisted form. Timestamp is in Unix milliseconds.
type wireEntry[V any] struct {
	Value     V     `json:"value"`
	Timestamp int64 `json:"timestamp"`
}

// TTLCache maps string keys to values that expire TTL after they were
// written. go-cache expires entries on wall time; reads and Prune also judge
// them against the injected clock, so stale or malformed entries are misses
// under either. Safe for concurrent use.
type TTLCache[V any] struct {
	name     string
	ttl      time.Duration
	items    *gocache.Cache
	clock    clock.Clock
	store    Blobs
	key      string
	onLookup func(string, bool)
	logger   *slog.Logger
}

// New creates a cache.
func New[V any](opts Options) *TTLCache[V] {
	c := &TTLCache[V]{
		name:     opts.Name,
		ttl:      opts.TTL,
		items:    gocache.New(opts.TTL, janitorInterval(opts.TTL)),
		clock:    opts.Clock,
		store:    opts.Store,
		key:      opts.Key,
		onLookup: opts.OnLookup,
		logger:   opts.Logger,
	}
	if c.clock == nil {
		c.clock = clock.New()
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	if c.name == "" {
		c.name = c.key
	}
	return c
}

// Get returns the value for key if it was written less than TTL ago.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	v, ok := c.get(key)
	if c.onLookup != nil {
		c.onLookup(c.name, ok)
	}
	return v, ok
}

func (c *TTLCache[V]) get(key string) (V, bool) {
	var zero V
	raw, ok := c.items.Get(key)
	if !ok {
		return zero, false
	}
	e, ok := raw.(entry[V])
	if !ok || !c.fresh(e.at) {
		return zero, false
	}
	return e.value, true
}

func (c *TTLCache[V]) fresh(at time.Time) bool {
	if at.IsZero() {
		return false
	}
	return c.clock.Now().Sub(at) < c.ttl
}

// Set stores v under key, stamped with the current time.
func (c *TTLCache[V]) Set(key string, v V) {
	c.items.Set(key, entry[V]{value: v, at: c.clock.Now()}, gocache.DefaultExpiration)
}

// Delete removes key.
func (c *TTLCache[V]) Delete(key string) {
	c.items.Delete(key)
}

// Flush removes every entry.
func (c *TTLCache[V]) Flush() {
	c.items.Flush()
}

// Len returns the number of stored entries, fresh or not.
func (c *TTLCache[V]) Len() int {
	return c.items.ItemCount()
}

// Prune drops stale entries and returns how many were removed.
func (c *TTLCache[V]) Prune() int {
	before := c.items.ItemCount()
	c.items.DeleteExpired()
	for k, it := range c.items.Items() {
		if e, ok := it.Object.(entry[V]); !ok || !c.fresh(e.at) {
			c.items.Delete(k)
		}
	}
	return before - c.items.ItemCount()
}

// janitorInterval is how often go-cache sweeps expired entries on its own.
func janitorInterval(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	return max(ttl, time.Minute)
}

// Load replaces the in-memory contents with the persisted snapshot.
// Malformed or stale entries are skipped; a malformed blob is treated as
// empty.
func (c *TTLCache[V]) Load(ctx context.Context) error {
	if c.store == nil || c.key == "" {
		return nil
	}
	data, ok, err := c.store.Get(ctx, c.key)
	if err != nil {
		return fmt.Errorf("loading %s cache: %w", c.name, err)
	}
	c.items.Flush()
	if !ok {
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		c.logger.Warn("ignoring malformed cache blob",
			slog.String("cache", c.name),
			slog.String("error", err.Error()),
		)
		return nil
	}

	loaded, skipped := 0, 0
	for k, r := range raw {
		var w wireEntry[V]
		if err := json.Unmarshal(r, &w); err != nil || w.Timestamp <= 0 {
			skipped++
			continue
		}
		at := time.UnixMilli(w.Timestamp)
		if !c.fresh(at) {
			skipped++
			continue
		}
		c.items.Set(k, entry[V]{value: w.Value, at: at}, c.ttl-c.clock.Now().Sub(at))
		loaded++
	}

	c.logger.Debug("cache restored",
		slog.String("cache", c.name),
		slog.Int("loaded", loaded),
		slog.Int("skipped", skipped),
	)
	return nil
}

// Save writes every fresh entry as a single JSON blob.
func (c *TTLCache[V]) Save(ctx context.Context) error {
	if c.store == nil || c.key == "" {
		return nil
	}
	out := make(map[string]wireEntry[V])
	for k, it := range c.items.Items() {
		e, ok := it.Object.(entry[V])
		if !ok || !c.fresh(e.at) {
			continue
		}
		out[k] = wireEntry[V]{Value: e.value, Timestamp: e.at.UnixMilli()}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("encoding %s cache: %w", c.name, err)
	}
	if err := c.store.Put(ctx, c.key, data); err != nil {
		return fmt.Errorf("saving %s cache: %w", c.name, err)
	}
	return nil
}

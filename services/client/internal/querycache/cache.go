package querycache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultMaxRetries = 1
	DefaultStaleTime  = 60 * time.Second
	DefaultCapacity   = 256
)

// EntryState describes a key's entry as seen by the next Get.
type EntryState int

const (
	Absent EntryState = iota
	Fresh
	Stale
	InFlight
)

func (s EntryState) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	case InFlight:
		return "in_flight"
	default:
		return "absent"
	}
}

// Options configure a Cache.
//
// MaxRetries is the number of extra attempts after a failed load.
// StaleTime is the age below which a stored value is served without
// loading. Capacity bounds the table; the least recently used entry is
// evicted first. RefetchOnFocus makes Focus mark every entry stale.
type Options struct {
	MaxRetries     int
	StaleTime      time.Duration
	RefetchOnFocus bool
	Capacity       int
	Clock          clockwork.Clock
	Logger         *slog.Logger
}

// DefaultOptions returns retry once, 60s staleness, no refetch on focus.
func DefaultOptions() Options {
	return Options{
		MaxRetries: DefaultMaxRetries,
		StaleTime:  DefaultStaleTime,
		Capacity:   DefaultCapacity,
	}
}

// Loader produces the value for one key.
type Loader[T any] func(ctx context.Context) (T, error)

type entry struct {
	value       any
	fetchedAt   time.Time
	invalidated bool
}

// Cache is a keyed, coalescing, retrying cache for remote reads.
// Failed loads are never stored.
type Cache struct {
	opts    Options
	clock   clockwork.Clock
	logger  *slog.Logger
	entries *lru.Cache[RequestKey, *entry]
	group   singleflight.Group

	mu       sync.Mutex
	inflight map[RequestKey]struct{}
}

// New builds a cache. Zero Capacity uses DefaultCapacity; negative
// MaxRetries is treated as zero.
func New(opts Options) (*Cache, error) {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.StaleTime < 0 {
		opts.StaleTime = 0
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	entries, err := lru.New[RequestKey, *entry](opts.Capacity)
	if err != nil {
		return nil, fmt.Errorf("create query table: %w", err)
	}
	return &Cache{
		opts:     opts,
		clock:    clock,
		logger:   logger,
		entries:  entries,
		inflight: make(map[RequestKey]struct{}),
	}, nil
}

// Options returns the effective options.
func (c *Cache) Options() Options {
	return c.opts
}

// Get returns the value for key, loading it with load when the key has no
// fresh entry. Concurrent calls for one key share a single load. The load
// runs detached from the caller's cancellation so one caller leaving does
// not fail the others; ctx only bounds how long this caller waits.
func Get[T any](ctx context.Context, c *Cache, key RequestKey, load Loader[T]) (T, error) {
	var zero T
	v, err := c.get(ctx, key, func(ctx context.Context) (any, error) {
		return load(ctx)
	})
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("querycache: %s holds %T", key, v)
	}
	return typed, nil
}

func (c *Cache) get(ctx context.Context, key RequestKey, load func(context.Context) (any, error)) (any, error) {
	if v, ok := c.fresh(key); ok {
		return v, nil
	}
	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key.String(), func() (any, error) {
		if v, ok := c.fresh(key); ok {
			return v, nil
		}
		c.setInFlight(key, true)
		defer c.setInFlight(key, false)
		return c.load(loadCtx, key, load)
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) load(ctx context.Context, key RequestKey, load func(context.Context) (any, error)) (any, error) {
	var err error
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		var v any
		v, err = load(ctx)
		if err == nil {
			c.entries.Add(key, &entry{value: v, fetchedAt: c.clock.Now()})
			return v, nil
		}
		c.logger.Debug("query load failed", "key", key.String(), "attempt", attempt+1, "err", err)
	}
	c.entries.Remove(key)
	c.logger.Warn("query failed", "key", key.String(), "attempts", c.opts.MaxRetries+1, "err", err)
	return nil, err
}

func (c *Cache) fresh(key RequestKey) (any, bool) {
	e, ok := c.entries.Get(key)
	if !ok || !c.isFresh(e) {
		return nil, false
	}
	return e.value, true
}

func (c *Cache) isFresh(e *entry) bool {
	return !e.invalidated && c.clock.Since(e.fetchedAt) < c.opts.StaleTime
}

func (c *Cache) setInFlight(key RequestKey, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if on {
		c.inflight[key] = struct{}{}
		return
	}
	delete(c.inflight, key)
}

// State reports what the next Get for key would find.
func (c *Cache) State(key RequestKey) EntryState {
	c.mu.Lock()
	_, loading := c.inflight[key]
	c.mu.Unlock()
	if loading {
		return InFlight
	}
	e, ok := c.entries.Peek(key)
	switch {
	case !ok:
		return Absent
	case c.isFresh(e):
		return Fresh
	default:
		return Stale
	}
}

// FetchedAt returns when the stored value for key was loaded.
func (c *Cache) FetchedAt(key RequestKey) (time.Time, bool) {
	e, ok := c.entries.Peek(key)
	if !ok {
		return time.Time{}, false
	}
	return e.fetchedAt, true
}

// Invalidate marks key stale; the next Get reloads it.
func (c *Cache) Invalidate(key RequestKey) {
	e, ok := c.entries.Peek(key)
	if !ok {
		return
	}
	c.entries.Add(key, &entry{value: e.value, fetchedAt: e.fetchedAt, invalidated: true})
}

// Focus is called when the user returns to the application. With
// RefetchOnFocus it marks every entry stale and reports true.
func (c *Cache) Focus() bool {
	if !c.opts.RefetchOnFocus {
		return false
	}
	for _, key := range c.entries.Keys() {
		c.Invalidate(key)
	}
	return true
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Purge drops every stored entry.
func (c *Cache) Purge() {
	c.entries.Purge()
}

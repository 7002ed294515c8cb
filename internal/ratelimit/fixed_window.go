package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

const (
	defaultPrefix     = "bookfinder:ratelimit"
	defaultMemoryKeys = 10000
	redisCallTimeout  = 2 * time.Second
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// Reset is when the current window ends.
	Reset time.Time
}

// RetryAfter returns how long until the window resets, at least one second.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.Reset.Sub(now)
	if wait < time.Second {
		return time.Second
	}
	return wait.Round(time.Second)
}

type counter interface {
	incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// FixedWindowLimiter limits requests per key in a fixed time window.
type FixedWindowLimiter struct {
	limit  int
	window time.Duration
	prefix string
	count  counter
	now    func() time.Time
}

// NewRedisFixedWindowLimiter counts in Redis so every replica shares one
// quota. The client is not closed by the limiter.
func NewRedisFixedWindowLimiter(client redis.UniversalClient, prefix string, limit int, window time.Duration) (*FixedWindowLimiter, error) {
	if client == nil {
		return nil, errors.New("rate limiter redis client is required")
	}
	return newLimiter(&redisCounter{client: client}, prefix, limit, window)
}

// NewMemoryFixedWindowLimiter counts in process memory.
func NewMemoryFixedWindowLimiter(prefix string, limit int, window time.Duration) (*FixedWindowLimiter, error) {
	if window < time.Millisecond {
		return nil, errors.New("rate limiter window must be at least 1ms")
	}
	return newLimiter(&memoryCounter{
		counts: expirable.NewLRU[string, int64](defaultMemoryKeys, nil, window),
	}, prefix, limit, window)
}

func newLimiter(c counter, prefix string, limit int, window time.Duration) (*FixedWindowLimiter, error) {
	if limit <= 0 {
		return nil, errors.New("rate limiter requires a positive limit")
	}
	// Windows are keyed in whole milliseconds.
	if window < time.Millisecond {
		return nil, errors.New("rate limiter window must be at least 1ms")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &FixedWindowLimiter{
		limit:  limit,
		window: window,
		prefix: prefix,
		count:  c,
		now:    time.Now,
	}, nil
}

// Allow counts one request for key. On counter failures it fails closed:
// the decision denies and the error is returned for logging.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	if l == nil {
		return Decision{}, errors.New("rate limiter is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}
	now := l.now().UTC()
	windowMs := l.window.Milliseconds()
	slot := now.UnixMilli() / windowMs
	reset := time.UnixMilli((slot + 1) * windowMs).UTC()
	storeKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, slot)

	n, err := l.count.incr(ctx, storeKey, l.window)
	if err != nil {
		return Decision{Limit: l.limit, Reset: reset}, fmt.Errorf("count %s: %w", key, err)
	}
	remaining := l.limit - int(n)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   n <= int64(l.limit),
		Limit:     l.limit,
		Remaining: remaining,
		Reset:     reset,
	}, nil
}

type redisCounter struct {
	client redis.UniversalClient
}

func (c *redisCounter) incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, redisCallTimeout)
	defer cancel()
	return fixedWindowScript.Run(ctx, c.client, []string{key}, window.Milliseconds()).Int64()
}

type memoryCounter struct {
	mu     sync.Mutex
	counts *expirable.LRU[string, int64]
}

func (c *memoryCounter) incr(_ context.Context, key string, _ time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, _ := c.counts.Get(key)
	n++
	c.counts.Add(key, n)
	return n, nil
}

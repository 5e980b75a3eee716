package pubapi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter decides whether key may perform one more action. A limiter
// that cannot reach its backend returns true together with the error.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// WindowLimiter is an in-memory sliding-window limiter keyed by client IP.
type WindowLimiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	max      int
	window   time.Duration
	stop     chan struct{}
	once     sync.Once
}

// NewWindowLimiter allows max attempts per window. Call Stop to end its
// background sweep.
func NewWindowLimiter(max int, window time.Duration) *WindowLimiter {
	l := &WindowLimiter{
		attempts: make(map[string][]time.Time),
		max:      max,
		window:   window,
		stop:     make(chan struct{}),
	}
	go l.cleanup()
	return l
}

func (l *WindowLimiter) cleanup() {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
		}
		cutoff := time.Now().Add(-l.window)
		l.mu.Lock()
		for ip, hits := range l.attempts {
			if kept := prune(hits, cutoff); len(kept) == 0 {
				delete(l.attempts, ip)
			} else {
				l.attempts[ip] = kept
			}
		}
		l.mu.Unlock()
	}
}

// Stop ends the background sweep.
func (l *WindowLimiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}

// Allow records an attempt if key is under the limit.
func (l *WindowLimiter) Allow(_ context.Context, key string) (bool, error) {
	if !l.Check(key) {
		return false, nil
	}
	l.Record(key)
	return true, nil
}

// Check reports whether key is under the limit without recording.
func (l *WindowLimiter) Check(key string) bool {
	cutoff := time.Now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := prune(l.attempts[key], cutoff)
	l.attempts[key] = kept
	return len(kept) < l.max
}

// Record registers one attempt for key.
func (l *WindowLimiter) Record(key string) {
	l.mu.Lock()
	l.attempts[key] = append(l.attempts[key], time.Now())
	l.mu.Unlock()
}

func prune(hits []time.Time, cutoff time.Time) []time.Time {
	kept := hits[:0]
	for _, t := range hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

// RedisLimiter is a fixed-window counter shared by every instance that
// talks to the same Redis.
type RedisLimiter struct {
	client redis.Cmdable
	prefix string
	max    int64
	window time.Duration
}

// NewRedisLimiter allows max actions per window for each key, storing
// counters under prefix.
func NewRedisLimiter(client redis.Cmdable, prefix string, max int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix, max: int64(max), window: window}
}

// Allow increments the key's counter for the current window. The TTL is set
// with a plain EXPIRE when the key has none, which works on any Redis
// version and repairs keys left without one.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	k := fmt.Sprintf("%s:%s", l.prefix, key)

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		ttl = pipe.TTL(ctx, k)
		return nil
	})
	if err != nil {
		return true, fmt.Errorf("rate limit %s: %w", k, err)
	}
	allowed := incr.Val() <= l.max

	// TTL reports a negative duration for a key without expiry.
	if ttl.Val() < 0 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return allowed, fmt.Errorf("rate limit %s: set expiry: %w", k, err)
		}
	}
	return allowed, nil
}

package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"girok/pkg/platform/circuit"
	"girok/pkg/platform/sentinel"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "girok_cache_hits_total",
		Help: "Cache reads that found a value",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "girok_cache_misses_total",
		Help: "Cache reads that found nothing",
	})
	singleFlightComputes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "girok_cache_singleflight_computes_total",
		Help: "Factory invocations under the single-flight lock",
	})
)

// Redis implements Cache on go-redis. It is safe for concurrent use; the
// underlying client is process-wide.
//
// A circuit breaker fronts the backend. While open, reads report
// sentinel.ErrUnavailable instead of queueing on a dead connection, and
// GetOrCompute falls through to its factory. Fail-secure callers such as the
// revocation list see the error, never a fabricated miss.
type Redis struct {
	client  *redis.Client
	logger  *slog.Logger
	breaker *circuit.Breaker
}

// NewRedis constructs the Redis-backed cache.
func NewRedis(client *redis.Client, logger *slog.Logger) *Redis {
	return &Redis{
		client:  client,
		logger:  logger,
		breaker: circuit.New("redis-cache"),
	}
}

// observe feeds an operation outcome to the breaker and logs transitions.
func (c *Redis) observe(ctx context.Context, err error) {
	if err == nil {
		if _, change := c.breaker.RecordSuccess(); change.Closed {
			c.logger.InfoContext(ctx, "cache circuit closed", "breaker", c.breaker.Name())
		}
		return
	}
	if _, change := c.breaker.RecordFailure(); change.Opened {
		c.logger.WarnContext(ctx, "cache circuit opened", "breaker", c.breaker.Name(), "error", err)
	}
}

// Get returns the value or sentinel.ErrNotFound on a miss. Backend failures
// are returned as-is so fail-secure callers can distinguish them.
func (c *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	if !c.breaker.Allow() {
		return nil, fmt.Errorf("cache get %s: %w", key, sentinel.ErrUnavailable)
	}
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.observe(ctx, nil)
		cacheMisses.Inc()
		return nil, sentinel.ErrNotFound
	}
	c.observe(ctx, err)
	if err != nil {
		return nil, fmt.Errorf("cache get %s: %w", key, err)
	}
	cacheHits.Inc()
	return val, nil
}

func (c *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !c.breaker.Allow() {
		return fmt.Errorf("cache set %s: %w", key, sentinel.ErrUnavailable)
	}
	err := c.client.Set(ctx, key, value, ttl).Err()
	c.observe(ctx, err)
	if err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

func (c *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	err := c.client.Del(ctx, keys...).Err()
	c.observe(ctx, err)
	if err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// InvalidatePattern scans for matching keys and deletes them in batches.
// SCAN keeps the cost proportional to matches plus keyspace pages; callers
// invoke this off the request path.
func (c *Redis) InvalidatePattern(ctx context.Context, pattern string) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 256).Result()
		if err != nil {
			return removed, fmt.Errorf("cache scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return removed, fmt.Errorf("cache pattern delete: %w", err)
			}
			removed += int(n)
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

// GetOrCompute implements single-flight: read, acquire lock:<key> via SETNX
// with a 5 s TTL, re-read under the lock, invoke factory at most once, write,
// and release the lock on every exit path. When the lock is contended the
// loser polls briefly for the winner's result before computing itself; the
// factory may then run more than once across processes, but never
// concurrently under the same lock.
func (c *Redis) GetOrCompute(ctx context.Context, key string, ttl time.Duration, factory func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if val, err := c.Get(ctx, key); err == nil {
		return val, nil
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		// Cache unreachable, circuit open or backend error. Serve from the
		// source without caching rather than failing the request.
		return factory(ctx)
	}

	lockKey := "lock:" + key
	token, err := lockToken()
	if err != nil {
		return nil, err
	}

	acquired, err := c.client.SetNX(ctx, lockKey, token, lockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("cache lock %s: %w", lockKey, err)
	}

	if !acquired {
		// Another producer is computing; wait for its write up to the lock
		// TTL, then fall through and compute ourselves.
		deadline := time.Now().Add(lockTTL)
		for time.Now().Before(deadline) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(50 * time.Millisecond):
			}
			if val, err := c.Get(ctx, key); err == nil {
				return val, nil
			} else if !errors.Is(err, sentinel.ErrNotFound) {
				return nil, err
			}
		}
		acquired, err = c.client.SetNX(ctx, lockKey, token, lockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("cache lock %s: %w", lockKey, err)
		}
		if !acquired {
			return nil, fmt.Errorf("cache lock %s: %w", lockKey, sentinel.ErrUnavailable)
		}
	}

	defer c.releaseLock(ctx, lockKey, token)

	// Re-read under the lock: the previous holder may have written between
	// our miss and our acquisition.
	if val, err := c.Get(ctx, key); err == nil {
		return val, nil
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, err
	}

	singleFlightComputes.Inc()
	val, err := factory(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.Set(ctx, key, val, ttl); err != nil {
		return nil, err
	}
	return val, nil
}

// releaseLock deletes the lock only when still owned, so an expired lock
// taken over by another producer is never released from here.
func (c *Redis) releaseLock(ctx context.Context, lockKey, token string) {
	const script = `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		end
		return 0
	`
	if err := c.client.Eval(ctx, script, []string{lockKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		c.logger.WarnContext(ctx, "cache lock release failed", "key", lockKey, "error", err)
	}
}

func lockToken() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("lock token entropy: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}

package locker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrNotObtained is returned when another holder owns the lock.
var ErrNotObtained = errors.New("lock not obtained")

// Lock is a held per-key lock.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker serializes work per key. Pipeline runs and workflow actions take
// the invoice's lock so no two transitions for the same invoice interleave.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// RedisLocker implements Locker on top of bsm/redislock.
type RedisLocker struct {
	client *redislock.Client
}

// NewRedisLocker builds a Locker backed by the given redis client.
func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{client: redislock.New(rdb)}
}

var _ Locker = (*RedisLocker)(nil)

func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	lock, err := l.client.Obtain(ctx, key, ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(100 * time.Millisecond),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrNotObtained, key)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	return redisLock{lock}, nil
}

type redisLock struct {
	l *redislock.Lock
}

func (r redisLock) Release(ctx context.Context) error {
	return r.l.Release(ctx)
}

// Noop is used when no redis is configured; the repository's row lock then
// remains the only serialization layer.
type Noop struct{}

func (Noop) Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	return noopLock{}, nil
}

type noopLock struct{}

func (noopLock) Release(ctx context.Context) error { return nil }

package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nutree/stock-service/internal/apperr"
	"github.com/nutree/stock-service/pkg/cache"
)

// Locker serializes ledger operations per stock record. Acquire blocks
// until the lock is held or the context deadline elapses; the returned
// function releases it.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

const lockRetryInterval = 50 * time.Millisecond

// RedisLocker leases per-record locks in redis so that serialization
// holds across service instances.
type RedisLocker struct {
	cache *cache.RedisClient
	ttl   time.Duration
}

func NewRedisLocker(c *cache.RedisClient, ttl time.Duration) *RedisLocker {
	return &RedisLocker{cache: c, ttl: ttl}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	lockKey := "lock:stock:" + key
	lockValue := uuid.New().String()

	for {
		ok, err := l.cache.AcquireLock(ctx, lockKey, lockValue, l.ttl)
		if err != nil {
			if ctx.Err() != nil {
				return nil, apperr.Wrap(apperr.KindTimeout, ctx.Err(), "deadline elapsed waiting for record lock "+key)
			}
			return nil, err
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, apperr.Wrap(apperr.KindTimeout, ctx.Err(), "deadline elapsed waiting for record lock "+key)
		case <-time.After(lockRetryInterval):
		}
	}

	release := func() {
		// Release must not inherit a cancelled request context.
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.cache.ReleaseLock(rctx, lockKey, lockValue)
	}
	return release, nil
}

// MemoryLocker keys a channel-based mutex per record id. Used by tests
// and by single-instance deployments without redis.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]chan struct{})}
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	ch, ok := l.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[key] = ch
	}
	l.mu.Unlock()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, apperr.Wrap(apperr.KindTimeout, ctx.Err(), "deadline elapsed waiting for record lock "+key)
	}
}

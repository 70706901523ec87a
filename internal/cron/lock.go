package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
)

const defaultLockTTL = 10 * time.Minute

// Lock coordinates exclusive cron runs across instances.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type heldLock interface {
	Release(ctx context.Context) error
}

// obtainer is the slice of *redislock.Client used by RedisLock.
type obtainer interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (heldLock, error)
}

type redisObtainer struct {
	client *redislock.Client
}

func (o redisObtainer) Obtain(ctx context.Context, key string, ttl time.Duration) (heldLock, error) {
	lock, err := o.client.Obtain(ctx, key, ttl, nil)
	if err != nil {
		return nil, err
	}
	return lock, nil
}

// RedisLock implements Lock with bsm/redislock. The TTL bounds how long a
// crashed holder can block other instances.
type RedisLock struct {
	locks obtainer
	key   string
	ttl   time.Duration

	mu   sync.Mutex
	held heldLock
}

// NewRedisLock constructs a Redis-backed lock.
func NewRedisLock(client *redislock.Client, key string, ttl time.Duration) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("redis lock client required")
	}
	return newRedisLock(redisObtainer{client: client}, key, ttl)
}

func newRedisLock(locks obtainer, key string, ttl time.Duration) (*RedisLock, error) {
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{locks: locks, key: key, ttl: ttl}, nil
}

// Acquire tries to own the lock for the configured TTL. A lock held
// elsewhere is reported as (false, nil).
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held != nil {
		return false, nil
	}
	held, err := l.locks.Obtain(ctx, l.key, l.ttl)
	if errors.Is(err, redislock.ErrNotObtained) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("obtain %s: %w", l.key, err)
	}
	l.held = held
	return true, nil
}

// Release frees the lock if this instance still holds it.
func (l *RedisLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		return nil
	}
	held := l.held
	l.held = nil
	if err := held.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}

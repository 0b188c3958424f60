// Package redis provides the Redis client and the distributed lock that
// serializes embedding rebuilds per user.
package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Ramsey-B/clover/pkg/metrics"
)

var (
	// ErrLockNotAcquired is returned when a lock cannot be acquired within the wait
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrLockNotHeld is returned when releasing a lock that expired or was taken over
	ErrLockNotHeld = errors.New("lock not held")
)

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// KeyLocker runs fn while holding an exclusive lock on key
type KeyLocker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// Lock is a held distributed lock
type Lock struct {
	client *Client
	key    string
	value  string
}

// Locker provides distributed locks backed by SET NX with a TTL
type Locker struct {
	client    *Client
	keyPrefix string
	ttl       time.Duration
	wait      time.Duration
}

// NewLocker creates a Locker. ttl bounds how long a crashed holder blocks
// others; wait bounds how long WithLock retries before giving up.
func NewLocker(client *Client, keyPrefix string, ttl, wait time.Duration) *Locker {
	if keyPrefix == "" {
		keyPrefix = "lock:"
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Locker{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		wait:      wait,
	}
}

// Acquire makes a single attempt to take the lock
func (l *Locker) Acquire(ctx context.Context, key string) (*Lock, error) {
	lockKey := l.keyPrefix + key
	lockValue := uuid.New().String()

	ok, err := l.client.rdb.SetNX(ctx, lockKey, lockValue, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}

	l.client.logger.WithContext(ctx).Debugf("Acquired lock: %s", lockKey)

	return &Lock{
		client: l.client,
		key:    lockKey,
		value:  lockValue,
	}, nil
}

// TryAcquire retries Acquire with capped exponential backoff until the
// configured wait elapses
func (l *Locker) TryAcquire(ctx context.Context, key string) (*Lock, error) {
	start := time.Now()
	defer func() { metrics.LockWaitDuration.Observe(time.Since(start).Seconds()) }()

	deadline := start.Add(l.wait)
	backoff := 10 * time.Millisecond

	for {
		lock, err := l.Acquire(ctx, key)
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, ErrLockNotAcquired) {
			return nil, err
		}
		if !time.Now().Before(deadline) {
			return nil, ErrLockNotAcquired
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > 500*time.Millisecond {
				backoff = 500 * time.Millisecond
			}
		}
	}
}

// Release deletes the lock only if this holder still owns it
func (lock *Lock) Release(ctx context.Context) error {
	result, err := releaseScript.Run(ctx, lock.client.rdb, []string{lock.key}, lock.value).Int64()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrLockNotHeld
	}

	lock.client.logger.WithContext(ctx).Debugf("Released lock: %s", lock.key)
	return nil
}

// WithLock executes fn while holding the lock for key
func (l *Locker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	lock, err := l.TryAcquire(ctx, key)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			l.client.logger.WithContext(ctx).WithError(err).Warnf("Failed to release lock %s", lock.key)
		}
	}()

	return fn(ctx)
}

// NoopLocker runs fn without any locking. Concurrent rebuilds for the same
// key resolve as last write wins.
type NoopLocker struct{}

func (NoopLocker) WithLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

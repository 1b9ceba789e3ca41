package scanworker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultLockKey is the Redis key worker replicas contend on.
	DefaultLockKey = "scanworker:cycle-lock"

	defaultLockTTL = 15 * time.Minute
)

// Lock coordinates exclusive worker cycles across replicas.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// lockStore defines the Redis operations the cycle lock relies on.
type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// CycleLock implements Lock with Redis SETNX and a TTL fuse so a crashed
// worker cannot wedge reconciliation forever.
type CycleLock struct {
	store lockStore
	key   string
	ttl   time.Duration
	owner string
}

// NewCycleLock constructs a Redis-backed cycle lock. An empty key selects
// DefaultLockKey and a non-positive TTL selects the default.
func NewCycleLock(store lockStore, key string, ttl time.Duration) (*CycleLock, error) {
	if store == nil {
		return nil, errors.New("redis store required for cycle lock")
	}
	if key == "" {
		key = DefaultLockKey
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &CycleLock{store: store, key: key, ttl: ttl}, nil
}

// Acquire tries to own the lock for the configured TTL.
func (l *CycleLock) Acquire(ctx context.Context) (bool, error) {
	owner := uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire cycle lock: %w", err)
	}
	if ok {
		l.owner = owner
	}
	return ok, nil
}

// Release frees the lock only while this instance still owns it. A TTL
// expiry followed by another replica's acquire leaves their lock intact.
func (l *CycleLock) Release(ctx context.Context) error {
	if l.owner == "" {
		return nil
	}
	value, err := l.store.Get(ctx, l.key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			l.owner = ""
			return nil
		}
		return fmt.Errorf("read cycle lock owner: %w", err)
	}
	if value != l.owner {
		l.owner = ""
		return nil
	}
	if err := l.store.Del(ctx, l.key); err != nil {
		return fmt.Errorf("release cycle lock: %w", err)
	}
	l.owner = ""
	return nil
}

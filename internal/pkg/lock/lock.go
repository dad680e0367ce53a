// Package lock provides a Redis lease so only one worker replica runs a
// scheduled sweep at a time.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "rewards:lock:"

// ErrNotAcquired is returned when another holder owns the lease.
var ErrNotAcquired = errors.New("lock held by another worker")

// release deletes the key only while it still carries our token.
var release = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out leases. A nil client makes every Acquire succeed locally,
// which is what a single replica without Redis needs.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
}

func New(client *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Locker{client: client, ttl: ttl}
}

// Lease is a held lock.
type Lease struct {
	client *redis.Client
	key    string
	token  string
}

// Acquire takes the lease for name or returns ErrNotAcquired.
func (l *Locker) Acquire(ctx context.Context, name string) (*Lease, error) {
	lease := &Lease{client: l.client, key: keyPrefix + name, token: uuid.NewString()}
	if l.client == nil {
		return lease, nil
	}

	ok, err := l.client.SetNX(ctx, lease.key, lease.token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAcquired
	}
	return lease, nil
}

// Release drops the lease. Releasing an expired or foreign lease is a no-op.
func (l *Lease) Release(ctx context.Context) error {
	if l == nil || l.client == nil {
		return nil
	}
	err := release.Run(ctx, l.client, []string{l.key}, l.token).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// releaseIfOwner deletes the key only while it still holds our token, so an
// expired lease never frees someone else's lock.
var releaseIfOwner = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

const defaultLockPoll = 100 * time.Millisecond

var (
	ErrLockUnavailable = errors.New("lock_unavailable")
	ErrLockHeld        = errors.New("lock_held")
)

// Locker hands out single-holder leases backed by redis SET NX.
type Locker struct {
	client *redis.Client
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client}
}

// Lease is a held lock. It expires on its own after the ttl it was taken
// with.
type Lease struct {
	client *redis.Client
	key    string
	token  string
}

func (l *Lease) Key() string { return l.key }

// Release frees the lease if it is still ours. Releasing twice is harmless.
func (l *Lease) Release(ctx context.Context) error {
	if l == nil || l.client == nil {
		return nil
	}
	return releaseIfOwner.Run(ctx, l.client, []string{l.key}, l.token).Err()
}

// TryAcquire takes the lock once. ErrLockHeld means someone else has it.
func (l *Locker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	switch {
	case l == nil || l.client == nil:
		return nil, ErrLockUnavailable
	case key == "":
		return nil, errors.New("lock key is empty")
	case ttl <= 0:
		return nil, errors.New("lock ttl must be positive")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &Lease{client: l.client, key: key, token: token}, nil
}

// Acquire retries TryAcquire every poll until it wins or ctx ends.
func (l *Locker) Acquire(ctx context.Context, key string, ttl, poll time.Duration) (*Lease, error) {
	if poll <= 0 {
		poll = defaultLockPoll
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		lease, err := l.TryAcquire(ctx, key, ttl)
		if !errors.Is(err, ErrLockHeld) {
			return lease, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

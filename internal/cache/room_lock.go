package cache

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockBusy is returned when a lock could not be taken within the retry budget
var ErrLockBusy = errors.New("lock busy")

// Locker hands out short-lived exclusive locks keyed by resource. Each lock
// carries an owner token and expires on its own, so a crashed holder only
// blocks the resource for the lock TTL.
type Locker interface {
	Acquire(ctx context.Context, key string) (*Lock, error)
	TryAcquire(ctx context.Context, key string) (*Lock, error)
}

// Lock is a held lock. Release is safe to call more than once.
type Lock struct {
	client *redis.Client
	key    string
	token  string
}

var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// Release deletes the lock if it is still owned by this holder
func (l *Lock) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}

// Key returns the locked resource key
func (l *Lock) Key() string { return l.key }

type redisLocker struct {
	client  *redis.Client
	ttl     time.Duration
	retries int
	backoff time.Duration
}

// NewLocker creates a Redis-backed locker. Acquire makes up to retries+1
// attempts, doubling the wait from backoff with jitter between attempts.
func NewLocker(client *redis.Client, ttl time.Duration, retries int, backoff time.Duration) Locker {
	return &redisLocker{
		client:  client,
		ttl:     ttl,
		retries: retries,
		backoff: backoff,
	}
}

// RoomLockKey is the lock key guarding a room and its membership set
func RoomLockKey(roomID string) string {
	return fmt.Sprintf("lock:room:%s", roomID)
}

// UserLockKey is the lock key guarding a user's "one active room" invariant
func UserLockKey(userID string) string {
	return fmt.Sprintf("lock:user:%s", userID)
}

func (l *redisLocker) TryAcquire(ctx context.Context, key string) (*Lock, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockBusy
	}
	return &Lock{client: l.client, key: key, token: token}, nil
}

func (l *redisLocker) Acquire(ctx context.Context, key string) (*Lock, error) {
	wait := l.backoff
	for attempt := 0; ; attempt++ {
		lock, err := l.TryAcquire(ctx, key)
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, ErrLockBusy) {
			return nil, err
		}
		if attempt >= l.retries {
			return nil, ErrLockBusy
		}

		jitter := time.Duration(0)
		if wait > 0 {
			jitter = time.Duration(rand.Int63n(int64(wait)/2 + 1))
		}
		timer := time.NewTimer(wait + jitter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ErrLockBusy
		case <-timer.C:
		}
		wait *= 2
	}
}

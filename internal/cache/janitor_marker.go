package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// JanitorMarker is the shared "last sweep" marker. Exactly one caller per
// interval wins Claim, across every process sharing the Redis instance.
type JanitorMarker interface {
	Claim(ctx context.Context, now time.Time, interval time.Duration) (bool, error)
	LastRun(ctx context.Context) (time.Time, error)
}

type janitorMarker struct {
	client *redis.Client
	key    string
}

// NewJanitorMarker creates the marker under the given key
func NewJanitorMarker(client *redis.Client) JanitorMarker {
	return &janitorMarker{
		client: client,
		key:    "janitor:last_run",
	}
}

func (m *janitorMarker) Claim(ctx context.Context, now time.Time, interval time.Duration) (bool, error) {
	return m.client.SetNX(ctx, m.key, strconv.FormatInt(now.UnixMilli(), 10), interval).Result()
}

func (m *janitorMarker) LastRun(ctx context.Context) (time.Time, error) {
	val, err := m.client.Get(ctx, m.key).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

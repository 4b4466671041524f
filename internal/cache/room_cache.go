package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RoomCodeCache maps join codes to room ids so join-by-code can skip the
// store's code index. Entries are hints: callers re-read the room by id and
// check the code before trusting one.
type RoomCodeCache interface {
	SetCode(ctx context.Context, code, roomID string) error
	GetRoomID(ctx context.Context, code string) (string, error)
	Delete(ctx context.Context, code string) error
}

type roomCodeCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRoomCodeCache creates a new room code cache
func NewRoomCodeCache(client *redis.Client, ttl time.Duration) RoomCodeCache {
	return &roomCodeCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *roomCodeCache) key(code string) string {
	return fmt.Sprintf("room:code:%s", code)
}

func (c *roomCodeCache) SetCode(ctx context.Context, code, roomID string) error {
	return c.client.Set(ctx, c.key(code), roomID, c.ttl).Err()
}

// GetRoomID returns "" on a miss
func (c *roomCodeCache) GetRoomID(ctx context.Context, code string) (string, error) {
	id, err := c.client.Get(ctx, c.key(code)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return id, err
}

func (c *roomCodeCache) Delete(ctx context.Context, code string) error {
	return c.client.Del(ctx, c.key(code)).Err()
}

package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"lobbyd/internal/model"

	"github.com/redis/go-redis/v9"
)

// PresenceCache holds one hash per user: status, roomId, lastSeenAt (unix ms).
// Entries expire after ttl unless refreshed. Bots are never stored.
type PresenceCache interface {
	Get(ctx context.Context, userID string) (*model.Presence, error)
	Set(ctx context.Context, p *model.Presence) error
	// Touch refreshes lastSeenAt and the TTL of an existing entry. It reports
	// false when there was no entry to refresh.
	Touch(ctx context.Context, userID string, now time.Time) (bool, error)
	// ClearRoom sets status and drops currentRoomId, but only while the entry
	// still points at roomID.
	ClearRoom(ctx context.Context, userID, roomID string, status model.PresenceStatus) (bool, error)
	// MarkStaleOffline flips every entry last seen before cutoff to offline.
	MarkStaleOffline(ctx context.Context, cutoff time.Time) (int, error)
}

var touchScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], 'lastSeenAt', ARGV[1])
if redis.call('HGET', KEYS[1], 'status') == 'offline' then
  local room = redis.call('HGET', KEYS[1], 'roomId')
  if room and room ~= '' then
    redis.call('HSET', KEYS[1], 'status', 'in_game')
  else
    redis.call('HSET', KEYS[1], 'status', 'online')
  end
end
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return 1
`)

var clearRoomScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'roomId')
if not cur or cur ~= ARGV[1] then
  return 0
end
redis.call('HSET', KEYS[1], 'roomId', '', 'status', ARGV[2])
return 1
`)

var markOfflineScript = redis.NewScript(`
local seen = tonumber(redis.call('HGET', KEYS[1], 'lastSeenAt') or '0')
local status = redis.call('HGET', KEYS[1], 'status')
if status and status ~= 'offline' and seen < tonumber(ARGV[1]) then
  redis.call('HSET', KEYS[1], 'status', 'offline')
  return 1
end
return 0
`)

type presenceCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPresenceCache creates a new presence cache
func NewPresenceCache(client *redis.Client, ttl time.Duration) PresenceCache {
	return &presenceCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *presenceCache) key(userID string) string {
	return fmt.Sprintf("presence:%s", userID)
}

func (c *presenceCache) Get(ctx context.Context, userID string) (*model.Presence, error) {
	fields, err := c.client.HGetAll(ctx, c.key(userID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	p := &model.Presence{
		UserID:        userID,
		Status:        model.PresenceStatus(fields["status"]),
		CurrentRoomID: fields["roomId"],
	}
	if ms, err := strconv.ParseInt(fields["lastSeenAt"], 10, 64); err == nil {
		p.LastSeenAt = time.UnixMilli(ms)
	}
	return p, nil
}

func (c *presenceCache) Set(ctx context.Context, p *model.Presence) error {
	if model.IsBot(p.UserID) {
		return nil
	}
	key := c.key(p.UserID)
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key,
		"status", string(p.Status),
		"roomId", p.CurrentRoomID,
		"lastSeenAt", strconv.FormatInt(p.LastSeenAt.UnixMilli(), 10),
	)
	pipe.PExpire(ctx, key, c.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *presenceCache) Touch(ctx context.Context, userID string, now time.Time) (bool, error) {
	if model.IsBot(userID) {
		return true, nil
	}
	n, err := touchScript.Run(ctx, c.client, []string{c.key(userID)},
		now.UnixMilli(), c.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (c *presenceCache) ClearRoom(ctx context.Context, userID, roomID string, status model.PresenceStatus) (bool, error) {
	if model.IsBot(userID) {
		return false, nil
	}
	n, err := clearRoomScript.Run(ctx, c.client, []string{c.key(userID)}, roomID, string(status)).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (c *presenceCache) MarkStaleOffline(ctx context.Context, cutoff time.Time) (int, error) {
	flipped := 0
	iter := c.client.Scan(ctx, 0, "presence:*", 200).Iterator()
	for iter.Next(ctx) {
		n, err := markOfflineScript.Run(ctx, c.client, []string{iter.Val()}, cutoff.UnixMilli()).Int()
		if err != nil {
			return flipped, err
		}
		flipped += n
	}
	return flipped, iter.Err()
}

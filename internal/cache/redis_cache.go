package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/LeventeLantos/loyalty-outreach/internal/model"
)

const keyPrefix = "loyalty:"

func sentKey(contactID string, ch model.Channel) string {
	return fmt.Sprintf("%ssent:%s:%s", keyPrefix, ch, contactID)
}

// lockKey is scoped per spreadsheet tab.
func lockKey(scope string) string { return keyPrefix + "lock:" + scope }

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (c *RedisCache) StoreSent(ctx context.Context, contactID string, ch model.Channel, remoteMessageID string, sentAt time.Time) error {
	val := SentRecord{
		RemoteMessageID: remoteMessageID,
		SentAt:          sentAt.UTC(),
	}

	b, err := json.Marshal(val)
	if err != nil {
		return err
	}

	return c.rdb.Set(ctx, sentKey(contactID, ch), b, c.ttl).Err()
}

func (c *RedisCache) LookupSent(ctx context.Context, contactID string, ch model.Channel) (SentRecord, bool, error) {
	raw, err := c.rdb.Get(ctx, sentKey(contactID, ch)).Bytes()
	if errors.Is(err, redis.Nil) {
		return SentRecord{}, false, nil
	}
	if err != nil {
		return SentRecord{}, false, err
	}

	var rec SentRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return SentRecord{}, false, fmt.Errorf("decode sent record: %w", err)
	}
	return rec, true, nil
}

// RedisLock is a SET NX lock with a TTL so a crashed run cannot hold it forever.
type RedisLock struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

func NewRedisLock(rdb *redis.Client, scope string, ttl time.Duration) *RedisLock {
	return &RedisLock{rdb: rdb, key: lockKey(scope), ttl: ttl}
}

func (l *RedisLock) Acquire(ctx context.Context, owner string) error {
	ok, err := l.rdb.SetNX(ctx, l.key, owner, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return ErrLockHeld
	}
	return nil
}

// releaseScript deletes the key only if the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (l *RedisLock) Release(ctx context.Context, owner string) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key}, owner).Err(); err != nil {
		return fmt.Errorf("release run lock: %w", err)
	}
	return nil
}

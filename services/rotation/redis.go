package rotation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisKeyPrefix = "rotation:"

// RedisMemory keeps rotation records in a sorted set per user, scored by the
// offer time in milliseconds, so every replica sees the same history.
type RedisMemory struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisMemory(client *redis.Client, ttl time.Duration) *RedisMemory {
	return &RedisMemory{client: client, ttl: ttl, now: time.Now}
}

// WithClock replaces the time source, for tests.
func (m *RedisMemory) WithClock(now func() time.Time) *RedisMemory {
	m.now = now
	return m
}

func (m *RedisMemory) key(userKey string) string {
	return redisKeyPrefix + userKey
}

func (m *RedisMemory) cutoff() int64 {
	return m.now().Add(-m.ttl).UnixMilli()
}

func (m *RedisMemory) Recent(ctx context.Context, userKey string) ([]Record, error) {
	zs, err := m.client.ZRangeByScoreWithScores(ctx, m.key(userKey), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(m.cutoff(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("rotation recent: %w", err)
	}
	records := make([]Record, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		records = append(records, Record{SlotKey: member, OfferedAt: time.UnixMilli(int64(z.Score))})
	}
	return records, nil
}

func (m *RedisMemory) Record(ctx context.Context, userKey, slotKey string) error {
	key := m.key(userKey)
	score := float64(m.now().UnixMilli())
	if err := m.client.ZAdd(ctx, key, &redis.Z{Score: score, Member: slotKey}).Err(); err != nil {
		return fmt.Errorf("rotation record: %w", err)
	}
	if err := m.client.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(m.cutoff(), 10)).Err(); err != nil {
		return fmt.Errorf("rotation prune: %w", err)
	}
	return m.client.Expire(ctx, key, m.ttl).Err()
}

func (m *RedisMemory) Reset(ctx context.Context, userKey string) error {
	if err := m.client.Del(ctx, m.key(userKey)).Err(); err != nil {
		return fmt.Errorf("rotation reset: %w", err)
	}
	return nil
}

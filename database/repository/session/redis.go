package sessionRepo

import (
	"context"
	"encoding/json"
	"time"

	"schedulebot/models"

	"github.com/go-redis/redis/v8"
)

const sessionPrefix = "session:"

// RedisSessionStore keeps sessions as JSON strings that expire after ttl of
// inactivity. A zero ttl keeps them forever.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, ttl: ttl, now: time.Now}
}

func (s *RedisSessionStore) Load(ctx context.Context, userKey string) (*models.Session, error) {
	data, err := s.client.Get(ctx, sessionPrefix+userKey).Result()
	if err == redis.Nil {
		return models.NewSession(userKey), nil
	}
	if err != nil {
		return nil, err
	}
	var r sessionRecord
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return models.NewSession(userKey), nil
	}
	r.UserKey = userKey
	return fromRecord(r), nil
}

func (s *RedisSessionStore) Save(ctx context.Context, userKey string, session *models.Session) error {
	r, err := toRecord(userKey, session, s.now())
	if err != nil {
		return err
	}
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, sessionPrefix+userKey, b, s.ttl).Err()
}

package presence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultTTL = time.Hour

// RedisStore keeps a "user:online" marker per user with an expiry.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &RedisStore{
		client: client,
		ttl:    ttl,
		prefix: "chatrelay:online:",
	}
}

func (s *RedisStore) key(userId string) string {
	return s.prefix + userId
}

func (s *RedisStore) SetOnline(ctx context.Context, userId string) error {
	return s.client.Set(ctx, s.key(userId), "true", s.ttl).Err()
}

func (s *RedisStore) SetOffline(ctx context.Context, userId string) error {
	return s.client.Del(ctx, s.key(userId)).Err()
}

func (s *RedisStore) IsOnline(ctx context.Context, userId string) (bool, error) {
	value, err := s.client.Get(ctx, s.key(userId)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return value == "true", nil
}

// Lookup checks several users with a single round trip.
func (s *RedisStore) Lookup(ctx context.Context, userIds []string) (map[string]bool, error) {
	online := make(map[string]bool, len(userIds))
	if len(userIds) == 0 {
		return online, nil
	}

	keys := make([]string, len(userIds))
	for i, userId := range userIds {
		keys[i] = s.key(userId)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	for i, userId := range userIds {
		value, _ := values[i].(string)
		online[userId] = value == "true"
	}

	return online, nil
}

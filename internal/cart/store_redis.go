package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"MiniCart/pkg/kit"
)

// RedisStore keeps each cart under cart:<userID> as one JSON value, so a
// Put replaces the item list and the cached total atomically.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, userID string) (Record, bool, error) {
	data, err := s.client.Get(ctx, redisKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("redis get failed: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		// A value that does not unmarshal is record corruption, not an
		// outage; retrying it cannot help.
		return Record{}, false, kit.Permanent(fmt.Errorf("%w: unmarshal cart record failed: %v", ErrMalformedCart, err))
	}
	return rec, true, nil
}

func (s *RedisStore) Put(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal cart record failed: %w", err)
	}

	if err := s.client.Set(ctx, redisKey(rec.UserID), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, redisKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func redisKey(userID string) string {
	return fmt.Sprintf("cart:%s", userID)
}

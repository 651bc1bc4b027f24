package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/motioncourse/web/internal/models"
	"github.com/motioncourse/web/internal/session"
)

const redisKeyPrefix = "motioncourse:session:"

// RedisSessionStore keeps session identities in Redis with a per-key TTL.
type RedisSessionStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisSessionStore constructs a session store on top of a Redis client.
func NewRedisSessionStore(client redis.Cmdable, ttl time.Duration) *RedisSessionStore {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &RedisSessionStore{client: client, ttl: ttl}
}

// ConnectRedis parses redisURL, opens a client and verifies it answers.
func ConnectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Save replaces the identity for id and restarts its TTL.
func (s *RedisSessionStore) Save(ctx context.Context, id string, user models.User) error {
	payload, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode session user: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+id, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("store session user: %w", err)
	}
	return nil
}

// Load returns the identity stored for id.
func (s *RedisSessionStore) Load(ctx context.Context, id string) (models.User, error) {
	payload, err := s.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.User{}, session.ErrNotFound
		}
		return models.User{}, fmt.Errorf("load session user: %w", err)
	}

	var user models.User
	if err := json.Unmarshal(payload, &user); err != nil {
		return models.User{}, fmt.Errorf("decode session user: %w", err)
	}
	return user, nil
}

// Delete removes the identity stored for id.
func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("delete session user: %w", err)
	}
	return nil
}

// Ping reports whether Redis answers.
func (s *RedisSessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

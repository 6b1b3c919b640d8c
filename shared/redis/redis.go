package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	RedisURL string
}

type Redis struct {
	conn *redis.Client
}

func NewRedis(cfg RedisConfig) (*Redis, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return &Redis{conn: redis.NewClient(opts)}, nil
}

// NewRedisWithClient creates a Redis instance with an existing client.
// This is useful for testing.
func NewRedisWithClient(client *redis.Client) *Redis {
	return &Redis{conn: client}
}

func (r *Redis) HealthCheck(ctx context.Context) error {
	return r.conn.Ping(ctx).Err()
}

func (r *Redis) GetClient() *redis.Client {
	return r.conn
}

func (r *Redis) Close() error {
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

// Get retrieves a value by key
func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	return r.conn.Get(ctx, key).Result()
}

// Set sets a key-value pair with expiration time. Zero expiration means no TTL.
func (r *Redis) Set(ctx context.Context, key, value string, expiration time.Duration) error {
	return r.conn.Set(ctx, key, value, expiration).Err()
}

// HGet retrieves a hash field
func (r *Redis) HGet(ctx context.Context, key, field string) (string, error) {
	return r.conn.HGet(ctx, key, field).Result()
}

// HSet sets a hash field
func (r *Redis) HSet(ctx context.Context, key, field, value string) error {
	return r.conn.HSet(ctx, key, field, value).Err()
}

// ExpireNX sets a TTL on a key only when the key has none
func (r *Redis) ExpireNX(ctx context.Context, key string, expiration time.Duration) error {
	return r.conn.ExpireNX(ctx, key, expiration).Err()
}

// Unlink removes keys asynchronously on the server side
func (r *Redis) Unlink(ctx context.Context, keys ...string) error {
	return r.conn.Unlink(ctx, keys...).Err()
}

// Delete removes keys
func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	return r.conn.Del(ctx, keys...).Err()
}

// Exists checks if keys exist
func (r *Redis) Exists(ctx context.Context, keys ...string) (int64, error) {
	return r.conn.Exists(ctx, keys...).Result()
}

// IsNil reports whether an error is the redis nil-reply sentinel
func IsNil(err error) bool {
	return err == redis.Nil
}

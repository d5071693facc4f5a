package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisPrefix = "panel:"

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

// Client exposes the connection so other components (the offline cache)
// can share it.
func (r *RedisStore) Client() *redis.Client {
	return r.client
}

func (r *RedisStore) get(ctx context.Context, key string) (string, error) {
	result, err := r.client.Get(ctx, redisPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return result, err
}

func (r *RedisStore) DeviceHost(ctx context.Context) (string, error) {
	return r.get(ctx, KeyDeviceHost)
}

func (r *RedisStore) SetDeviceHost(ctx context.Context, host string) error {
	return r.client.Set(ctx, redisPrefix+KeyDeviceHost, host, 0).Err()
}

func (r *RedisStore) Theme(ctx context.Context) (string, error) {
	return r.get(ctx, KeyTheme)
}

func (r *RedisStore) SetTheme(ctx context.Context, theme string) error {
	return r.client.Set(ctx, redisPrefix+KeyTheme, theme, 0).Err()
}

func (r *RedisStore) Preferences(ctx context.Context) (Preferences, error) {
	raw, err := r.get(ctx, KeyPreferences)
	if err != nil {
		return Preferences{}, err
	}
	return decodePreferences(raw)
}

func (r *RedisStore) SetPreferences(ctx context.Context, prefs Preferences) error {
	raw, err := json.Marshal(prefs)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, redisPrefix+KeyPreferences, raw, 0).Err()
}

func (r *RedisStore) IsProcessed(ctx context.Context, msgID string) (bool, error) {
	count, err := r.client.Exists(ctx, redisPrefix+"processed:"+msgID).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *RedisStore) MarkProcessed(ctx context.Context, msgID string, ttl time.Duration) error {
	return r.client.Set(ctx, redisPrefix+"processed:"+msgID, "1", ttl).Err()
}

func (r *RedisStore) MarkProcessedIfNew(ctx context.Context, msgID string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, redisPrefix+"processed:"+msgID, "1", ttl).Result()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

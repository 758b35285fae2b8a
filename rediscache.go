package concursoprep

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache keeps search results in Redis instead of the SQLite table.
// Entries expire on their own after the TTL.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

type redisEntry struct {
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// NewRedisCache connects to a redis:// URL (or bare host:port) and pings it
func NewRedisCache(ctx context.Context, redisURL string) (*RedisCache, error) {
	var opts *redis.Options
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		parsed, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: redisURL}
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &RedisCache{client: client, prefix: "search:", ttl: SearchCacheTTL}, nil
}

// GetSearch implements SearchCache
func (c *RedisCache) GetSearch(ctx context.Context, key string) (string, time.Time, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", time.Time{}, false, nil
	}
	if err != nil {
		return "", time.Time{}, false, err
	}
	var entry redisEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return "", time.Time{}, false, fmt.Errorf("failed to decode cached search: %w", err)
	}
	return entry.Content, entry.CreatedAt, true, nil
}

// PutSearch implements SearchCache
func (c *RedisCache) PutSearch(ctx context.Context, key, content string) error {
	data, err := json.Marshal(redisEntry{Content: content, CreatedAt: time.Now()})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+key, data, c.ttl).Err()
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}

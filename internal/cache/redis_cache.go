package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"scriptroom/api/internal/document"
)

// RedisCache keeps one snapshot key per owner in a local Redis.
type RedisCache struct {
	client  *redis.Client
	timeout time.Duration
}

// NewRedisCache parses redisURL and verifies the server is reachable.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisCacheWithClient(client), nil
}

func NewRedisCacheWithClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, timeout: 2 * time.Second}
}

// LoadAll returns the owner's snapshot; a missing key, a Redis error, or a
// malformed payload all read as an empty collection.
func (c *RedisCache) LoadAll(ctx context.Context, ownerID string) []document.Project {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := c.client.Get(ctx, snapshotKey(ownerID)).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		log.Printf("cache: read snapshot for %s: %v", ownerID, err)
		return nil
	}
	return decodeSnapshot(ownerID, payload)
}

// SaveAll replaces the snapshot with a single SET, so readers never observe
// a partial collection.
func (c *RedisCache) SaveAll(ctx context.Context, ownerID string, projects []document.Project) {
	payload, err := encodeSnapshot(projects)
	if err != nil {
		log.Printf("cache: encode snapshot for %s: %v", ownerID, err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.client.Set(ctx, snapshotKey(ownerID), payload, 0).Err(); err != nil {
		log.Printf("cache: write snapshot for %s: %v", ownerID, err)
	}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

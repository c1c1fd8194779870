// Package cache provides the Redis read-through cache for recommendations.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"example.com/recommendation/internal/domain"
	"example.com/recommendation/internal/observability"
)

const keyPrefix = "recommendation:activity:"

// Connect initializes a Redis client from URL or host:port input.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, parseErr := redis.ParseURL(redisURL)
		if parseErr != nil {
			return nil, fmt.Errorf("parse redis url: %w", parseErr)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisRecommendationCache stores recommendations as JSON keyed by activity id.
type RedisRecommendationCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisRecommendationCache creates the cache adapter.
func NewRedisRecommendationCache(client redis.Cmdable, ttl time.Duration) *RedisRecommendationCache {
	return &RedisRecommendationCache{client: client, ttl: ttl}
}

// Get returns the cached recommendation, or nil on a miss.
func (c *RedisRecommendationCache) Get(ctx context.Context, activityID string) (*domain.Recommendation, error) {
	raw, err := c.client.Get(ctx, Key(activityID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			observability.RecordCacheLookup("miss")
			return nil, nil
		}
		observability.RecordCacheLookup("error")
		return nil, err
	}
	var out domain.Recommendation
	if err := json.Unmarshal(raw, &out); err != nil {
		observability.RecordCacheLookup("error")
		return nil, err
	}
	observability.RecordCacheLookup("hit")
	return &out, nil
}

// Put stores rec under its activity id.
func (c *RedisRecommendationCache) Put(ctx context.Context, rec domain.Recommendation) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, Key(rec.ActivityID), raw, c.ttl).Err()
}

// Invalidate drops the cached recommendation for an activity.
func (c *RedisRecommendationCache) Invalidate(ctx context.Context, activityID string) error {
	return c.client.Del(ctx, Key(activityID)).Err()
}

// Key returns the Redis key for an activity.
func Key(activityID string) string {
	return keyPrefix + activityID
}

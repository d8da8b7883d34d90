package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheRepository wraps Redis for slot-availability read caching, replacing
// the teacher's stubbed Set/Get pair with real operations.
type CacheRepository struct {
	client *redis.Client
}

func NewCacheRepository(client *redis.Client) *CacheRepository {
	return &CacheRepository{client: client}
}

// Set marshals value as JSON and stores it under key with the given TTL.
func (r *CacheRepository) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("error marshaling cache value for %s: %w", key, err)
	}
	if err := r.client.Set(ctx, key, data, expiration).Err(); err != nil {
		return fmt.Errorf("error setting cache key %s: %w", key, err)
	}
	return nil
}

// Get unmarshals the JSON value stored under key into dest. Returns
// (false, nil) on cache miss.
func (r *CacheRepository) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("error getting cache key %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("error unmarshaling cache value for %s: %w", key, err)
	}
	return true, nil
}

// Invalidate deletes a cached key. The Scheduler does not call it; cached
// slot listings expire by TTL.
func (r *CacheRepository) Invalidate(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("error invalidating cache key %s: %w", key, err)
	}
	return nil
}

// SlotAvailabilityKey builds the cache key for a studio's slot-availability
// listing over a day: one key per studio and UTC day.
func SlotAvailabilityKey(studioID string, day time.Time) string {
	return fmt.Sprintf("slots:availability:%s:%s", studioID, day.UTC().Format("2006-01-02"))
}

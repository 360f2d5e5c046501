package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"parkpass/internal/config"
	"parkpass/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisCacheRepository stores browse-only availability snapshots and rate
// limit counters. The authoritative availability check always runs against
// the store inside the reservation transaction.
type RedisCacheRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient builds a client from config.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisCacheRepository(client *redis.Client, ttl time.Duration) *RedisCacheRepository {
	if ttl <= 0 {
		ttl = time.Duration(models.DefaultAvailabilityCacheTTL) * time.Second
	}
	return &RedisCacheRepository{
		client: client,
		ttl:    ttl,
	}
}

func availabilityKey(lotID int64, vehicleClass string) string {
	return fmt.Sprintf("availability:%d:%s", lotID, vehicleClass)
}

func (r *RedisCacheRepository) GetAvailability(ctx context.Context, lotID int64, vehicleClass string) ([]*models.SlotAvailability, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, availabilityKey(lotID, vehicleClass)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get availability from redis: %w", err)
	}

	var grid []*models.SlotAvailability
	if err := json.Unmarshal([]byte(val), &grid); err != nil {
		return nil, fmt.Errorf("failed to unmarshal availability: %w", err)
	}
	return grid, nil
}

func (r *RedisCacheRepository) SetAvailability(ctx context.Context, lotID int64, vehicleClass string, grid []*models.SlotAvailability) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(grid)
	if err != nil {
		return fmt.Errorf("failed to marshal availability: %w", err)
	}

	if err := r.client.Set(ctx, availabilityKey(lotID, vehicleClass), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set availability in redis: %w", err)
	}
	return nil
}

// InvalidateAvailability drops every cached class grid for the lot. Called
// after any write touching the lot's bookings.
func (r *RedisCacheRepository) InvalidateAvailability(ctx context.Context, lotID int64) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}

	pattern := fmt.Sprintf("availability:%d:*", lotID)
	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete availability key: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan availability keys: %w", err)
	}
	return nil
}

func (r *RedisCacheRepository) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	key := fmt.Sprintf("rate_limit:%d", userID)
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count == 1 {
		r.client.Expire(ctx, key, window)
	}

	return count <= int64(limit), nil
}

// Ping checks the Redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}

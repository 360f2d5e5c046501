package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"parkpass/internal/models"
)

// MemoryCacheRepository is the in-process fallback used when Redis is down
// or not configured.
type MemoryCacheRepository struct {
	grids      sync.Map
	rateLimits sync.Map
	ttl        time.Duration
}

func NewMemoryCacheRepository(ttl time.Duration) *MemoryCacheRepository {
	if ttl <= 0 {
		ttl = time.Duration(models.DefaultAvailabilityCacheTTL) * time.Second
	}
	return &MemoryCacheRepository{
		ttl: ttl,
	}
}

type gridEntry struct {
	grid      []*models.SlotAvailability
	lotID     int64
	expiresAt time.Time
}

func (r *MemoryCacheRepository) GetAvailability(ctx context.Context, lotID int64, vehicleClass string) ([]*models.SlotAvailability, error) {
	val, ok := r.grids.Load(availabilityKey(lotID, vehicleClass))
	if !ok {
		return nil, nil
	}
	entry := val.(*gridEntry)
	if time.Now().After(entry.expiresAt) {
		r.grids.Delete(availabilityKey(lotID, vehicleClass))
		return nil, nil
	}
	return entry.grid, nil
}

func (r *MemoryCacheRepository) SetAvailability(ctx context.Context, lotID int64, vehicleClass string, grid []*models.SlotAvailability) error {
	r.grids.Store(availabilityKey(lotID, vehicleClass), &gridEntry{
		grid:      grid,
		lotID:     lotID,
		expiresAt: time.Now().Add(r.ttl),
	})
	return nil
}

func (r *MemoryCacheRepository) InvalidateAvailability(ctx context.Context, lotID int64) error {
	prefix := fmt.Sprintf("availability:%d:", lotID)
	r.grids.Range(func(key, val any) bool {
		if k, ok := key.(string); ok && len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			r.grids.Delete(key)
		}
		return true
	})
	return nil
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func (r *MemoryCacheRepository) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	val, ok := r.rateLimits.Load(userID)

	var entry *rateLimitEntry
	if !ok {
		entry = &rateLimitEntry{
			count:     1,
			expiresAt: now.Add(window),
		}
	} else {
		entry = val.(*rateLimitEntry)
		if now.After(entry.expiresAt) {
			entry.count = 1
			entry.expiresAt = now.Add(window)
		} else {
			entry.count++
		}
	}

	r.rateLimits.Store(userID, entry)
	return entry.count <= limit, nil
}

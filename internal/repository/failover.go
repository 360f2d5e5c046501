package repository

import (
	"context"
	"sync/atomic"
	"time"

	"parkpass/internal/domain"
	"parkpass/internal/models"

	"github.com/rs/zerolog"
)

// FailoverCacheRepository serves from the primary (Redis) and degrades to the
// in-memory fallback when the primary errors, probing for recovery once a
// minute.
type FailoverCacheRepository struct {
	primary   domain.CacheRepository
	fallback  domain.CacheRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverCacheRepository(primary, fallback domain.CacheRepository, logger *zerolog.Logger) *FailoverCacheRepository {
	return &FailoverCacheRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverCacheRepository) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary cache repository failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverCacheRepository) shouldProbe() bool {
	return r.isDown.Load() && time.Since(time.Unix(0, r.lastCheck.Load())) > time.Minute
}

func (r *FailoverCacheRepository) GetAvailability(ctx context.Context, lotID int64, vehicleClass string) ([]*models.SlotAvailability, error) {
	if !r.isDown.Load() {
		grid, err := r.primary.GetAvailability(ctx, lotID, vehicleClass)
		if err == nil {
			return grid, nil
		}
		r.markDown(err)
	}

	if r.shouldProbe() {
		grid, err := r.primary.GetAvailability(ctx, lotID, vehicleClass)
		if err == nil {
			r.isDown.Store(false)
			return grid, nil
		}
		r.lastCheck.Store(time.Now().UnixNano())
	}

	return r.fallback.GetAvailability(ctx, lotID, vehicleClass)
}

func (r *FailoverCacheRepository) SetAvailability(ctx context.Context, lotID int64, vehicleClass string, grid []*models.SlotAvailability) error {
	if !r.isDown.Load() {
		err := r.primary.SetAvailability(ctx, lotID, vehicleClass, grid)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.SetAvailability(ctx, lotID, vehicleClass, grid)
}

func (r *FailoverCacheRepository) InvalidateAvailability(ctx context.Context, lotID int64) error {
	// Invalidation goes to both tiers; a stale fallback snapshot must not
	// outlive the primary's.
	var primaryErr error
	if !r.isDown.Load() {
		primaryErr = r.primary.InvalidateAvailability(ctx, lotID)
		if primaryErr != nil {
			r.markDown(primaryErr)
		}
	}

	return r.fallback.InvalidateAvailability(ctx, lotID)
}

func (r *FailoverCacheRepository) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	if !r.isDown.Load() {
		allowed, err := r.primary.CheckRateLimit(ctx, userID, limit, window)
		if err == nil {
			return allowed, nil
		}
		r.markDown(err)
	}

	return r.fallback.CheckRateLimit(ctx, userID, limit, window)
}

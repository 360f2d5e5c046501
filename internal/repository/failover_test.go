package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"parkpass/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyCache fails every call until healed.
type flakyCache struct {
	inner  *MemoryCacheRepository
	broken bool
	calls  int
}

func (f *flakyCache) GetAvailability(ctx context.Context, lotID int64, vehicleClass string) ([]*models.SlotAvailability, error) {
	f.calls++
	if f.broken {
		return nil, errors.New("connection refused")
	}
	return f.inner.GetAvailability(ctx, lotID, vehicleClass)
}

func (f *flakyCache) SetAvailability(ctx context.Context, lotID int64, vehicleClass string, grid []*models.SlotAvailability) error {
	f.calls++
	if f.broken {
		return errors.New("connection refused")
	}
	return f.inner.SetAvailability(ctx, lotID, vehicleClass, grid)
}

func (f *flakyCache) InvalidateAvailability(ctx context.Context, lotID int64) error {
	f.calls++
	if f.broken {
		return errors.New("connection refused")
	}
	return f.inner.InvalidateAvailability(ctx, lotID)
}

func (f *flakyCache) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	f.calls++
	if f.broken {
		return false, errors.New("connection refused")
	}
	return f.inner.CheckRateLimit(ctx, userID, limit, window)
}

func newFailoverUnderTest(broken bool) (*FailoverCacheRepository, *flakyCache, *MemoryCacheRepository) {
	primary := &flakyCache{inner: NewMemoryCacheRepository(time.Minute), broken: broken}
	fallback := NewMemoryCacheRepository(time.Minute)
	logger := zerolog.Nop()
	return NewFailoverCacheRepository(primary, fallback, &logger), primary, fallback
}

func TestFailover_UsesPrimaryWhenHealthy(t *testing.T) {
	repo, primary, _ := newFailoverUnderTest(false)
	ctx := context.Background()

	require.NoError(t, repo.SetAvailability(ctx, 1, "standard", sampleGrid(1)))
	got, err := repo.GetAvailability(ctx, 1, "standard")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Equal(t, 2, primary.calls)
}

func TestFailover_FallsBackOnError(t *testing.T) {
	repo, _, fallback := newFailoverUnderTest(true)
	ctx := context.Background()

	require.NoError(t, repo.SetAvailability(ctx, 1, "standard", sampleGrid(1)))

	// The write landed in the fallback tier.
	got, err := fallback.GetAvailability(ctx, 1, "standard")
	require.NoError(t, err)
	assert.NotNil(t, got)

	got, err = repo.GetAvailability(ctx, 1, "standard")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestFailover_SkipsDownPrimary(t *testing.T) {
	repo, primary, _ := newFailoverUnderTest(true)
	ctx := context.Background()

	_, _ = repo.GetAvailability(ctx, 1, "standard")
	callsAfterFirst := primary.calls

	// While marked down and inside the probe window, the primary is left alone.
	_, _ = repo.GetAvailability(ctx, 1, "standard")
	_, _ = repo.GetAvailability(ctx, 1, "standard")
	assert.Equal(t, callsAfterFirst, primary.calls)
}

func TestFailover_InvalidateHitsBothTiers(t *testing.T) {
	repo, primary, fallback := newFailoverUnderTest(false)
	ctx := context.Background()

	require.NoError(t, primary.inner.SetAvailability(ctx, 1, "standard", sampleGrid(1)))
	require.NoError(t, fallback.SetAvailability(ctx, 1, "standard", sampleGrid(1)))

	require.NoError(t, repo.InvalidateAvailability(ctx, 1))

	got, err := primary.inner.GetAvailability(ctx, 1, "standard")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = fallback.GetAvailability(ctx, 1, "standard")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFailover_RateLimitFallsBack(t *testing.T) {
	repo, _, _ := newFailoverUnderTest(true)
	ctx := context.Background()

	allowed, err := repo.CheckRateLimit(ctx, 7, 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = repo.CheckRateLimit(ctx, 7, 1, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
}

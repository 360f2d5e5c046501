package service

import (
	"context"
	"testing"
	"time"

	"parkpass/internal/clock"
	"parkpass/internal/database"
	"parkpass/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) ReserveBooking(ctx context.Context, req database.ReserveRequest) (*models.Booking, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}
func (m *mockStore) CancelBooking(ctx context.Context, bookingID, userID int64, policy models.BookingPolicy) (*models.Booking, int64, error) {
	args := m.Called(ctx, bookingID, userID, policy)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).(*models.Booking), args.Get(1).(int64), args.Error(2)
}
func (m *mockStore) CheckoutBooking(ctx context.Context, bookingID, userID int64, policy models.BookingPolicy) (*models.Booking, int64, error) {
	args := m.Called(ctx, bookingID, userID, policy)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).(*models.Booking), args.Get(1).(int64), args.Error(2)
}
func (m *mockStore) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}
func (m *mockStore) GetUserBookings(ctx context.Context, userID int64) ([]*models.Booking, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}
func (m *mockStore) GetLotBookings(ctx context.Context, lotID int64, from, to time.Time) ([]*models.Booking, error) {
	args := m.Called(ctx, lotID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}
func (m *mockStore) Credit(ctx context.Context, userID, amount int64, reason string, bookingID *int64) (*models.LedgerEntry, error) {
	args := m.Called(ctx, userID, amount, reason, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LedgerEntry), args.Error(1)
}
func (m *mockStore) Debit(ctx context.Context, userID, amount int64, reason string, bookingID *int64) (*models.LedgerEntry, error) {
	args := m.Called(ctx, userID, amount, reason, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LedgerEntry), args.Error(1)
}
func (m *mockStore) Balance(ctx context.Context, userID int64) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}
func (m *mockStore) RecomputeBalance(ctx context.Context, userID int64) (int64, int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Get(1).(int64), args.Error(2)
}
func (m *mockStore) LedgerEntries(ctx context.Context, userID int64) ([]*models.LedgerEntry, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.LedgerEntry), args.Error(1)
}
func (m *mockStore) GetLot(ctx context.Context, id int64) (*models.Lot, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Lot), args.Error(1)
}
func (m *mockStore) GetSlot(ctx context.Context, id int64) (*models.Slot, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Slot), args.Error(1)
}
func (m *mockStore) FreeSlots(ctx context.Context, lotID int64, vehicleClass string, start, end time.Time) ([]*models.Slot, error) {
	args := m.Called(ctx, lotID, vehicleClass, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Slot), args.Error(1)
}
func (m *mockStore) AvailabilityGrid(ctx context.Context, lotID int64, vehicleClass string, startDate time.Time, days int) ([]*models.SlotAvailability, error) {
	args := m.Called(ctx, lotID, vehicleClass, startDate, days)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.SlotAvailability), args.Error(1)
}
func (m *mockStore) CreateRefundRequest(ctx context.Context, bookingID, userID int64, reason string) (*models.RefundRequest, error) {
	args := m.Called(ctx, bookingID, userID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RefundRequest), args.Error(1)
}
func (m *mockStore) ResolveRefundRequest(ctx context.Context, requestID, adminID int64, approve bool, refundAmount int64, response string) (*models.RefundRequest, error) {
	args := m.Called(ctx, requestID, adminID, approve, refundAmount, response)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RefundRequest), args.Error(1)
}
func (m *mockStore) GetRefundRequest(ctx context.Context, id int64) (*models.RefundRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RefundRequest), args.Error(1)
}
func (m *mockStore) PendingRefundRequests(ctx context.Context, adminID int64) ([]*models.RefundRequest, error) {
	args := m.Called(ctx, adminID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.RefundRequest), args.Error(1)
}
func (m *mockStore) CreateUser(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}
func (m *mockStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type mockCache struct {
	mock.Mock
}

func (m *mockCache) GetAvailability(ctx context.Context, lotID int64, vehicleClass string) ([]*models.SlotAvailability, error) {
	args := m.Called(ctx, lotID, vehicleClass)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.SlotAvailability), args.Error(1)
}
func (m *mockCache) SetAvailability(ctx context.Context, lotID int64, vehicleClass string, grid []*models.SlotAvailability) error {
	return m.Called(ctx, lotID, vehicleClass, grid).Error(0)
}
func (m *mockCache) InvalidateAvailability(ctx context.Context, lotID int64) error {
	return m.Called(ctx, lotID).Error(0)
}
func (m *mockCache) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, userID, limit, window)
	return args.Bool(0), args.Error(1)
}

func newTestBookingService(store *mockStore, cache *mockCache) *BookingService {
	logger := zerolog.Nop()
	svc := NewBookingService(store, cache, nil, nil, models.DefaultBookingPolicy(), 90, &logger)
	svc.SetClock(clock.NewFixed(time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)))
	return svc
}

func TestValidateWindow(t *testing.T) {
	svc := newTestBookingService(&mockStore{}, nil)
	now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

	assert.NoError(t, svc.ValidateWindow(now.Add(time.Hour), now.Add(2*time.Hour)))

	// start must precede end
	assert.ErrorIs(t, svc.ValidateWindow(now.Add(2*time.Hour), now.Add(time.Hour)), database.ErrInvalidWindow)
	assert.ErrorIs(t, svc.ValidateWindow(now, now), database.ErrInvalidWindow)

	// fully past windows
	assert.ErrorIs(t, svc.ValidateWindow(now.Add(-3*time.Hour), now.Add(-time.Hour)), database.ErrInvalidWindow)

	// beyond the horizon
	farFuture := now.AddDate(0, 0, 91)
	assert.ErrorIs(t, svc.ValidateWindow(farFuture, farFuture.Add(time.Hour)), database.ErrInvalidWindow)
}

func TestReserve_Success(t *testing.T) {
	store := &mockStore{}
	cache := &mockCache{}
	svc := newTestBookingService(store, cache)
	ctx := context.Background()

	req := database.ReserveRequest{
		UserID: 7, LotID: 1, SlotID: 11,
		Start: time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
		Price: 40,
	}
	booking := &models.Booking{ID: 1, UserID: 7, LotID: 1, SlotID: 11, Status: models.BookingConfirmed, AmountPaid: 40}

	cache.On("CheckRateLimit", ctx, int64(7), mock.Anything, mock.Anything).Return(true, nil)
	store.On("ReserveBooking", ctx, req).Return(booking, nil)
	cache.On("InvalidateAvailability", ctx, int64(1)).Return(nil)

	got, err := svc.Reserve(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, booking.ID, got.ID)

	store.AssertExpectations(t)
	cache.AssertExpectations(t)
}

func TestReserve_InvalidWindowSkipsStore(t *testing.T) {
	store := &mockStore{}
	svc := newTestBookingService(store, nil)
	ctx := context.Background()

	_, err := svc.Reserve(ctx, database.ReserveRequest{
		UserID: 7, LotID: 1,
		Start: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC),
		Price: 40,
	})
	assert.ErrorIs(t, err, database.ErrInvalidWindow)
	store.AssertNotCalled(t, "ReserveBooking", mock.Anything, mock.Anything)
}

func TestReserve_RateLimited(t *testing.T) {
	store := &mockStore{}
	cache := &mockCache{}
	svc := newTestBookingService(store, cache)
	ctx := context.Background()

	cache.On("CheckRateLimit", ctx, int64(7), mock.Anything, mock.Anything).Return(false, nil)

	_, err := svc.Reserve(ctx, database.ReserveRequest{
		UserID: 7, LotID: 1,
		Start: time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
		Price: 40,
	})
	assert.ErrorIs(t, err, database.ErrRateLimited)
	store.AssertNotCalled(t, "ReserveBooking", mock.Anything, mock.Anything)
}

func TestReserve_StoreErrorPassesThrough(t *testing.T) {
	store := &mockStore{}
	cache := &mockCache{}
	svc := newTestBookingService(store, cache)
	ctx := context.Background()

	cache.On("CheckRateLimit", ctx, mock.Anything, mock.Anything, mock.Anything).Return(true, nil)
	store.On("ReserveBooking", ctx, mock.Anything).Return(nil, database.ErrSlotUnavailable)

	_, err := svc.Reserve(ctx, database.ReserveRequest{
		UserID: 7, LotID: 1, SlotID: 11,
		Start: time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
		Price: 40,
	})
	assert.ErrorIs(t, err, database.ErrSlotUnavailable)
	cache.AssertNotCalled(t, "InvalidateAvailability", mock.Anything, mock.Anything)
}

func TestCancel_InvalidatesCache(t *testing.T) {
	store := &mockStore{}
	cache := &mockCache{}
	svc := newTestBookingService(store, cache)
	ctx := context.Background()

	booking := &models.Booking{ID: 5, UserID: 7, LotID: 1, Status: models.BookingCancelled}
	store.On("CancelBooking", ctx, int64(5), int64(7), mock.Anything).Return(booking, int64(40), nil)
	cache.On("InvalidateAvailability", ctx, int64(1)).Return(nil)

	got, refund, err := svc.Cancel(ctx, 5, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(40), refund)
	assert.Equal(t, models.BookingCancelled, got.Status)
	cache.AssertExpectations(t)
}

func TestCheckout(t *testing.T) {
	store := &mockStore{}
	cache := &mockCache{}
	svc := newTestBookingService(store, cache)
	ctx := context.Background()

	booking := &models.Booking{ID: 5, UserID: 7, LotID: 1, Status: models.BookingCompleted, PenaltyPaid: 20}
	store.On("CheckoutBooking", ctx, int64(5), int64(7), mock.Anything).Return(booking, int64(20), nil)
	cache.On("InvalidateAvailability", ctx, int64(1)).Return(nil)

	_, penalty, err := svc.Checkout(ctx, 5, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(20), penalty)
}

func TestAvailability_CacheHit(t *testing.T) {
	store := &mockStore{}
	cache := &mockCache{}
	svc := newTestBookingService(store, cache)
	ctx := context.Background()
	day := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	grid := []*models.SlotAvailability{{LotID: 1, VehicleClass: "standard", Free: 2, Total: 3}}
	cache.On("GetAvailability", ctx, int64(1), "standard").Return(grid, nil)

	got, err := svc.Availability(ctx, 1, "standard", day, 7)
	require.NoError(t, err)
	assert.Equal(t, grid, got)
	store.AssertNotCalled(t, "AvailabilityGrid", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAvailability_CacheMissFillsCache(t *testing.T) {
	store := &mockStore{}
	cache := &mockCache{}
	svc := newTestBookingService(store, cache)
	ctx := context.Background()
	day := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	grid := []*models.SlotAvailability{{LotID: 1, VehicleClass: "standard", Free: 2, Total: 3}}
	cache.On("GetAvailability", ctx, int64(1), "standard").Return(nil, nil)
	store.On("AvailabilityGrid", ctx, int64(1), "standard", day, 7).Return(grid, nil)
	cache.On("SetAvailability", ctx, int64(1), "standard", grid).Return(nil)

	got, err := svc.Availability(ctx, 1, "standard", day, 7)
	require.NoError(t, err)
	assert.Equal(t, grid, got)
	cache.AssertExpectations(t)
}

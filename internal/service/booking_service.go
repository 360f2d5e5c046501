package service

import (
	"context"
	"time"

	"parkpass/internal/clock"
	"parkpass/internal/database"
	"parkpass/internal/domain"
	"parkpass/internal/events"
	"parkpass/internal/metrics"
	"parkpass/internal/models"

	"github.com/rs/zerolog"
)

type BookingService struct {
	store          domain.Store
	cache          domain.CacheRepository
	eventBus       domain.EventPublisher
	reportWorker   domain.ReportWorker
	policy         models.BookingPolicy
	clock          clock.Clock
	maxHorizonDays int
	logger         *zerolog.Logger
}

func NewBookingService(store domain.Store, cache domain.CacheRepository, eventBus domain.EventPublisher, reportWorker domain.ReportWorker, policy models.BookingPolicy, maxHorizonDays int, logger *zerolog.Logger) *BookingService {
	if maxHorizonDays <= 0 {
		maxHorizonDays = models.MaxBookingHorizonDays
	}
	return &BookingService{
		store:          store,
		cache:          cache,
		eventBus:       eventBus,
		reportWorker:   reportWorker,
		policy:         policy,
		clock:          clock.NewSystem(),
		maxHorizonDays: maxHorizonDays,
		logger:         logger,
	}
}

// SetClock replaces the service clock; tests pin it.
func (s *BookingService) SetClock(c clock.Clock) {
	s.clock = c
}

func (s *BookingService) ValidateWindow(start, end time.Time) error {
	if !start.Before(end) {
		return database.ErrInvalidWindow
	}

	now := s.clock.Now()
	if end.Before(now) {
		return database.ErrInvalidWindow
	}

	maxStart := now.AddDate(0, 0, s.maxHorizonDays)
	if start.After(maxStart) {
		return database.ErrInvalidWindow
	}

	return nil
}

// Reserve runs the full reservation write path and reports the outcome.
func (s *BookingService) Reserve(ctx context.Context, req database.ReserveRequest) (*models.Booking, error) {
	if err := s.ValidateWindow(req.Start, req.End); err != nil {
		metrics.IncReservation("invalid_window")
		return nil, err
	}

	// Per-user write limit shared across instances; gateway-level key
	// limiting alone cannot see individual users.
	if s.cache != nil {
		allowed, err := s.cache.CheckRateLimit(ctx, req.UserID, models.RateLimitRequests, models.RateLimitWindow*time.Second)
		if err != nil {
			s.logger.Warn().Err(err).Int64("user_id", req.UserID).Msg("rate limit check failed, allowing")
		} else if !allowed {
			metrics.IncReservation("rate_limited")
			return nil, database.ErrRateLimited
		}
	}

	booking, err := s.store.ReserveBooking(ctx, req)
	if err != nil {
		metrics.IncReservation(reserveOutcome(err))
		return nil, err
	}

	metrics.IncReservation("reserved")
	metrics.IncLedgerOp(string(models.DirectionDebit), models.ReasonReservation)

	s.invalidateLot(ctx, booking.LotID)
	s.publishBooking(events.EventBookingReserved, booking, booking.AmountPaid, 0, 0)

	return booking, nil
}

func (s *BookingService) Cancel(ctx context.Context, bookingID, userID int64) (*models.Booking, int64, error) {
	booking, refund, err := s.store.CancelBooking(ctx, bookingID, userID, s.policy)
	if err != nil {
		return nil, 0, err
	}

	if refund > 0 {
		metrics.IncLedgerOp(string(models.DirectionCredit), models.ReasonBookingRefund)
	}

	s.invalidateLot(ctx, booking.LotID)
	s.publishBooking(events.EventBookingCancelled, booking, 0, 0, refund)

	return booking, refund, nil
}

func (s *BookingService) Checkout(ctx context.Context, bookingID, userID int64) (*models.Booking, int64, error) {
	booking, penalty, err := s.store.CheckoutBooking(ctx, bookingID, userID, s.policy)
	if err != nil {
		return nil, 0, err
	}

	if penalty > 0 {
		metrics.IncLedgerOp(string(models.DirectionDebit), models.ReasonLatePenalty)
	}

	s.invalidateLot(ctx, booking.LotID)
	s.publishBooking(events.EventBookingCheckedOut, booking, 0, penalty, 0)

	return booking, penalty, nil
}

// Availability serves the browse grid through the cache; misses fall through
// to the store.
func (s *BookingService) Availability(ctx context.Context, lotID int64, vehicleClass string, startDate time.Time, days int) ([]*models.SlotAvailability, error) {
	if s.cache != nil {
		grid, err := s.cache.GetAvailability(ctx, lotID, vehicleClass)
		if err == nil && grid != nil {
			return grid, nil
		}
		if err != nil {
			s.logger.Warn().Err(err).Int64("lot_id", lotID).Msg("availability cache read failed")
		}
	}

	grid, err := s.store.AvailabilityGrid(ctx, lotID, vehicleClass, startDate, days)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetAvailability(ctx, lotID, vehicleClass, grid); err != nil {
			s.logger.Warn().Err(err).Int64("lot_id", lotID).Msg("availability cache write failed")
		}
	}

	return grid, nil
}

func (s *BookingService) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return s.store.GetBooking(ctx, id)
}

func (s *BookingService) GetUserBookings(ctx context.Context, userID int64) ([]*models.Booking, error) {
	return s.store.GetUserBookings(ctx, userID)
}

// RequestOccupancyExport queues a background occupancy report for the lot.
func (s *BookingService) RequestOccupancyExport(ctx context.Context, lotID int64, from, to time.Time) error {
	if s.reportWorker == nil {
		return nil
	}
	return s.reportWorker.EnqueueExport(ctx, lotID, from, to)
}

func (s *BookingService) invalidateLot(ctx context.Context, lotID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateAvailability(ctx, lotID); err != nil {
		s.logger.Warn().Err(err).Int64("lot_id", lotID).Msg("availability cache invalidation failed")
	}
}

func (s *BookingService) publishBooking(eventType string, booking *models.Booking, amount, penalty, refund int64) {
	if s.eventBus == nil {
		return
	}

	payload := events.BookingEventPayload{
		BookingID: booking.ID,
		UserID:    booking.UserID,
		LotID:     booking.LotID,
		SlotID:    booking.SlotID,
		SlotLabel: booking.SlotLabel,
		Status:    string(booking.Status),
		Start:     booking.StartTime,
		End:       booking.EndTime,
		Amount:    amount,
		Penalty:   penalty,
		Refund:    refund,
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", booking.ID).Msg("publish event error")
	}
}

func reserveOutcome(err error) string {
	switch err {
	case database.ErrInsufficientFunds:
		return "insufficient_funds"
	case database.ErrSlotUnavailable:
		return "slot_unavailable"
	case database.ErrNoSlotsAvailable:
		return "no_slots"
	default:
		return "error"
	}
}

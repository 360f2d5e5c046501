package service

import (
	"context"

	"parkpass/internal/domain"
	"parkpass/internal/events"
	"parkpass/internal/metrics"
	"parkpass/internal/models"

	"github.com/rs/zerolog"
)

type RefundService struct {
	store    domain.Store
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewRefundService(store domain.Store, eventBus domain.EventPublisher, logger *zerolog.Logger) *RefundService {
	return &RefundService{
		store:    store,
		eventBus: eventBus,
		logger:   logger,
	}
}

// Request opens a refund claim for a terminal booking.
func (s *RefundService) Request(ctx context.Context, bookingID, userID int64, reason string) (*models.RefundRequest, error) {
	request, err := s.store.CreateRefundRequest(ctx, bookingID, userID, reason)
	if err != nil {
		return nil, err
	}

	s.publish(events.EventRefundRequested, request)
	return request, nil
}

// Resolve applies the admin decision; approval credits the wallet.
func (s *RefundService) Resolve(ctx context.Context, requestID, adminID int64, approve bool, refundAmount int64, response string) (*models.RefundRequest, error) {
	request, err := s.store.ResolveRefundRequest(ctx, requestID, adminID, approve, refundAmount, response)
	if err != nil {
		return nil, err
	}

	metrics.IncRefundDecision(string(request.Status))
	if request.Status == models.RefundApproved {
		metrics.IncLedgerOp(string(models.DirectionCredit), models.ReasonRefundApproved)
	}

	s.publish(events.EventRefundResolved, request)
	return request, nil
}

func (s *RefundService) Get(ctx context.Context, requestID int64) (*models.RefundRequest, error) {
	return s.store.GetRefundRequest(ctx, requestID)
}

// Pending lists open requests for lots owned by the admin.
func (s *RefundService) Pending(ctx context.Context, adminID int64) ([]*models.RefundRequest, error) {
	return s.store.PendingRefundRequests(ctx, adminID)
}

func (s *RefundService) publish(eventType string, request *models.RefundRequest) {
	if s.eventBus == nil {
		return
	}

	payload := events.RefundEventPayload{
		RequestID: request.ID,
		BookingID: request.BookingID,
		UserID:    request.UserID,
		Status:    string(request.Status),
		Amount:    request.RefundAmount,
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("request_id", request.ID).Msg("publish event error")
	}
}

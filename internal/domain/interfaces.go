package domain

import (
	"context"
	"time"

	"parkpass/internal/database"
	"parkpass/internal/models"
)

// Store is the transactional storage surface of the engine.
type Store interface {
	// Bookings
	ReserveBooking(ctx context.Context, req database.ReserveRequest) (*models.Booking, error)
	CancelBooking(ctx context.Context, bookingID, userID int64, policy models.BookingPolicy) (*models.Booking, int64, error)
	CheckoutBooking(ctx context.Context, bookingID, userID int64, policy models.BookingPolicy) (*models.Booking, int64, error)
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	GetUserBookings(ctx context.Context, userID int64) ([]*models.Booking, error)
	GetLotBookings(ctx context.Context, lotID int64, from, to time.Time) ([]*models.Booking, error)

	// Ledger
	Credit(ctx context.Context, userID, amount int64, reason string, bookingID *int64) (*models.LedgerEntry, error)
	Debit(ctx context.Context, userID, amount int64, reason string, bookingID *int64) (*models.LedgerEntry, error)
	Balance(ctx context.Context, userID int64) (int64, error)
	RecomputeBalance(ctx context.Context, userID int64) (stored, derived int64, err error)
	LedgerEntries(ctx context.Context, userID int64) ([]*models.LedgerEntry, error)

	// Slots and lots
	GetLot(ctx context.Context, id int64) (*models.Lot, error)
	GetSlot(ctx context.Context, id int64) (*models.Slot, error)
	FreeSlots(ctx context.Context, lotID int64, vehicleClass string, start, end time.Time) ([]*models.Slot, error)
	AvailabilityGrid(ctx context.Context, lotID int64, vehicleClass string, startDate time.Time, days int) ([]*models.SlotAvailability, error)

	// Refund workflow
	CreateRefundRequest(ctx context.Context, bookingID, userID int64, reason string) (*models.RefundRequest, error)
	ResolveRefundRequest(ctx context.Context, requestID, adminID int64, approve bool, refundAmount int64, response string) (*models.RefundRequest, error)
	GetRefundRequest(ctx context.Context, id int64) (*models.RefundRequest, error)
	PendingRefundRequests(ctx context.Context, adminID int64) ([]*models.RefundRequest, error)

	// Users
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id int64) (*models.User, error)
}

// CacheRepository is the redis-backed shared state: browse-only availability
// snapshots and per-user rate limiting.
type CacheRepository interface {
	GetAvailability(ctx context.Context, lotID int64, vehicleClass string) ([]*models.SlotAvailability, error)
	SetAvailability(ctx context.Context, lotID int64, vehicleClass string, grid []*models.SlotAvailability) error
	InvalidateAvailability(ctx context.Context, lotID int64) error
	CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error)
}

// EventPublisher decouples the services from event consumers.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// ReportWorker accepts background export and reconciliation jobs.
type ReportWorker interface {
	EnqueueExport(ctx context.Context, lotID int64, from, to time.Time) error
	EnqueueReconcile(ctx context.Context, userID int64) error
}

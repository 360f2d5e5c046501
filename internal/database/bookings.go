package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"parkpass/internal/models"
)

// ReserveRequest is the input of the reservation write path. SlotID zero
// means auto-assign.
type ReserveRequest struct {
	UserID       int64
	LotID        int64
	SlotID       int64
	VehicleClass string
	Start        time.Time
	End          time.Time
	Price        int64
}

// ReserveBooking resolves a slot, debits the price and inserts the confirmed
// booking as one transaction. The tx takes the write lock up front, so the
// overlap check and the insert cannot interleave with a concurrent reserve.
func (db *DB) ReserveBooking(ctx context.Context, req ReserveRequest) (*models.Booking, error) {
	if !req.Start.Before(req.End) {
		return nil, ErrInvalidWindow
	}
	if req.Price <= 0 {
		return nil, ErrInvalidAmount
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	slot, err := db.resolveSlotTx(ctx, tx, req)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	booking := &models.Booking{
		UserID:       req.UserID,
		LotID:        req.LotID,
		SlotID:       slot.ID,
		SlotLabel:    slot.Label,
		VehicleClass: slot.VehicleClass,
		StartTime:    req.Start.UTC(),
		EndTime:      req.End.UTC(),
		AmountPaid:   req.Price,
		Status:       models.BookingConfirmed,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO bookings (user_id, lot_id, slot_id, slot_label, vehicle_class,
            start_time, end_time, amount_paid, penalty_paid, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		booking.UserID, booking.LotID, booking.SlotID, booking.SlotLabel, booking.VehicleClass,
		formatTime(booking.StartTime), formatTime(booking.EndTime), booking.AmountPaid,
		booking.Status, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert booking: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}
	booking.ID = id

	if _, err := debitTx(ctx, tx, req.UserID, req.Price, models.ReasonReservation, &booking.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit reservation: %w", err)
	}
	return booking, nil
}

// resolveSlotTx implements manual and auto slot resolution inside the
// reservation transaction.
func (db *DB) resolveSlotTx(ctx context.Context, tx *sql.Tx, req ReserveRequest) (*models.Slot, error) {
	if req.SlotID != 0 {
		var slot models.Slot
		err := tx.QueryRowContext(ctx,
			`SELECT id, lot_id, label, vehicle_class, is_active, sort_order FROM slots WHERE id = ?`,
			req.SlotID).Scan(&slot.ID, &slot.LotID, &slot.Label, &slot.VehicleClass, &slot.IsActive, &slot.SortOrder)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSlotUnavailable
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get slot: %w", err)
		}
		if slot.LotID != req.LotID || !slot.IsActive {
			return nil, ErrSlotUnavailable
		}

		var overlapping int
		err = tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM bookings
             WHERE slot_id = ? AND status IN ('confirmed', 'completed')
               AND start_time < ? AND ? < end_time`,
			slot.ID, formatTime(req.End), formatTime(req.Start)).Scan(&overlapping)
		if err != nil {
			return nil, fmt.Errorf("failed to check slot overlap: %w", err)
		}
		if overlapping > 0 {
			return nil, ErrSlotUnavailable
		}
		return &slot, nil
	}

	var slot models.Slot
	err := tx.QueryRowContext(ctx,
		`SELECT s.id, s.lot_id, s.label, s.vehicle_class, s.is_active, s.sort_order
         FROM slots s
         WHERE s.lot_id = ? AND s.vehicle_class = ? AND s.is_active = 1
           AND NOT EXISTS (
               SELECT 1 FROM bookings b
               WHERE b.slot_id = s.id
                 AND b.status IN ('confirmed', 'completed')
                 AND b.start_time < ? AND ? < b.end_time
           )
         ORDER BY s.sort_order, s.id LIMIT 1`,
		req.LotID, req.VehicleClass, formatTime(req.End), formatTime(req.Start)).Scan(
		&slot.ID, &slot.LotID, &slot.Label, &slot.VehicleClass, &slot.IsActive, &slot.SortOrder)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSlotsAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("failed to auto-assign slot: %w", err)
	}
	return &slot, nil
}

// CancelBooking sets the booking cancelled and credits the refund tier in one
// transaction. Returns the updated booking and the refunded amount.
func (db *DB) CancelBooking(ctx context.Context, bookingID, userID int64, policy models.BookingPolicy) (*models.Booking, int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	booking, err := getBookingTx(ctx, tx, bookingID)
	if err != nil {
		return nil, 0, err
	}
	if booking.UserID != userID {
		return nil, 0, ErrNotFound
	}
	if booking.Status != models.BookingConfirmed {
		return nil, 0, ErrAlreadyTerminal
	}

	now := db.clock.Now()
	refund := policy.RefundFor(booking.AmountPaid, booking.StartTime, now)

	if _, err := tx.ExecContext(ctx,
		`UPDATE bookings SET status = ?, updated_at = ? WHERE id = ?`,
		models.BookingCancelled, time.Now(), bookingID); err != nil {
		return nil, 0, fmt.Errorf("failed to cancel booking: %w", err)
	}

	if refund > 0 {
		if _, err := creditTx(ctx, tx, userID, refund, models.ReasonBookingRefund, &bookingID); err != nil {
			return nil, 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("failed to commit cancellation: %w", err)
	}

	booking.Status = models.BookingCancelled
	return booking, refund, nil
}

// CheckoutBooking completes the booking, charging the overstay penalty in the
// same transaction. An unpayable penalty rolls the whole checkout back: the
// booking stays confirmed and the caller sees ErrInsufficientFunds.
func (db *DB) CheckoutBooking(ctx context.Context, bookingID, userID int64, policy models.BookingPolicy) (*models.Booking, int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	booking, err := getBookingTx(ctx, tx, bookingID)
	if err != nil {
		return nil, 0, err
	}
	if booking.UserID != userID {
		return nil, 0, ErrNotFound
	}
	if booking.Status == models.BookingCompleted {
		return nil, 0, ErrAlreadyCheckedOut
	}
	if booking.Status != models.BookingConfirmed {
		return nil, 0, ErrAlreadyTerminal
	}

	now := db.clock.Now()
	penalty := policy.PenaltyFor(booking.EndTime, now)

	if penalty > 0 {
		if _, err := debitTx(ctx, tx, userID, penalty, models.ReasonLatePenalty, &bookingID); err != nil {
			return nil, 0, err
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE bookings SET status = ?, actual_end_time = ?, penalty_paid = ?, updated_at = ? WHERE id = ?`,
		models.BookingCompleted, formatTime(now), penalty, time.Now(), bookingID); err != nil {
		return nil, 0, fmt.Errorf("failed to complete booking: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("failed to commit checkout: %w", err)
	}

	booking.Status = models.BookingCompleted
	booking.ActualEndTime = &now
	booking.PenaltyPaid = penalty
	return booking, penalty, nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	// The sqlite3 driver rejects ReadOnly tx options; a plain tx is cheap
	// enough here.
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	return getBookingTx(ctx, tx, id)
}

func getBookingTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Booking, error) {
	b := &models.Booking{}
	var startStr, endStr string
	var actualEnd sql.NullString
	err := tx.QueryRowContext(ctx,
		`SELECT id, user_id, lot_id, slot_id, slot_label, vehicle_class, start_time, end_time,
                amount_paid, penalty_paid, status, actual_end_time, created_at, updated_at
         FROM bookings WHERE id = ?`, id).Scan(
		&b.ID, &b.UserID, &b.LotID, &b.SlotID, &b.SlotLabel, &b.VehicleClass, &startStr, &endStr,
		&b.AmountPaid, &b.PenaltyPaid, &b.Status, &actualEnd, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	if b.StartTime, err = parseTime(startStr); err != nil {
		return nil, fmt.Errorf("failed to parse booking start %s: %w", startStr, err)
	}
	if b.EndTime, err = parseTime(endStr); err != nil {
		return nil, fmt.Errorf("failed to parse booking end %s: %w", endStr, err)
	}
	if actualEnd.Valid {
		t, err := parseTime(actualEnd.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse actual end %s: %w", actualEnd.String, err)
		}
		b.ActualEndTime = &t
	}
	return b, nil
}

// GetUserBookings returns the user's bookings, newest first.
func (db *DB) GetUserBookings(ctx context.Context, userID int64) ([]*models.Booking, error) {
	query := `SELECT id, user_id, lot_id, slot_id, slot_label, vehicle_class, start_time, end_time,
                     amount_paid, penalty_paid, status, actual_end_time, created_at, updated_at
              FROM bookings WHERE user_id = ? ORDER BY start_time DESC`
	rows, err := db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b := &models.Booking{}
		var startStr, endStr string
		var actualEnd sql.NullString
		err := rows.Scan(
			&b.ID, &b.UserID, &b.LotID, &b.SlotID, &b.SlotLabel, &b.VehicleClass, &startStr, &endStr,
			&b.AmountPaid, &b.PenaltyPaid, &b.Status, &actualEnd, &b.CreatedAt, &b.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		if b.StartTime, err = parseTime(startStr); err != nil {
			return nil, fmt.Errorf("failed to parse booking start %s: %w", startStr, err)
		}
		if b.EndTime, err = parseTime(endStr); err != nil {
			return nil, fmt.Errorf("failed to parse booking end %s: %w", endStr, err)
		}
		if actualEnd.Valid {
			t, err := parseTime(actualEnd.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse actual end %s: %w", actualEnd.String, err)
			}
			b.ActualEndTime = &t
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// GetLotBookings returns bookings in a lot whose windows intersect [from, to),
// ordered by start. Feeds the occupancy export.
func (db *DB) GetLotBookings(ctx context.Context, lotID int64, from, to time.Time) ([]*models.Booking, error) {
	query := `SELECT id, user_id, lot_id, slot_id, slot_label, vehicle_class, start_time, end_time,
                     amount_paid, penalty_paid, status, actual_end_time, created_at, updated_at
              FROM bookings
              WHERE lot_id = ? AND start_time < ? AND ? < end_time
              ORDER BY start_time, id`
	rows, err := db.QueryContext(ctx, query, lotID, formatTime(to), formatTime(from))
	if err != nil {
		return nil, fmt.Errorf("failed to get lot bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b := &models.Booking{}
		var startStr, endStr string
		var actualEnd sql.NullString
		err := rows.Scan(
			&b.ID, &b.UserID, &b.LotID, &b.SlotID, &b.SlotLabel, &b.VehicleClass, &startStr, &endStr,
			&b.AmountPaid, &b.PenaltyPaid, &b.Status, &actualEnd, &b.CreatedAt, &b.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		if b.StartTime, err = parseTime(startStr); err != nil {
			return nil, fmt.Errorf("failed to parse booking start %s: %w", startStr, err)
		}
		if b.EndTime, err = parseTime(endStr); err != nil {
			return nil, fmt.Errorf("failed to parse booking end %s: %w", endStr, err)
		}
		if actualEnd.Valid {
			t, err := parseTime(actualEnd.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse actual end %s: %w", actualEnd.String, err)
			}
			b.ActualEndTime = &t
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

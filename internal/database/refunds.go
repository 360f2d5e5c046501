package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"parkpass/internal/models"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// CreateRefundRequest opens a refund claim for a terminal booking owned by
// the user. The UNIQUE constraint on booking_id backs the in-tx duplicate
// check, so two concurrent requests can never both land.
func (db *DB) CreateRefundRequest(ctx context.Context, bookingID, userID int64, reason string) (*models.RefundRequest, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	booking, err := getBookingTx(ctx, tx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.UserID != userID {
		return nil, ErrNotFound
	}
	if !booking.Status.Terminal() {
		return nil, ErrBookingActive
	}

	var existing int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM refund_requests WHERE booking_id = ?`, bookingID).Scan(&existing); err != nil {
		return nil, fmt.Errorf("failed to check existing request: %w", err)
	}
	if existing > 0 {
		return nil, ErrDuplicateRequest
	}

	now := time.Now()
	result, err := tx.ExecContext(ctx,
		`INSERT INTO refund_requests (booking_id, user_id, reason, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		bookingID, userID, reason, models.RefundPending, now, now)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, ErrDuplicateRequest
		}
		return nil, fmt.Errorf("failed to create refund request: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit refund request: %w", err)
	}

	return &models.RefundRequest{
		ID:        id,
		BookingID: bookingID,
		UserID:    userID,
		Reason:    reason,
		Status:    models.RefundPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ResolveRefundRequest applies the admin decision. Only the admin of the lot
// behind the booking may resolve; a resolved request never transitions again,
// so a retry cannot double-credit.
func (db *DB) ResolveRefundRequest(ctx context.Context, requestID, adminID int64, approve bool, refundAmount int64, response string) (*models.RefundRequest, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	request, lotAdminID, err := getRefundRequestTx(ctx, tx, requestID)
	if err != nil {
		return nil, err
	}
	if lotAdminID != adminID {
		return nil, ErrUnauthorized
	}
	if request.Status.Terminal() {
		return nil, ErrAlreadyResolved
	}

	decision := models.RefundRejected
	amount := int64(0)
	if approve {
		if refundAmount <= 0 {
			return nil, ErrInvalidAmount
		}
		decision = models.RefundApproved
		amount = refundAmount
	}

	// Guarded update: the status filter makes concurrent resolutions lose
	// cleanly instead of applying twice.
	result, err := tx.ExecContext(ctx,
		`UPDATE refund_requests
         SET status = ?, refund_amount = ?, admin_response = ?, resolved_by = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		decision, amount, response, adminID, time.Now(), requestID, models.RefundPending)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve refund request: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, ErrAlreadyResolved
	}

	if decision == models.RefundApproved {
		if _, err := creditTx(ctx, tx, request.UserID, amount, models.ReasonRefundApproved, &request.BookingID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit refund resolution: %w", err)
	}

	request.Status = decision
	request.RefundAmount = amount
	request.AdminResponse = response
	request.ResolvedBy = &adminID
	return request, nil
}

func (db *DB) GetRefundRequest(ctx context.Context, id int64) (*models.RefundRequest, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	request, _, err := getRefundRequestTx(ctx, tx, id)
	return request, err
}

func getRefundRequestTx(ctx context.Context, tx *sql.Tx, id int64) (*models.RefundRequest, int64, error) {
	r := &models.RefundRequest{}
	var lotAdminID int64
	err := tx.QueryRowContext(ctx,
		`SELECT r.id, r.booking_id, r.user_id, r.reason, r.status, r.admin_response,
                r.refund_amount, r.resolved_by, r.created_at, r.updated_at, l.admin_id
         FROM refund_requests r
         JOIN bookings b ON b.id = r.booking_id
         JOIN lots l ON l.id = b.lot_id
         WHERE r.id = ?`, id).Scan(
		&r.ID, &r.BookingID, &r.UserID, &r.Reason, &r.Status, &r.AdminResponse,
		&r.RefundAmount, &r.ResolvedBy, &r.CreatedAt, &r.UpdatedAt, &lotAdminID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get refund request: %w", err)
	}
	return r, lotAdminID, nil
}

// PendingRefundRequests lists open requests for lots owned by the admin.
func (db *DB) PendingRefundRequests(ctx context.Context, adminID int64) ([]*models.RefundRequest, error) {
	query := `SELECT r.id, r.booking_id, r.user_id, r.reason, r.status, r.admin_response,
                     r.refund_amount, r.resolved_by, r.created_at, r.updated_at
              FROM refund_requests r
              JOIN bookings b ON b.id = r.booking_id
              JOIN lots l ON l.id = b.lot_id
              WHERE l.admin_id = ? AND r.status = ?
              ORDER BY r.created_at`
	rows, err := db.QueryContext(ctx, query, adminID, models.RefundPending)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending refund requests: %w", err)
	}
	defer rows.Close()

	var requests []*models.RefundRequest
	for rows.Next() {
		r := &models.RefundRequest{}
		if err := rows.Scan(&r.ID, &r.BookingID, &r.UserID, &r.Reason, &r.Status, &r.AdminResponse,
			&r.RefundAmount, &r.ResolvedBy, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan refund request: %w", err)
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"parkpass/internal/models"
)

// Credit appends a credit entry and raises the denormalized balance in one
// transaction.
func (db *DB) Credit(ctx context.Context, userID, amount int64, reason string, bookingID *int64) (*models.LedgerEntry, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	entry, err := creditTx(ctx, tx, userID, amount, reason, bookingID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit credit: %w", err)
	}
	return entry, nil
}

// Debit appends a debit entry and lowers the balance in one transaction.
// Fails with ErrInsufficientFunds when the wallet cannot cover the amount.
func (db *DB) Debit(ctx context.Context, userID, amount int64, reason string, bookingID *int64) (*models.LedgerEntry, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	entry, err := debitTx(ctx, tx, userID, amount, reason, bookingID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit debit: %w", err)
	}
	return entry, nil
}

// creditTx is the in-transaction credit primitive shared by every write path.
func creditTx(ctx context.Context, tx *sql.Tx, userID, amount int64, reason string, bookingID *int64) (*models.LedgerEntry, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE users SET balance = balance + ?, updated_at = ? WHERE id = ?`,
		amount, time.Now(), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, ErrNotFound
	}

	return appendEntry(ctx, tx, userID, amount, models.DirectionCredit, reason, bookingID)
}

// debitTx checks the balance and lowers it inside the caller's transaction,
// so the InsufficientFunds check is never evaluated against a stale value.
func debitTx(ctx context.Context, tx *sql.Tx, userID, amount int64, reason string, bookingID *int64) (*models.LedgerEntry, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var balance int64
	err := tx.QueryRowContext(ctx, `SELECT balance FROM users WHERE id = ?`, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read balance: %w", err)
	}
	if balance < amount {
		return nil, ErrInsufficientFunds
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET balance = balance - ?, updated_at = ? WHERE id = ?`,
		amount, time.Now(), userID); err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}

	return appendEntry(ctx, tx, userID, amount, models.DirectionDebit, reason, bookingID)
}

func appendEntry(ctx context.Context, tx *sql.Tx, userID, amount int64, direction models.LedgerDirection, reason string, bookingID *int64) (*models.LedgerEntry, error) {
	now := time.Now()
	result, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (user_id, amount, direction, reason, booking_id, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		userID, amount, direction, reason, bookingID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to append ledger entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return &models.LedgerEntry{
		ID:        id,
		UserID:    userID,
		Amount:    amount,
		Direction: direction,
		Reason:    reason,
		BookingID: bookingID,
		CreatedAt: now,
	}, nil
}

// Balance returns the denormalized wallet balance.
func (db *DB) Balance(ctx context.Context, userID int64) (int64, error) {
	var balance int64
	err := db.QueryRowContext(ctx, `SELECT balance FROM users WHERE id = ?`, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// RecomputeBalance derives the balance from the ledger and returns it next to
// the stored value. The two must be equal at every quiescent point.
func (db *DB) RecomputeBalance(ctx context.Context, userID int64) (stored, derived int64, err error) {
	stored, err = db.Balance(ctx, userID)
	if err != nil {
		return 0, 0, err
	}

	query := `SELECT
        COALESCE(SUM(CASE WHEN direction = 'credit' THEN amount ELSE 0 END), 0),
        COALESCE(SUM(CASE WHEN direction = 'debit' THEN amount ELSE 0 END), 0)
        FROM ledger_entries WHERE user_id = ?`
	var credits, debits int64
	if err = db.QueryRowContext(ctx, query, userID).Scan(&credits, &debits); err != nil {
		return 0, 0, fmt.Errorf("failed to sum ledger entries: %w", err)
	}
	return stored, credits - debits, nil
}

// LedgerEntries returns the user's statement, newest first.
func (db *DB) LedgerEntries(ctx context.Context, userID int64) ([]*models.LedgerEntry, error) {
	query := `SELECT id, user_id, amount, direction, reason, booking_id, created_at
              FROM ledger_entries WHERE user_id = ? ORDER BY id DESC`
	rows, err := db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.LedgerEntry
	for rows.Next() {
		e := &models.LedgerEntry{}
		if err := rows.Scan(&e.ID, &e.UserID, &e.Amount, &e.Direction, &e.Reason, &e.BookingID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"parkpass/internal/models"
)

// SeedCatalog upserts the lot/slot catalog loaded from the catalog file.
// Slots missing from the catalog are deactivated, never deleted, so historic
// bookings keep their references.
func (db *DB) SeedCatalog(ctx context.Context, lots []models.Lot) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `UPDATE slots SET is_active = 0`); err != nil {
		return fmt.Errorf("failed to reset slot activity: %w", err)
	}

	for _, lot := range lots {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO lots (id, admin_id, name, address, is_active) VALUES (?, ?, ?, ?, ?)
             ON CONFLICT(id) DO UPDATE SET
                admin_id = excluded.admin_id,
                name = excluded.name,
                address = excluded.address,
                is_active = excluded.is_active`,
			lot.ID, lot.AdminID, lot.Name, lot.Address, lot.IsActive)
		if err != nil {
			return fmt.Errorf("failed to upsert lot %d: %w", lot.ID, err)
		}

		for _, slot := range lot.Slots {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO slots (id, lot_id, label, vehicle_class, is_active, sort_order)
                 VALUES (?, ?, ?, ?, ?, ?)
                 ON CONFLICT(id) DO UPDATE SET
                    lot_id = excluded.lot_id,
                    label = excluded.label,
                    vehicle_class = excluded.vehicle_class,
                    is_active = excluded.is_active,
                    sort_order = excluded.sort_order`,
				slot.ID, lot.ID, slot.Label, slot.VehicleClass, slot.IsActive, slot.SortOrder)
			if err != nil {
				return fmt.Errorf("failed to upsert slot %d: %w", slot.ID, err)
			}
		}
	}

	return tx.Commit()
}

func (db *DB) GetLot(ctx context.Context, id int64) (*models.Lot, error) {
	var lot models.Lot
	err := db.QueryRowContext(ctx,
		`SELECT id, admin_id, name, address, is_active FROM lots WHERE id = ?`, id).Scan(
		&lot.ID, &lot.AdminID, &lot.Name, &lot.Address, &lot.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lot: %w", err)
	}
	return &lot, nil
}

func (db *DB) GetSlot(ctx context.Context, id int64) (*models.Slot, error) {
	var slot models.Slot
	err := db.QueryRowContext(ctx,
		`SELECT id, lot_id, label, vehicle_class, is_active, sort_order FROM slots WHERE id = ?`, id).Scan(
		&slot.ID, &slot.LotID, &slot.Label, &slot.VehicleClass, &slot.IsActive, &slot.SortOrder)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slot: %w", err)
	}
	return &slot, nil
}

// LotSlots returns every slot of the lot, active or not, in display order.
func (db *DB) LotSlots(ctx context.Context, lotID int64) ([]*models.Slot, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, lot_id, label, vehicle_class, is_active, sort_order
         FROM slots WHERE lot_id = ? ORDER BY sort_order, id`, lotID)
	if err != nil {
		return nil, fmt.Errorf("failed to get lot slots: %w", err)
	}
	defer rows.Close()

	var slots []*models.Slot
	for rows.Next() {
		s := &models.Slot{}
		if err := rows.Scan(&s.ID, &s.LotID, &s.Label, &s.VehicleClass, &s.IsActive, &s.SortOrder); err != nil {
			return nil, fmt.Errorf("failed to scan slot: %w", err)
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

// FreeSlots returns active slots of the class with no confirmed or completed
// booking overlapping [start, end). Read-only; the binding check happens again
// inside the reservation transaction.
func (db *DB) FreeSlots(ctx context.Context, lotID int64, vehicleClass string, start, end time.Time) ([]*models.Slot, error) {
	query := `SELECT s.id, s.lot_id, s.label, s.vehicle_class, s.is_active, s.sort_order
              FROM slots s
              WHERE s.lot_id = ? AND s.vehicle_class = ? AND s.is_active = 1
                AND NOT EXISTS (
                    SELECT 1 FROM bookings b
                    WHERE b.slot_id = s.id
                      AND b.status IN ('confirmed', 'completed')
                      AND b.start_time < ? AND ? < b.end_time
                )
              ORDER BY s.sort_order, s.id`
	rows, err := db.QueryContext(ctx, query, lotID, vehicleClass, formatTime(end), formatTime(start))
	if err != nil {
		return nil, fmt.Errorf("failed to get free slots: %w", err)
	}
	defer rows.Close()

	var slots []*models.Slot
	for rows.Next() {
		s := &models.Slot{}
		if err := rows.Scan(&s.ID, &s.LotID, &s.Label, &s.VehicleClass, &s.IsActive, &s.SortOrder); err != nil {
			return nil, fmt.Errorf("failed to scan slot: %w", err)
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

// AvailabilityGrid builds the browse-only day grid for a lot and class.
func (db *DB) AvailabilityGrid(ctx context.Context, lotID int64, vehicleClass string, startDate time.Time, days int) ([]*models.SlotAvailability, error) {
	var total int64
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM slots WHERE lot_id = ? AND vehicle_class = ? AND is_active = 1`,
		lotID, vehicleClass).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to count slots: %w", err)
	}

	var grid []*models.SlotAvailability
	for i := 0; i < days; i++ {
		dayStart := startDate.UTC().Truncate(24 * time.Hour).AddDate(0, 0, i)
		dayEnd := dayStart.AddDate(0, 0, 1)

		free, err := db.FreeSlots(ctx, lotID, vehicleClass, dayStart, dayEnd)
		if err != nil {
			return nil, err
		}

		grid = append(grid, &models.SlotAvailability{
			Date:         dayStart,
			LotID:        lotID,
			VehicleClass: vehicleClass,
			Free:         int64(len(free)),
			Total:        total,
		})
	}
	return grid, nil
}

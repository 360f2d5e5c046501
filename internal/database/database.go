package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"parkpass/internal/clock"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// timeLayout is how booking windows are stored. All values are UTC, so the
// strings compare correctly inside SQL.
const timeLayout = "2006-01-02 15:04:05"

type DB struct {
	*sql.DB
	clock  clock.Clock
	logger *zerolog.Logger
	path   string
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// _txlock=immediate makes every transaction take the write lock up front,
	// so a check-then-insert inside one tx cannot interleave with another
	// writer. WAL keeps readers unblocked meanwhile.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return &DB{DB: db, clock: clock.NewSystem(), logger: logger, path: path}, nil
}

// SetClock replaces the store clock; tests pin it to a fixed instant.
func (db *DB) SetClock(c clock.Clock) {
	db.clock = c
}

// Path returns the sqlite file location, used by the backup service.
func (db *DB) Path() string {
	return db.path
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            email TEXT UNIQUE,
            is_admin BOOLEAN NOT NULL DEFAULT 0,
            balance INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS lots (
            id INTEGER PRIMARY KEY,
            admin_id INTEGER NOT NULL,
            name TEXT NOT NULL,
            address TEXT,
            is_active BOOLEAN NOT NULL DEFAULT 1
        )`,
		`CREATE TABLE IF NOT EXISTS slots (
            id INTEGER PRIMARY KEY,
            lot_id INTEGER NOT NULL REFERENCES lots(id),
            label TEXT NOT NULL,
            vehicle_class TEXT NOT NULL,
            is_active BOOLEAN NOT NULL DEFAULT 1,
            sort_order INTEGER NOT NULL DEFAULT 0
        )`,
		`CREATE TABLE IF NOT EXISTS bookings (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id INTEGER NOT NULL REFERENCES users(id),
            lot_id INTEGER NOT NULL REFERENCES lots(id),
            slot_id INTEGER NOT NULL REFERENCES slots(id),
            slot_label TEXT NOT NULL,
            vehicle_class TEXT NOT NULL,
            start_time TEXT NOT NULL,
            end_time TEXT NOT NULL,
            amount_paid INTEGER NOT NULL,
            penalty_paid INTEGER NOT NULL DEFAULT 0,
            status TEXT NOT NULL DEFAULT 'confirmed',
            actual_end_time TEXT,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS ledger_entries (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id INTEGER NOT NULL REFERENCES users(id),
            amount INTEGER NOT NULL CHECK (amount > 0),
            direction TEXT NOT NULL CHECK (direction IN ('credit', 'debit')),
            reason TEXT NOT NULL,
            booking_id INTEGER,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS refund_requests (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            booking_id INTEGER NOT NULL UNIQUE REFERENCES bookings(id),
            user_id INTEGER NOT NULL REFERENCES users(id),
            reason TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            admin_response TEXT NOT NULL DEFAULT '',
            refund_amount INTEGER NOT NULL DEFAULT 0,
            resolved_by INTEGER,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS report_tasks (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            task_type TEXT NOT NULL,
            user_id INTEGER NOT NULL DEFAULT 0,
            lot_id INTEGER NOT NULL DEFAULT 0,
            payload TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            processed_at DATETIME,
            next_retry_at DATETIME
        )`,

		`CREATE INDEX IF NOT EXISTS idx_slots_lot_id ON slots(lot_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_slot_id ON bookings(slot_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_user_id ON bookings(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_window ON bookings(slot_id, start_time, end_time)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_user_id ON ledger_entries(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_report_tasks_status ON report_tasks(status)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.ParseInLocation(timeLayout, s, time.UTC)
}

package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"parkpass/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedTestCatalog(t *testing.T, db *DB) {
	t.Helper()
	lots := []models.Lot{
		{
			ID: 1, AdminID: 900, Name: "Central Garage", Address: "1 Main St", IsActive: true,
			Slots: []models.Slot{
				{ID: 11, Label: "A-1", VehicleClass: "standard", IsActive: true, SortOrder: 1},
				{ID: 12, Label: "A-2", VehicleClass: "standard", IsActive: true, SortOrder: 2},
				{ID: 13, Label: "B-1", VehicleClass: "compact", IsActive: true, SortOrder: 3},
			},
		},
	}
	require.NoError(t, db.SeedCatalog(context.Background(), lots))
}

func createTestUser(t *testing.T, db *DB, name string, balance int64) *models.User {
	t.Helper()
	user := &models.User{Name: name, Email: name + "@example.com"}
	require.NoError(t, db.CreateUser(context.Background(), user))
	if balance > 0 {
		_, err := db.Credit(context.Background(), user.ID, balance, models.ReasonTopUp, nil)
		require.NoError(t, err)
	}
	return user
}

func TestNewDB_DirectoryCreation(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "db_test_dir")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	dbPath := filepath.Join(tempDir, "nested", "dir", "test.db")
	logger := zerolog.Nop()

	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, dbPath)
}

func TestDB_Ping(t *testing.T) {
	db := setupTestDB(t)

	err := db.PingContext(context.Background())
	assert.NoError(t, err)
}

func TestSeedCatalog_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	seedTestCatalog(t, db)
	seedTestCatalog(t, db)

	lot, err := db.GetLot(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Central Garage", lot.Name)

	slots, err := db.LotSlots(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, slots, 3)
}

func TestSeedCatalog_DeactivatesRemovedSlots(t *testing.T) {
	db := setupTestDB(t)
	seedTestCatalog(t, db)

	// Reseed with slot 12 missing: it must turn inactive, not disappear.
	lots := []models.Lot{
		{
			ID: 1, AdminID: 900, Name: "Central Garage", IsActive: true,
			Slots: []models.Slot{
				{ID: 11, Label: "A-1", VehicleClass: "standard", IsActive: true, SortOrder: 1},
			},
		},
	}
	require.NoError(t, db.SeedCatalog(context.Background(), lots))

	slot, err := db.GetSlot(context.Background(), 12)
	require.NoError(t, err)
	assert.False(t, slot.IsActive)
}

func TestTimeRoundTrip(t *testing.T) {
	in := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	out, err := parseTime(formatTime(in))
	require.NoError(t, err)
	assert.True(t, in.Equal(out))
}

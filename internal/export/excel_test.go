package export

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"parkpass/internal/database"
	"parkpass/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func setupExportDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "export.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	err = db.SeedCatalog(ctx, []models.Lot{
		{
			ID: 1, AdminID: 900, Name: "Central Garage", Address: "1 Main St", IsActive: true,
			Slots: []models.Slot{
				{ID: 11, Label: "A-1", VehicleClass: "standard", IsActive: true, SortOrder: 1},
				{ID: 12, Label: "A-2", VehicleClass: "standard", IsActive: true, SortOrder: 2},
			},
		},
	})
	require.NoError(t, err)
	return db
}

func TestBuildOccupancyReport(t *testing.T) {
	db := setupExportDB(t)
	ctx := context.Background()

	user := &models.User{Name: "driver", Email: "driver@example.com"}
	require.NoError(t, db.CreateUser(ctx, user))
	_, err := db.Credit(ctx, user.ID, 100, models.ReasonTopUp, nil)
	require.NoError(t, err)

	start := time.Date(2026, 6, 2, 10, 0, 0, 0, time.UTC)
	_, err = db.ReserveBooking(ctx, database.ReserveRequest{
		UserID: user.ID, LotID: 1, SlotID: 11,
		Start: start, End: start.Add(2 * time.Hour), Price: 40,
	})
	require.NoError(t, err)

	dir := t.TempDir()
	logger := zerolog.Nop()
	builder := NewExcelBuilder(db, dir, &logger)

	from := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 6, 7, 0, 0, 0, 0, time.UTC)
	path, err := builder.BuildOccupancyReport(ctx, 1, from, to)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
	assert.Equal(t, dir, filepath.Dir(path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	title, err := f.GetCellValue("Occupancy", "A1")
	require.NoError(t, err)
	assert.Contains(t, title, "Central Garage")

	rows, err := f.GetRows("Occupancy")
	require.NoError(t, err)
	// title, date header, and one row per slot
	assert.GreaterOrEqual(t, len(rows), 4)
}

func TestBuildOccupancyReportUnknownLot(t *testing.T) {
	db := setupExportDB(t)
	logger := zerolog.Nop()
	builder := NewExcelBuilder(db, t.TempDir(), &logger)

	_, err := builder.BuildOccupancyReport(context.Background(), 99, time.Now(), time.Now().AddDate(0, 0, 7))
	assert.ErrorIs(t, err, database.ErrNotFound)
}

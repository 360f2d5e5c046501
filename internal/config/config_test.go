package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"parkpass/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
app:
  name: parkpass
  environment: test
database:
  path: /tmp/parkpass-test.db
api:
  port: 9191
booking:
  full_refund_advance_minutes: 45
  penalty_rate_per_hour: 15
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "parkpass", cfg.App.Name)
	assert.Equal(t, 9191, cfg.API.Port)
	assert.Equal(t, 45, cfg.Booking.FullRefundAdvanceMinutes)
	assert.Equal(t, int64(15), cfg.Booking.PenaltyRatePerHour)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /tmp/parkpass-test.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, "x-api-key", cfg.API.Auth.HeaderAPIKey)
	assert.Equal(t, int(models.DefaultFullRefundAdvance/time.Minute), cfg.Booking.FullRefundAdvanceMinutes)
	assert.Equal(t, models.DefaultPenaltyRatePerHour, cfg.Booking.PenaltyRatePerHour)
	assert.Equal(t, models.MaxBookingHorizonDays, cfg.Booking.MaxBookingHorizonDays)
	assert.Equal(t, "exports", cfg.Exports.Path)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("PARKPASS_TEST_DB", "/tmp/from-env.db")
	path := writeConfig(t, `
database:
  path: ${PARKPASS_TEST_DB}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/from-env.db", cfg.Database.Path)
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.Validate())

	cfg.Database.Path = "/tmp/x.db"
	assert.NoError(t, cfg.Validate())

	cfg.Booking.PenaltyRatePerHour = -1
	assert.Error(t, cfg.Validate())

	cfg.Booking.PenaltyRatePerHour = 0
	cfg.API.Auth.Enabled = true
	assert.Error(t, cfg.Validate())

	cfg.API.Auth.APIKeys = []APIClientKey{{Key: "k", Name: "gateway"}}
	assert.NoError(t, cfg.Validate())
}

func TestValidateCatalog(t *testing.T) {
	valid := []models.Lot{
		{ID: 1, Name: "A", Slots: []models.Slot{{ID: 10, Label: "A-1"}}},
		{ID: 2, Name: "B", Slots: []models.Slot{{ID: 20, Label: "B-1"}}},
	}
	assert.NoError(t, ValidateCatalog(valid))

	dupLot := []models.Lot{{ID: 1, Name: "A"}, {ID: 1, Name: "B"}}
	assert.Error(t, ValidateCatalog(dupLot))

	dupSlot := []models.Lot{
		{ID: 1, Name: "A", Slots: []models.Slot{{ID: 10}}},
		{ID: 2, Name: "B", Slots: []models.Slot{{ID: 10}}},
	}
	assert.Error(t, ValidateCatalog(dupSlot))

	zeroID := []models.Lot{{ID: 0, Name: "A"}}
	assert.Error(t, ValidateCatalog(zeroID))
}

func TestPolicyConversion(t *testing.T) {
	cfg := &Config{}
	cfg.Booking.FullRefundAdvanceMinutes = 45
	cfg.Booking.PenaltyRatePerHour = 15

	policy := cfg.Policy()
	assert.Equal(t, 45*time.Minute, policy.FullRefundAdvance)
	assert.Equal(t, int64(15), policy.PenaltyRatePerHour)

	// Zero values fall back to defaults.
	policy = (&Config{}).Policy()
	assert.Equal(t, models.DefaultFullRefundAdvance, policy.FullRefundAdvance)
	assert.Equal(t, models.DefaultPenaltyRatePerHour, policy.PenaltyRatePerHour)
}

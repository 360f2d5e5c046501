package database

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Ten goroutines race for the same slot and window; exactly one wins and
// exactly one debit lands.
func TestConcurrentReservationsSingleSlot(t *testing.T) {
	db := setupTestDB(t)
	seedTestCatalog(t, db)
	ctx := context.Background()

	const workers = 10
	userIDs := make([]int64, workers)
	for i := 0; i < workers; i++ {
		userIDs[i] = createTestUser(t, db, string(rune('a'+i))+"-racer", 100).ID
	}

	start := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)

	var wg sync.WaitGroup
	results := make(chan error, workers)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(userID int64) {
			defer wg.Done()
			_, err := db.ReserveBooking(ctx, ReserveRequest{
				UserID: userID, LotID: 1, SlotID: 11, Start: start, End: end, Price: 40,
			})
			results <- err
		}(userIDs[i])
	}
	wg.Wait()
	close(results)

	var wins, conflicts int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrSlotUnavailable):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, workers-1, conflicts)

	// Exactly one wallet was debited.
	var debited int
	for _, id := range userIDs {
		balance, err := db.Balance(ctx, id)
		require.NoError(t, err)
		if balance == 60 {
			debited++
		} else {
			assert.Equal(t, int64(100), balance)
		}
	}
	assert.Equal(t, 1, debited)
}

// Same race with auto-assignment over two standard slots: two winners.
func TestConcurrentReservationsAutoAssign(t *testing.T) {
	db := setupTestDB(t)
	seedTestCatalog(t, db)
	ctx := context.Background()

	const workers = 6
	userIDs := make([]int64, workers)
	for i := 0; i < workers; i++ {
		userIDs[i] = createTestUser(t, db, string(rune('a'+i))+"-auto", 100).ID
	}

	start := time.Date(2026, 6, 2, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	var wg sync.WaitGroup
	results := make(chan error, workers)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(userID int64) {
			defer wg.Done()
			_, err := db.ReserveBooking(ctx, ReserveRequest{
				UserID: userID, LotID: 1, VehicleClass: "standard", Start: start, End: end, Price: 40,
			})
			results <- err
		}(userIDs[i])
	}
	wg.Wait()
	close(results)

	var wins int
	for err := range results {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrNoSlotsAvailable)
		}
	}
	assert.Equal(t, 2, wins)
}

// Concurrent ledger writes keep stored and derived balance in lockstep.
func TestConcurrentLedgerWrites(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, "ledger-racer", 1000)
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(n int) {
			defer wg.Done()
			var err error
			if n%2 == 0 {
				_, err = db.Credit(ctx, user.ID, 5, "wallet top-up", nil)
			} else {
				_, err = db.Debit(ctx, user.ID, 5, "parking reservation", nil)
			}
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	stored, derived, err := db.RecomputeBalance(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), stored)
	assert.Equal(t, stored, derived)
}

package api

import (
	"errors"
	"net/http"

	"parkpass/internal/database"
)

// writeServiceError maps storage sentinels to stable error codes. Unknown
// errors never leak their message to the client.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, database.ErrInsufficientFunds):
		writeError(w, http.StatusConflict, "insufficient_funds", "wallet balance is too low")
	case errors.Is(err, database.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", "slot is taken for the requested window")
	case errors.Is(err, database.ErrNoSlotsAvailable):
		writeError(w, http.StatusConflict, "no_slots_available", "no free slot matches the request")
	case errors.Is(err, database.ErrAlreadyTerminal):
		writeError(w, http.StatusConflict, "already_terminal", "booking is already cancelled or completed")
	case errors.Is(err, database.ErrAlreadyCheckedOut):
		writeError(w, http.StatusConflict, "already_checked_out", "booking is already completed")
	case errors.Is(err, database.ErrBookingActive):
		writeError(w, http.StatusConflict, "booking_active", "booking is still active")
	case errors.Is(err, database.ErrDuplicateRequest):
		writeError(w, http.StatusConflict, "duplicate_request", "a refund request already exists for this booking")
	case errors.Is(err, database.ErrAlreadyResolved):
		writeError(w, http.StatusConflict, "already_resolved", "refund request is already resolved")
	case errors.Is(err, database.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "forbidden", "not allowed to act on this resource")
	case errors.Is(err, database.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "invalid_amount", "amount must be positive")
	case errors.Is(err, database.ErrInvalidWindow):
		writeError(w, http.StatusBadRequest, "invalid_window", "booking window is invalid")
	case errors.Is(err, database.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
	default:
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

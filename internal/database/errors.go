package database

import "errors"

// Business-rule failures surfaced by the store. The API layer maps these to
// stable error codes; anything else is an opaque storage failure.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrSlotUnavailable   = errors.New("slot unavailable")
	ErrNoSlotsAvailable  = errors.New("no slots available")
	ErrNotFound          = errors.New("not found")
	ErrAlreadyTerminal   = errors.New("booking already in terminal state")
	ErrAlreadyCheckedOut = errors.New("booking already checked out")
	ErrBookingActive     = errors.New("booking is still active")
	ErrDuplicateRequest  = errors.New("refund request already exists for booking")
	ErrAlreadyResolved   = errors.New("refund request already resolved")
	ErrUnauthorized      = errors.New("not authorized")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidWindow     = errors.New("invalid booking window")
	ErrRateLimited       = errors.New("too many requests")
)

package models

import "time"

type LedgerDirection string

const (
	DirectionCredit LedgerDirection = "credit"
	DirectionDebit  LedgerDirection = "debit"
)

// Ledger entry reasons. The reason is part of the audit trail, not free text.
const (
	ReasonReservation    = "parking reservation"
	ReasonBookingRefund  = "booking refund"
	ReasonLatePenalty    = "late checkout penalty"
	ReasonRefundApproved = "refund approved"
	ReasonTopUp          = "wallet top-up"
)

// LedgerEntry is an append-only record of a single token movement.
// Entries are never updated or deleted.
type LedgerEntry struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	Amount    int64           `json:"amount"`
	Direction LedgerDirection `json:"direction"`
	Reason    string          `json:"reason"`
	BookingID *int64          `json:"booking_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

package models

import "time"

type RefundStatus string

const (
	RefundPending  RefundStatus = "pending"
	RefundApproved RefundStatus = "approved"
	RefundRejected RefundStatus = "rejected"
)

func (s RefundStatus) Terminal() bool {
	return s == RefundApproved || s == RefundRejected
}

// RefundRequest is an admin-mediated refund claim. At most one exists per booking.
type RefundRequest struct {
	ID            int64        `json:"id"`
	BookingID     int64        `json:"booking_id"`
	UserID        int64        `json:"user_id"`
	Reason        string       `json:"reason"`
	Status        RefundStatus `json:"status"`
	AdminResponse string       `json:"admin_response,omitempty"`
	RefundAmount  int64        `json:"refund_amount"`
	ResolvedBy    *int64       `json:"resolved_by,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

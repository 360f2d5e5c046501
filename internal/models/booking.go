package models

import "time"

type BookingStatus string

const (
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
)

// Terminal reports whether no further transition is allowed from s.
func (s BookingStatus) Terminal() bool {
	return s == BookingCancelled || s == BookingCompleted
}

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingConfirmed, BookingCancelled, BookingCompleted:
		return true
	}
	return false
}

type Booking struct {
	ID            int64         `json:"id"`
	UserID        int64         `json:"user_id"`
	LotID         int64         `json:"lot_id"`
	SlotID        int64         `json:"slot_id"`
	SlotLabel     string        `json:"slot_label"`
	VehicleClass  string        `json:"vehicle_class"`
	StartTime     time.Time     `json:"start_time"`
	EndTime       time.Time     `json:"end_time"`
	AmountPaid    int64         `json:"amount_paid"`
	PenaltyPaid   int64         `json:"penalty_paid"`
	Status        BookingStatus `json:"status"`
	ActualEndTime *time.Time    `json:"actual_end_time,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Overlaps reports whether two half-open windows [s1,e1) and [s2,e2) intersect.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

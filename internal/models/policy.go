package models

import "time"

// BookingPolicy holds the time-dependent pricing rules applied by the write
// paths. Values are fixed in config, not negotiable per request.
type BookingPolicy struct {
	// FullRefundAdvance: cancellations strictly earlier than this before the
	// booked start refund the full amount; anything later refunds nothing.
	FullRefundAdvance time.Duration
	// PenaltyRatePerHour is charged per started hour of overstay at checkout.
	PenaltyRatePerHour int64
}

func DefaultBookingPolicy() BookingPolicy {
	return BookingPolicy{
		FullRefundAdvance:  DefaultFullRefundAdvance,
		PenaltyRatePerHour: DefaultPenaltyRatePerHour,
	}
}

// RefundFor returns the token refund for cancelling at now a booking that
// starts at start and was paid amountPaid. The boundary is exclusive: exactly
// FullRefundAdvance before start refunds nothing.
func (p BookingPolicy) RefundFor(amountPaid int64, start, now time.Time) int64 {
	if start.Sub(now) > p.FullRefundAdvance {
		return amountPaid
	}
	return 0
}

// PenaltyFor returns the overstay penalty for checking out at now a booking
// that ends at end. Every started hour of overstay is billed in full.
func (p BookingPolicy) PenaltyFor(end, now time.Time) int64 {
	overdue := now.Sub(end)
	if overdue <= 0 {
		return 0
	}
	minutes := int64(overdue / time.Minute)
	if overdue%time.Minute != 0 {
		minutes++
	}
	hours := (minutes + 59) / 60
	return hours * p.PenaltyRatePerHour
}

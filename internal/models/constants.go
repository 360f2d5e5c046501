package models

import "time"

const (
	// DefaultFullRefundAdvance is the cancellation cutoff for a full refund.
	DefaultFullRefundAdvance = 30 * time.Minute

	// DefaultPenaltyRatePerHour is charged per started hour of overstay.
	DefaultPenaltyRatePerHour int64 = 10

	// DefaultAvailabilityCacheTTL bounds staleness of the browse-only
	// availability snapshots in Redis.
	DefaultAvailabilityCacheTTL = 5 * 60 // seconds

	// WorkerQueueSize is the in-memory report queue capacity.
	WorkerQueueSize = 128

	// RateLimitRequests / RateLimitWindow cap per-user request rates.
	RateLimitRequests = 30
	RateLimitWindow   = 60 // seconds

	// MaxBookingHorizonDays is how far ahead a window may start.
	MaxBookingHorizonDays = 90
)

package models

import "time"

// ReportTask is a queued background job: an Excel export or a ledger
// reconciliation sweep.
type ReportTask struct {
	ID          int64      `json:"id"`
	TaskType    string     `json:"task_type"`
	UserID      int64      `json:"user_id"`
	LotID       int64      `json:"lot_id"`
	Payload     string     `json:"payload"`
	Status      string     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	LastError   *string    `json:"last_error"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at"`
	NextRetryAt *time.Time `json:"next_retry_at"`
}

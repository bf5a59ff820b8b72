package domain

import (
	"errors"
	"time"
)

// BatchType selects how a NotificationBatch accumulates and when it fires.
type BatchType string

const (
	BatchImmediate BatchType = "immediate"
	BatchHourly    BatchType = "hourly"
	BatchDaily     BatchType = "daily"
)

// BatchStatus tracks a batch through its own small lifecycle.
type BatchStatus string

const (
	BatchStatusPending    BatchStatus = "pending"
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusSent       BatchStatus = "sent"
	BatchStatusFailed     BatchStatus = "failed"
)

// ErrBatchNotOpen is returned when a caller tries to append an item to a
// batch that is no longer pending.
var ErrBatchNotOpen = errors.New("notifications: batch is not open for new items")

// NotificationBatch aggregates one or more alerts for a single
// (user, channel) pair under one of the three batching modes.
type NotificationBatch struct {
	ID             string      `json:"id" db:"id"`
	UserID         string      `json:"user_id" db:"user_id"`
	Channel        string      `json:"channel" db:"channel"`
	Type           BatchType   `json:"type" db:"type"`
	Status         BatchStatus `json:"status" db:"status"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
	ScheduledFor   time.Time   `json:"scheduled_for" db:"scheduled_for"`
	ProcessedAt    *time.Time  `json:"processed_at,omitempty" db:"processed_at"`
	ItemsCount     int         `json:"items_count" db:"items_count"`
	ProcessedCount int         `json:"processed_count" db:"processed_count"`
	Error          string      `json:"error,omitempty" db:"error"`
}

// NotificationBatchItem links one Alert into an open batch.
type NotificationBatchItem struct {
	ID        string    `json:"id" db:"id"`
	BatchID   string    `json:"batch_id" db:"batch_id"`
	AlertID   string    `json:"alert_id" db:"alert_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewBatch opens a batch scheduled to fire at scheduledFor.
func NewBatch(id, userID, channel string, batchType BatchType, scheduledFor, now time.Time) *NotificationBatch {
	return &NotificationBatch{
		ID:           id,
		UserID:       userID,
		Channel:      channel,
		Type:         batchType,
		Status:       BatchStatusPending,
		CreatedAt:    now,
		ScheduledFor: scheduledFor,
	}
}

// Open reports whether the batch can still accept new items: still
// pending and not yet due.
func (b *NotificationBatch) Open(now time.Time) bool {
	return b.Status == BatchStatusPending && now.Before(b.ScheduledFor)
}

// Append records one more item queued onto this batch.
func (b *NotificationBatch) Append() error {
	if b.Status != BatchStatusPending {
		return ErrBatchNotOpen
	}
	b.ItemsCount++
	return nil
}

// Due reports whether the periodic sweep should dispatch this batch now.
func (b *NotificationBatch) Due(now time.Time) bool {
	return b.Status == BatchStatusPending && !now.Before(b.ScheduledFor)
}

// Start transitions the batch into processing.
func (b *NotificationBatch) Start() {
	b.Status = BatchStatusProcessing
}

// Complete marks the batch sent once every item has been attempted.
func (b *NotificationBatch) Complete(sentCount int, now time.Time) {
	b.Status = BatchStatusSent
	b.ProcessedCount = sentCount
	b.ProcessedAt = &now
}

// Fail marks the batch failed, recording why.
func (b *NotificationBatch) Fail(errMsg string, now time.Time) {
	b.Status = BatchStatusFailed
	b.Error = errMsg
	b.ProcessedAt = &now
}

// ResetForRetry reopens a failed batch; callers are responsible for
// resetting its embedded deliveries first.
func (b *NotificationBatch) ResetForRetry() {
	b.Status = BatchStatusPending
	b.Error = ""
	b.ProcessedAt = nil
}

// NextHourBoundary returns the next top-of-hour instant strictly after now.
func NextHourBoundary(now time.Time) time.Time {
	next := now.Truncate(time.Hour).Add(time.Hour)
	return next
}

// NextDailySummary returns dailySummaryHour today if still ahead of now,
// otherwise the following day at that hour.
func NextDailySummary(now time.Time, dailySummaryHour int) time.Time {
	candidate := time.Date(now.Year(), now.Month(), now.Day(), dailySummaryHour, 0, 0, 0, now.Location())
	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

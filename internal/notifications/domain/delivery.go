// Package domain holds the notification pipeline's entities: batches,
// deliveries, and the engagement metrics derived from them.
package domain

import (
	"errors"
	"time"
)

// DeliveryStatus advances monotonically. failed is terminal except upon
// an explicit retry reset back to pending.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusSent      DeliveryStatus = "sent"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusOpened    DeliveryStatus = "opened"
	DeliveryStatusClicked   DeliveryStatus = "clicked"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

// statusRank orders the monotonic progression; failed sits outside it.
var statusRank = map[DeliveryStatus]int{
	DeliveryStatusPending:   0,
	DeliveryStatusSent:      1,
	DeliveryStatusDelivered: 2,
	DeliveryStatusOpened:    3,
	DeliveryStatusClicked:   4,
}

// ErrRetryLimitExceeded is returned when a failed Delivery has already
// exhausted its retry budget.
var ErrRetryLimitExceeded = errors.New("notifications: retry limit exceeded")

// ErrStatusRegression is returned when a caller attempts to move a
// Delivery's status backward outside of an explicit retry reset.
var ErrStatusRegression = errors.New("notifications: status cannot move backward")

// MaxDeliveryRetries caps a failed Delivery's total retry attempts.
const MaxDeliveryRetries = 5

// RetryBaseDelay is the exponential backoff base: 5 min * 2^n.
const RetryBaseDelay = 5 * time.Minute

// Delivery is one notification sent to a user over one channel, whether
// standalone (immediate mode) or as part of a NotificationBatch.
type Delivery struct {
	ID          string         `json:"id" db:"id"`
	UserID      string         `json:"user_id" db:"user_id"`
	AlertID     string         `json:"alert_id" db:"alert_id"`
	BatchID     string         `json:"batch_id,omitempty" db:"batch_id"`
	Channel     string         `json:"channel" db:"channel"`
	MessageID   string         `json:"message_id,omitempty" db:"message_id"`
	Content     string         `json:"content" db:"content"`
	Status      DeliveryStatus `json:"status" db:"status"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	SentAt      *time.Time     `json:"sent_at,omitempty" db:"sent_at"`
	DeliveredAt *time.Time     `json:"delivered_at,omitempty" db:"delivered_at"`
	OpenedAt    *time.Time     `json:"opened_at,omitempty" db:"opened_at"`
	ClickedAt   *time.Time     `json:"clicked_at,omitempty" db:"clicked_at"`
	Error       string         `json:"error,omitempty" db:"error"`
	RetryCount  int            `json:"retry_count" db:"retry_count"`
	FailedAt    *time.Time     `json:"failed_at,omitempty" db:"failed_at"`
}

// NewDelivery builds a pending Delivery for one alert on one channel.
func NewDelivery(id, userID, alertID, channel, content string, now time.Time) *Delivery {
	return &Delivery{
		ID:        id,
		UserID:    userID,
		AlertID:   alertID,
		Channel:   channel,
		Content:   content,
		Status:    DeliveryStatusPending,
		CreatedAt: now,
	}
}

// advance moves the Delivery to a new status, rejecting any backward
// transition that isn't the dedicated retry reset.
func (d *Delivery) advance(status DeliveryStatus, at time.Time) error {
	if rank, ok := statusRank[status]; ok {
		if cur, curOK := statusRank[d.Status]; curOK && rank < cur {
			return ErrStatusRegression
		}
	}
	d.Status = status
	switch status {
	case DeliveryStatusSent:
		d.SentAt = &at
	case DeliveryStatusDelivered:
		d.DeliveredAt = &at
	case DeliveryStatusOpened:
		d.OpenedAt = &at
	case DeliveryStatusClicked:
		d.ClickedAt = &at
	}
	return nil
}

// MarkSent records the channel adapter's acknowledgement.
func (d *Delivery) MarkSent(messageID string, at time.Time) error {
	if err := d.advance(DeliveryStatusSent, at); err != nil {
		return err
	}
	d.MessageID = messageID
	return nil
}

// MarkDelivered records a downstream delivery receipt.
func (d *Delivery) MarkDelivered(at time.Time) error {
	return d.advance(DeliveryStatusDelivered, at)
}

// MarkOpened records the user opening the notification.
func (d *Delivery) MarkOpened(at time.Time) error {
	return d.advance(DeliveryStatusOpened, at)
}

// MarkClicked records the user clicking through; opening is implied.
func (d *Delivery) MarkClicked(at time.Time) error {
	if d.Status != DeliveryStatusOpened && d.Status != DeliveryStatusClicked {
		if err := d.advance(DeliveryStatusOpened, at); err != nil {
			return err
		}
	}
	return d.advance(DeliveryStatusClicked, at)
}

// MarkFailed records a delivery failure and increments the retry count.
// It returns ErrRetryLimitExceeded once the budget is exhausted, leaving
// the Delivery failed terminally.
func (d *Delivery) MarkFailed(errMsg string, at time.Time) error {
	d.Status = DeliveryStatusFailed
	d.Error = errMsg
	d.RetryCount++
	d.FailedAt = &at
	if d.RetryCount > MaxDeliveryRetries {
		return ErrRetryLimitExceeded
	}
	return nil
}

// RetryBackoff returns the delay before the next retry attempt for the
// current RetryCount.
func (d *Delivery) RetryBackoff() time.Duration {
	return RetryBaseDelay << (d.RetryCount - 1)
}

// ResetForRetry explicitly reopens a failed Delivery back to pending.
func (d *Delivery) ResetForRetry() {
	d.Status = DeliveryStatusPending
	d.Error = ""
}

// CanRetry reports whether a failed Delivery still has retry budget.
func (d *Delivery) CanRetry() bool {
	return d.Status == DeliveryStatusFailed && d.RetryCount < MaxDeliveryRetries
}

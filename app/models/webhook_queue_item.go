package models

import (
	"time"

	"gorm.io/datatypes"
)

// Webhook queue item statuses. Transitions are monotonic:
// pending -> processing -> completed, or processing -> pending (retry)
// until attempts are exhausted, then processing -> dead_letter.
const (
	WebhookStatusPending    = "pending"
	WebhookStatusProcessing = "processing"
	WebhookStatusCompleted  = "completed"
	WebhookStatusDeadLetter = "dead_letter"
)

const (
	WebhookSourceMemberpress = "memberpress"

	// DefaultMaxAttempts is the retry ceiling applied at enqueue time.
	DefaultMaxAttempts = 5
)

// WebhookQueueItem stores one inbound provider event with deduplication and
// retry metadata. WebhookID is the provider-supplied idempotency key; a
// redelivered event must never create a second row.
type WebhookQueueItem struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	WebhookID   string         `gorm:"type:varchar(191);not null;uniqueIndex:ux_webhook_queue_webhook_id" json:"webhook_id"`
	Source      string         `gorm:"type:varchar(50);not null;default:'memberpress'" json:"source"`
	EventType   string         `gorm:"type:varchar(100);not null;index" json:"event_type"`
	Payload     datatypes.JSON `gorm:"type:json" json:"payload"`
	Status      string         `gorm:"type:varchar(20);not null;default:'pending';index:idx_webhook_queue_status_retry,priority:1" json:"status"`
	Attempts    int            `gorm:"not null;default:0" json:"attempts"`
	MaxAttempts int            `gorm:"not null;default:5" json:"max_attempts"`
	LastError   string         `gorm:"type:text" json:"last_error,omitempty"`
	NextRetryAt *time.Time     `gorm:"type:timestamp;default:null;index:idx_webhook_queue_status_retry,priority:2" json:"next_retry_at,omitempty"`
	CreatedAt   time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	StartedAt   *time.Time     `gorm:"type:timestamp;default:null" json:"started_at,omitempty"`
	CompletedAt *time.Time     `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName keeps the table in line with the external tooling that inspects it.
func (WebhookQueueItem) TableName() string {
	return "webhook_queue"
}

// IsTerminal reports whether the item can never be claimed again.
func (i *WebhookQueueItem) IsTerminal() bool {
	return i.Status == WebhookStatusCompleted || i.Status == WebhookStatusDeadLetter
}

// EligibleAt reports whether the item could be claimed at the given time.
func (i *WebhookQueueItem) EligibleAt(now time.Time) bool {
	if i.Status != WebhookStatusPending {
		return false
	}
	return i.NextRetryAt == nil || !i.NextRetryAt.After(now)
}

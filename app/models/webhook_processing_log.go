package models

import "time"

// Processing outcomes recorded per attempt.
const (
	ProcessingOutcomeCompleted  = "completed"
	ProcessingOutcomeRetried    = "retried"
	ProcessingOutcomeDeadLetter = "dead_letter"
)

// WebhookProcessingLog is an append-only audit row written after each
// processing attempt. It is a diagnostic surface, never a control path.
type WebhookProcessingLog struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	QueueID    uint      `gorm:"not null;index" json:"queue_id"`
	WebhookID  string    `gorm:"type:varchar(191);not null;index" json:"webhook_id"`
	EventType  string    `gorm:"type:varchar(100);not null" json:"event_type"`
	Attempt    int       `gorm:"not null" json:"attempt"`
	Outcome    string    `gorm:"type:varchar(20);not null;index" json:"outcome"`
	Error      string    `gorm:"type:text" json:"error,omitempty"`
	DurationMs int64     `gorm:"not null;default:0" json:"duration_ms"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (WebhookProcessingLog) TableName() string {
	return "webhook_processing_log"
}

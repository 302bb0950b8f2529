package models

import (
	"time"

	"gorm.io/gorm"
)

// Queue entry statuses. Sent, failed, cancelled and skipped are terminal;
// an entry never leaves a terminal state.
const (
	QueueStatusQueued     = "queued"
	QueueStatusProcessing = "processing"
	QueueStatusSent       = "sent"
	QueueStatusFailed     = "failed"
	QueueStatusCancelled  = "cancelled"
	QueueStatusSkipped    = "skipped"
)

// EmailQueueEntry is one scheduled send: this template to this subscriber
// at this time
type EmailQueueEntry struct {
	gorm.Model
	SubscriberID uint `gorm:"not null;index:idx_queue_pair" json:"subscriber_id"`
	TemplateID   uint `gorm:"not null;index:idx_queue_pair" json:"template_id"`

	ScheduledFor  time.Time  `gorm:"not null;index" json:"scheduled_for"`
	Status        string     `gorm:"not null;default:'queued';index" json:"status"`
	StatusMessage string     `json:"status_message,omitempty"`
	ClaimedAt     *time.Time `json:"claimed_at,omitempty"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`

	// Relations
	Subscriber Subscriber    `json:"-"`
	Template   EmailTemplate `json:"-"`
}

// EmailHistory is the append-only audit trail: one row per send attempt,
// never updated or deleted
type EmailHistory struct {
	gorm.Model
	SubscriberID uint   `gorm:"not null;index" json:"subscriber_id"`
	TemplateID   uint   `gorm:"index" json:"template_id"`
	QueueEntryID *uint  `gorm:"index" json:"queue_entry_id,omitempty"`
	Provider     string `gorm:"not null" json:"provider"`
	Status       string `gorm:"not null" json:"status"` // sent or failed
	Metadata     string `gorm:"type:text" json:"metadata,omitempty"`

	SentAt time.Time `gorm:"not null" json:"sent_at"`
}

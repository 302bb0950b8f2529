package models

import (
	"time"

	"gorm.io/gorm"
)

// Subscriber represents a single funnel contact
type Subscriber struct {
	gorm.Model
	Email     string `gorm:"not null;uniqueIndex" json:"email"`
	Name      string `json:"name"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`

	// Status
	IsUnsubscribed bool       `gorm:"default:false" json:"is_unsubscribed"`
	UnsubscribedAt *time.Time `json:"unsubscribed_at,omitempty"`

	// Metadata
	Source           string `json:"source"` // quiz, manual, import, etc.
	UnsubscribeToken string `gorm:"index" json:"-"`

	// Provider-side id from the last successful sync, if any
	ProviderSubscriberID string `json:"provider_subscriber_id,omitempty"`

	// Relations
	Tags         []SubscriberTag         `gorm:"foreignKey:SubscriberID" json:"tags,omitempty"`
	CustomFields []SubscriberCustomField `gorm:"foreignKey:SubscriberID" json:"custom_fields,omitempty"`
	QueueEntries []EmailQueueEntry       `gorm:"foreignKey:SubscriberID" json:"queue_entries,omitempty"`
}

// SubscriberTag represents tags for subscribers (normalized)
type SubscriberTag struct {
	gorm.Model
	SubscriberID uint   `gorm:"not null;index" json:"subscriber_id"`
	Tag          string `gorm:"not null;index" json:"tag"`
}

// SubscriberCustomField represents custom fields for subscribers
type SubscriberCustomField struct {
	gorm.Model
	SubscriberID uint   `gorm:"not null;index" json:"subscriber_id"`
	Name         string `gorm:"not null;index" json:"name"`
	Value        string `gorm:"type:text" json:"value"`
}

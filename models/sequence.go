package models

import "gorm.io/gorm"

// EmailSequence groups templates into a drip sequence
type EmailSequence struct {
	gorm.Model
	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`
	IsDefault   bool   `gorm:"default:false;index" json:"is_default"`

	// Relations
	Templates []EmailTemplate `gorm:"foreignKey:SequenceID" json:"templates,omitempty"`
}

// Template email types
const (
	EmailTypeWelcome      = "welcome"
	EmailTypeValue        = "value"
	EmailTypeHeroInstinct = "hero_instinct"
	EmailTypeStory        = "story"
	EmailTypeAffiliate    = "affiliate"
	EmailTypeCustom       = "custom"
)

// EmailTemplate represents one email in a sequence
type EmailTemplate struct {
	gorm.Model
	SequenceID uint `gorm:"not null;index" json:"sequence_id"`

	Name      string `gorm:"not null" json:"name"`
	Subject   string `gorm:"not null" json:"subject"`
	Content   string `gorm:"type:text" json:"content"` // may contain {{firstName}}-style placeholders
	EmailType string `gorm:"default:'custom'" json:"email_type"`

	DelayDays int  `gorm:"not null;default:0" json:"delay_days"` // offset from enrollment, 0 = immediate
	IsActive  bool `gorm:"default:true" json:"is_active"`

	AttachLeadMagnet bool   `gorm:"default:false" json:"attach_lead_magnet"`
	AttachmentPath   string `json:"attachment_path,omitempty"`

	// Tracking
	SentCount int `gorm:"default:0" json:"sent_count"`
}

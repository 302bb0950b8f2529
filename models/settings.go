package models

import "gorm.io/gorm"

// ProviderSetting stores one configuration field for an ESP adapter.
// Secrets are flagged so the admin API can mask them on read.
type ProviderSetting struct {
	gorm.Model
	Provider string `gorm:"not null;index:idx_provider_field,unique" json:"provider"`
	Field    string `gorm:"not null;index:idx_provider_field,unique" json:"field"`
	Value    string `gorm:"type:text" json:"value"`
	IsSecret bool   `gorm:"default:false" json:"is_secret"`
}

// SiteSetting stores a single site-wide setting (active provider,
// from address, etc.)
type SiteSetting struct {
	gorm.Model
	Key   string `gorm:"not null;uniqueIndex" json:"key"`
	Value string `gorm:"type:text" json:"value"`
}

// Well-known site setting keys
const (
	SettingActiveProvider = "active_email_provider"
)

package models

import (
	"time"

	"gorm.io/gorm"
)

// User is an admin dashboard account
type User struct {
	gorm.Model
	Email        string `gorm:"not null;uniqueIndex" json:"email"`
	Name         string `json:"name"`
	PasswordHash string `gorm:"not null" json:"-"`

	IsActive     bool `gorm:"default:true" json:"is_active"`
	TokenVersion int  `gorm:"default:0" json:"-"`

	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// RefreshToken stores issued refresh tokens so they can be revoked
type RefreshToken struct {
	gorm.Model
	UserID    uint       `gorm:"not null;index" json:"user_id"`
	Token     string     `gorm:"not null;uniqueIndex" json:"-"`
	ExpiresAt time.Time  `gorm:"not null" json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

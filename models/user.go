package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// User represents a Telegram user interacting with the alerts bot.
// Users are created on first contact and never hard-deleted; disabling
// notifications preserves referential integrity of the alert history.
type User struct {
	ID                  string     `gorm:"primaryKey" json:"id"` // Telegram user ID
	Name                string     `json:"name"`
	NotificationEnabled bool       `gorm:"default:true" json:"notification_enabled"`
	PreferredCheckDay   string     `gorm:"default:'daily'" json:"preferred_check_day"`
	PreferredCheckTime  string     `gorm:"default:'16:00'" json:"preferred_check_time"`
	MaxStocks           int        `gorm:"default:10" json:"max_stocks"`
	LastNotified        *time.Time `json:"last_notified"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// WatchEntry is one user's subscription to alerts for one symbol.
// The (user, symbol) pair is the primary key; thresholds are percentile
// ranks over the symbol's own deviation history.
type WatchEntry struct {
	UserID        string     `gorm:"primaryKey" json:"user_id"`
	User          User       `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	Symbol        string     `gorm:"primaryKey" json:"symbol"`
	ThresholdLow  float64    `gorm:"default:16" json:"threshold_low"`
	ThresholdHigh float64    `gorm:"default:84" json:"threshold_high"`
	IsOwned       bool       `gorm:"default:false" json:"is_owned"`
	LastAlertedAt *time.Time `json:"last_alerted_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ValidateThresholds enforces the ordering invariant on percentile ranks.
func (w *WatchEntry) ValidateThresholds() error {
	if w.ThresholdLow <= 0 || w.ThresholdHigh >= 100 || w.ThresholdLow >= w.ThresholdHigh {
		return fmt.Errorf("invalid thresholds: require 0 < low < high < 100, got low=%.2f high=%.2f",
			w.ThresholdLow, w.ThresholdHigh)
	}
	return nil
}

// BeforeCreate rejects new entries that break the threshold invariant.
// Thresholds are immutable after creation; column updates on existing
// entries only touch the owned flag and the alert mark.
func (w *WatchEntry) BeforeCreate(tx *gorm.DB) error {
	return w.ValidateThresholds()
}

// MigrateUserModels runs database migrations for user-related models
func MigrateUserModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&WatchEntry{},
	)
}

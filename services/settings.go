package services

import (
	"strconv"

	"stock_alerts_backend/models"

	"gorm.io/gorm"
)

// Settings reads operator tunables from the config table. Values are
// looked up at evaluation time, not cached in memory, so changes take
// effect without a restart.
type Settings struct {
	db *gorm.DB
}

// NewSettings creates a settings reader over the config table.
func NewSettings(db *gorm.DB) *Settings {
	return &Settings{db: db}
}

func (s *Settings) lookup(key string) (string, bool) {
	var entry models.ConfigEntry
	if err := s.db.Where("key = ?", key).First(&entry).Error; err != nil {
		return "", false
	}
	return entry.Value, true
}

// String returns the configured value for key, or def when unset.
func (s *Settings) String(key, def string) string {
	if v, ok := s.lookup(key); ok {
		return v
	}
	return def
}

// Int returns the configured integer for key, or def when unset/invalid.
func (s *Settings) Int(key string, def int) int {
	if v, ok := s.lookup(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Float returns the configured float for key, or def when unset/invalid.
func (s *Settings) Float(key string, def float64) float64 {
	if v, ok := s.lookup(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// Set upserts a config value.
func (s *Settings) Set(key, value string) error {
	entry := models.ConfigEntry{Key: key, Value: value}
	return s.db.Save(&entry).Error
}

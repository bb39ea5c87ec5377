package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SeriesCache holds the most recently computed series for a symbol.
// One row per symbol, shared by every watcher of that symbol; freshness
// is governed solely by LastFetch against the configured TTL.
type SeriesCache struct {
	Symbol     string              `gorm:"primaryKey" json:"symbol"`
	LastFetch  time.Time           `gorm:"index" json:"last_fetch"`
	LastPrice  decimal.Decimal     `gorm:"type:decimal(15,4)" json:"last_price"`
	MAValue    decimal.NullDecimal `gorm:"type:decimal(15,6)" json:"ma_value"`
	SeriesJSON string              `gorm:"type:text" json:"-"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// AlertRecord is one row of the append-only dispatch audit trail.
// Rows are never mutated after insert and reference the user only, so
// history survives watch entry removal.
type AlertRecord struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	UserID       string          `gorm:"index:idx_alert_user_symbol" json:"user_id"`
	Symbol       string          `gorm:"index:idx_alert_user_symbol" json:"symbol"`
	Price        decimal.Decimal `gorm:"type:decimal(15,4)" json:"price"`
	Percentile   float64         `json:"percentile"`
	SentAt       time.Time       `gorm:"autoCreateTime;index" json:"sent_at"`
	Status       string          `json:"status"` // sent, failed, skipped
	ErrorMessage string          `json:"error_message"`
}

// Alert dispatch status values.
const (
	AlertStatusSent    = "sent"
	AlertStatusFailed  = "failed"
	AlertStatusSkipped = "skipped"
)

// EventLog captures operational and security events (webhook rejections,
// checker errors) for intrusion monitoring and debugging.
type EventLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Timestamp time.Time `gorm:"autoCreateTime;index" json:"timestamp"`
	LogType   string    `gorm:"index" json:"log_type"` // error, security, telegram_update
	Message   string    `gorm:"type:text" json:"message"`
	UserID    string    `json:"user_id"`
	Symbol    string    `json:"symbol"`
}

// ConfigEntry is a free-form key/value tunable. Values are read at
// evaluation time so operators can change behavior without a restart.
type ConfigEntry struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Well-known config table keys.
const (
	ConfigKeyCacheHours        = "cache_hours"
	ConfigKeyBatchCacheHours   = "batch_cache_hours"
	ConfigKeyDefaultLow        = "default_threshold_low"
	ConfigKeyDefaultHigh       = "default_threshold_high"
	ConfigKeyMaxStocks         = "default_max_stocks"
	ConfigKeyRearmPolicy       = "alert_rearm_policy" // band_reentry, cooldown
	ConfigKeyCooldownHours     = "alert_cooldown_hours"
	ConfigKeyRequestDelay      = "request_delay_seconds"
)

// MigrateStockModels runs database migrations for market-data models
func MigrateStockModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&SeriesCache{},
		&AlertRecord{},
		&EventLog{},
		&ConfigEntry{},
	)
}

package services

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"stock_alerts_backend/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MessageSender delivers a text message to a chat. Implemented by
// telegram.Sender; faked in tests.
type MessageSender interface {
	SendMessage(chatID, text string) error
}

// Alert directions relative to the percentile band.
const (
	DirectionLow  = "low"
	DirectionHigh = "high"
)

// AlertItem is one triggered alert for one user's watched symbol.
type AlertItem struct {
	Symbol    string
	Price     float64
	Deviation float64
	BandLow   float64
	BandHigh  float64
	Direction string
	IsOwned   bool
}

// NotificationService turns triggered alerts into per-user digest
// messages and records every dispatch attempt in the audit trail.
type NotificationService struct {
	db     *gorm.DB
	sender MessageSender
}

// NewNotificationService creates the notification service.
func NewNotificationService(db *gorm.DB, sender MessageSender) *NotificationService {
	return &NotificationService{db: db, sender: sender}
}

// SendDigest sends one batched message covering all of a user's triggered
// alerts. One message per user per run keeps chat noise down. Every item
// gets an audit row: sent on success, failed with the error otherwise.
func (s *NotificationService) SendDigest(user *models.User, items []AlertItem) error {
	if len(items) == 0 {
		return nil
	}

	text := s.formatDigest(items)
	sendErr := s.sender.SendMessage(user.ID, text)

	now := time.Now().UTC()
	for _, item := range items {
		record := models.AlertRecord{
			UserID:     user.ID,
			Symbol:     item.Symbol,
			Price:      decimal.NewFromFloat(item.Price),
			Percentile: item.Deviation,
			Status:     models.AlertStatusSent,
		}
		if sendErr != nil {
			record.Status = models.AlertStatusFailed
			record.ErrorMessage = sendErr.Error()
		}
		if err := s.db.Create(&record).Error; err != nil {
			log.Printf("Error recording alert for %s/%s: %v", user.ID, item.Symbol, err)
		}
	}

	if sendErr != nil {
		return fmt.Errorf("failed to notify user %s: %w", user.ID, sendErr)
	}

	if err := s.db.Model(user).Update("last_notified", now).Error; err != nil {
		log.Printf("Error updating last_notified for %s: %v", user.ID, err)
	}
	for _, item := range items {
		err := s.db.Model(&models.WatchEntry{}).
			Where("user_id = ? AND symbol = ?", user.ID, item.Symbol).
			Update("last_alerted_at", now).Error
		if err != nil {
			log.Printf("Error marking %s/%s alerted: %v", user.ID, item.Symbol, err)
		}
	}
	return nil
}

// RecordSkipped writes a skipped audit row, used on non-alert weekdays so
// the trail shows the evaluation happened.
func (s *NotificationService) RecordSkipped(userID, symbol string, price, deviation float64, reason string) {
	record := models.AlertRecord{
		UserID:       userID,
		Symbol:       symbol,
		Price:        decimal.NewFromFloat(price),
		Percentile:   deviation,
		Status:       models.AlertStatusSkipped,
		ErrorMessage: reason,
	}
	if err := s.db.Create(&record).Error; err != nil {
		log.Printf("Error recording skipped alert for %s/%s: %v", userID, symbol, err)
	}
}

// formatDigest builds the HTML digest. Owned positions come first, then
// low alerts, then high alerts, each sorted by symbol.
func (s *NotificationService) formatDigest(items []AlertItem) string {
	var owned, low, high []AlertItem
	for _, item := range items {
		switch {
		case item.IsOwned:
			owned = append(owned, item)
		case item.Direction == DirectionLow:
			low = append(low, item)
		default:
			high = append(high, item)
		}
	}
	for _, group := range [][]AlertItem{owned, low, high} {
		sort.Slice(group, func(i, j int) bool { return group[i].Symbol < group[j].Symbol })
	}

	var b strings.Builder
	b.WriteString("📊 <b>Stock Alerts</b>\n")

	writeSection := func(title string, group []AlertItem) {
		if len(group) == 0 {
			return
		}
		b.WriteString(fmt.Sprintf("\n<b>%s</b>\n", title))
		for _, item := range group {
			b.WriteString(formatAlertLine(item))
		}
	}

	writeSection("Your positions", owned)
	writeSection("Unusually low", low)
	writeSection("Unusually high", high)
	return b.String()
}

func formatAlertLine(item AlertItem) string {
	arrow := "🔻"
	band := item.BandLow
	if item.Direction == DirectionHigh {
		arrow = "🔺"
		band = item.BandHigh
	}
	return fmt.Sprintf("%s <b>%s</b> $%.2f, %+.1f%% vs 200-day avg (band %+.1f%%)\n",
		arrow, item.Symbol, item.Price, item.Deviation, band)
}

package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"stock_alerts_backend/models"

	"gorm.io/gorm"
)

// WatchlistService manages users and their per-symbol subscriptions.
type WatchlistService struct {
	db       *gorm.DB
	settings *Settings
}

// NewWatchlistService creates the watchlist service.
func NewWatchlistService(db *gorm.DB) *WatchlistService {
	return &WatchlistService{db: db, settings: NewSettings(db)}
}

// UpsertUser creates the user on first contact or refreshes the stored
// display name on subsequent contact. The Telegram user ID is the key.
func (s *WatchlistService) UpsertUser(userID, name string) (*models.User, error) {
	var user models.User
	err := s.db.Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = models.User{
			ID:                  userID,
			Name:                name,
			NotificationEnabled: true,
			PreferredCheckDay:   "daily",
			PreferredCheckTime:  "16:00",
			MaxStocks:           s.settings.Int(models.ConfigKeyMaxStocks, 10),
		}
		if err := s.db.Create(&user).Error; err != nil {
			return nil, fmt.Errorf("failed to create user %s: %w", userID, err)
		}
		log.Printf("Created user %s (%s)", userID, name)
		return &user, nil
	}
	if err != nil {
		return nil, err
	}

	if name != "" && name != user.Name {
		user.Name = name
		if err := s.db.Save(&user).Error; err != nil {
			return nil, err
		}
	}
	return &user, nil
}

// AddResult reports the per-symbol outcome of a multi-symbol add. One bad
// symbol never blocks the others.
type AddResult struct {
	Added    []string
	Existing []string
	Rejected map[string]string // symbol -> reason
}

// AddSymbols subscribes a user to each symbol in the list. The user's
// max_stocks cap is checked per symbol, so a batch that crosses the cap
// partially succeeds up to the limit.
func (s *WatchlistService) AddSymbols(user *models.User, symbols []string) (*AddResult, error) {
	result := &AddResult{Rejected: make(map[string]string)}

	var count int64
	if err := s.db.Model(&models.WatchEntry{}).Where("user_id = ?", user.ID).Count(&count).Error; err != nil {
		return nil, err
	}

	defaultLow := s.settings.Float(models.ConfigKeyDefaultLow, 16)
	defaultHigh := s.settings.Float(models.ConfigKeyDefaultHigh, 84)

	for _, symbol := range symbols {
		var existing models.WatchEntry
		err := s.db.Where("user_id = ? AND symbol = ?", user.ID, symbol).First(&existing).Error
		if err == nil {
			result.Existing = append(result.Existing, symbol)
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}

		if int(count) >= user.MaxStocks {
			result.Rejected[symbol] = fmt.Sprintf("watchlist is full (max %d)", user.MaxStocks)
			continue
		}

		entry := models.WatchEntry{
			UserID:        user.ID,
			Symbol:        symbol,
			ThresholdLow:  defaultLow,
			ThresholdHigh: defaultHigh,
		}
		if err := s.db.Create(&entry).Error; err != nil {
			return nil, fmt.Errorf("failed to add %s for user %s: %w", symbol, user.ID, err)
		}
		count++
		result.Added = append(result.Added, symbol)
	}
	return result, nil
}

// RemoveSymbols unsubscribes a user from each symbol. Unknown symbols are
// reported back rather than treated as errors.
func (s *WatchlistService) RemoveSymbols(userID string, symbols []string) (removed, missing []string, err error) {
	for _, symbol := range symbols {
		res := s.db.Where("user_id = ? AND symbol = ?", userID, symbol).Delete(&models.WatchEntry{})
		if res.Error != nil {
			return nil, nil, res.Error
		}
		if res.RowsAffected == 0 {
			missing = append(missing, symbol)
		} else {
			removed = append(removed, symbol)
		}
	}
	return removed, missing, nil
}

// WatchlistItem is one row of a user's watchlist view, joined against the
// series cache so /list can show last known prices without new fetches.
type WatchlistItem struct {
	Symbol        string
	ThresholdLow  float64
	ThresholdHigh float64
	IsOwned       bool
	LastPrice     *float64
	LastDeviation *float64
}

// List returns the user's watchlist ordered by symbol, decorated with the
// last cached price and deviation where available.
func (s *WatchlistService) List(userID string) ([]WatchlistItem, error) {
	var entries []models.WatchEntry
	if err := s.db.Where("user_id = ?", userID).Order("symbol").Find(&entries).Error; err != nil {
		return nil, err
	}

	items := make([]WatchlistItem, 0, len(entries))
	for _, e := range entries {
		item := WatchlistItem{
			Symbol:        e.Symbol,
			ThresholdLow:  e.ThresholdLow,
			ThresholdHigh: e.ThresholdHigh,
			IsOwned:       e.IsOwned,
		}

		var cached models.SeriesCache
		if err := s.db.Where("symbol = ?", e.Symbol).First(&cached).Error; err == nil {
			price, _ := cached.LastPrice.Float64()
			item.LastPrice = &price
			if cached.MAValue.Valid && !cached.MAValue.Decimal.IsZero() {
				ma, _ := cached.MAValue.Decimal.Float64()
				dev := (price - ma) / ma * 100
				item.LastDeviation = &dev
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// SetOwned marks or clears the owned flag on watched symbols. Symbols the
// user does not watch are reported back as missing.
func (s *WatchlistService) SetOwned(userID string, symbols []string, owned bool) (updated, missing []string, err error) {
	for _, symbol := range symbols {
		res := s.db.Model(&models.WatchEntry{}).
			Where("user_id = ? AND symbol = ?", userID, symbol).
			Update("is_owned", owned)
		if res.Error != nil {
			return nil, nil, res.Error
		}
		if res.RowsAffected == 0 {
			missing = append(missing, symbol)
		} else {
			updated = append(updated, symbol)
		}
	}
	return updated, missing, nil
}

// SetNotifications toggles alert delivery for a user.
func (s *WatchlistService) SetNotifications(userID string, enabled bool) error {
	return s.db.Model(&models.User{}).Where("id = ?", userID).
		Update("notification_enabled", enabled).Error
}

// Watcher pairs a watch entry with its user for alert evaluation.
type Watcher struct {
	Entry models.WatchEntry
	User  models.User
}

// ActiveGroups returns all watch entries of notification-enabled users,
// grouped by symbol. Grouping by symbol is what lets the checker fetch
// each series once no matter how many users watch it.
func (s *WatchlistService) ActiveGroups() (map[string][]Watcher, error) {
	var entries []models.WatchEntry
	err := s.db.
		Joins("JOIN users ON users.id = watch_entries.user_id").
		Where("users.notification_enabled = ?", true).
		Preload("User").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}

	groups := make(map[string][]Watcher)
	for _, e := range entries {
		groups[e.Symbol] = append(groups[e.Symbol], Watcher{Entry: e, User: e.User})
	}
	return groups, nil
}

// ClearAlertMark resets the dedup mark on a watch entry once the deviation
// returns inside the band, re-arming the alert.
func (s *WatchlistService) ClearAlertMark(userID, symbol string) error {
	return s.db.Model(&models.WatchEntry{}).
		Where("user_id = ? AND symbol = ?", userID, symbol).
		Update("last_alerted_at", nil).Error
}

// MarkAlerted stamps the dedup mark after a successful send.
func (s *WatchlistService) MarkAlerted(userID, symbol string, at time.Time) error {
	return s.db.Model(&models.WatchEntry{}).
		Where("user_id = ? AND symbol = ?", userID, symbol).
		Update("last_alerted_at", at).Error
}

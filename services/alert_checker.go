package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"stock_alerts_backend/config"
	"stock_alerts_backend/models"
	"stock_alerts_backend/services/analysis"

	"gorm.io/gorm"
)

// AlertChecker runs the scheduled watchlist sweep: one snapshot per
// distinct symbol, one evaluation per watcher, one digest per user.
type AlertChecker struct {
	db            *gorm.DB
	stocks        *StockService
	watchlists    *WatchlistService
	notifications *NotificationService
	settings      *Settings
	now           func() time.Time // injectable for tests
}

// NewAlertChecker creates the checker.
func NewAlertChecker(db *gorm.DB, stocks *StockService, watchlists *WatchlistService, notifications *NotificationService) *AlertChecker {
	return &AlertChecker{
		db:            db,
		stocks:        stocks,
		watchlists:    watchlists,
		notifications: notifications,
		settings:      NewSettings(db),
		now:           time.Now,
	}
}

// CheckSummary reports what one sweep did, for logs and the admin API.
type CheckSummary struct {
	Symbols     int `json:"symbols"`
	Fetched     int `json:"fetched"`
	Stale       int `json:"stale"`
	Failed      int `json:"failed"`
	Triggered   int `json:"triggered"`
	Deduped     int `json:"deduped"`
	Skipped     int `json:"skipped"`
	UsersMailed int `json:"users_mailed"`
}

// defaultRequestDelay is the inter-symbol pause in seconds used when no
// config-table row overrides it: the REQUEST_DELAY_SECONDS environment
// value, falling back to 2s.
func defaultRequestDelay() float64 {
	if config.AppConfig != nil && config.AppConfig.RequestDelaySeconds > 0 {
		return config.AppConfig.RequestDelaySeconds
	}
	return 2
}

// validAlertDay reports whether alerts are delivered on the given UTC day.
// Friday and Saturday are excluded: a Friday close alert can't be acted on
// until Monday anyway, and weekend data adds nothing.
func validAlertDay(t time.Time) bool {
	switch t.UTC().Weekday() {
	case time.Friday, time.Saturday:
		return false
	}
	return true
}

// RunCheck sweeps every watched symbol once and dispatches digests.
// Symbols are processed sequentially with a configurable delay between
// upstream fetches so a large watchlist stays inside provider rate limits.
func (c *AlertChecker) RunCheck(ctx context.Context) (*CheckSummary, error) {
	started := c.now()
	summary := &CheckSummary{}

	groups, err := c.watchlists.ActiveGroups()
	if err != nil {
		return nil, fmt.Errorf("failed to load watchlists: %w", err)
	}
	summary.Symbols = len(groups)
	log.Printf("Alert check started: %d distinct symbols", len(groups))

	symbols := make([]string, 0, len(groups))
	for symbol := range groups {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	maxAge := time.Duration(c.settings.Int(models.ConfigKeyBatchCacheHours, 12)) * time.Hour
	delay := time.Duration(c.settings.Float(models.ConfigKeyRequestDelay, defaultRequestDelay()) * float64(time.Second))
	deliver := validAlertDay(started)

	perUser := make(map[string][]AlertItem)
	users := make(map[string]*models.User)

	for i, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if i > 0 && delay > 0 {
			time.Sleep(delay)
		}

		snap, stale, err := c.stocks.GetSnapshot(ctx, symbol, maxAge, true)
		if err != nil {
			summary.Failed++
			c.logEvent("error", fmt.Sprintf("check failed for %s: %v", symbol, err), "", symbol)
			continue
		}
		summary.Fetched++
		if stale {
			summary.Stale++
		}

		price, ok := snap.LastPrice()
		if !ok {
			continue
		}
		deviation, ok := snap.LatestDeviation()
		if !ok {
			continue
		}
		deviations := snap.ValidDeviations()

		for _, w := range groups[symbol] {
			item, triggered := evaluateWatcher(w, deviations, price, deviation)
			if !triggered {
				// Back inside the band: re-arm for the next excursion.
				if w.Entry.LastAlertedAt != nil {
					if err := c.watchlists.ClearAlertMark(w.User.ID, symbol); err != nil {
						log.Printf("Error re-arming %s/%s: %v", w.User.ID, symbol, err)
					}
				}
				continue
			}

			if c.isDeduped(&w.Entry, started) {
				summary.Deduped++
				continue
			}

			if !deliver {
				summary.Skipped++
				c.notifications.RecordSkipped(w.User.ID, symbol, price, deviation, "non-alert day")
				continue
			}

			summary.Triggered++
			perUser[w.User.ID] = append(perUser[w.User.ID], item)
			if _, ok := users[w.User.ID]; !ok {
				u := w.User
				users[w.User.ID] = &u
			}
		}
	}

	for userID, items := range perUser {
		if err := c.notifications.SendDigest(users[userID], items); err != nil {
			c.logEvent("error", err.Error(), userID, "")
			continue
		}
		summary.UsersMailed++
	}

	log.Printf("Alert check finished in %v: %d triggered, %d deduped, %d skipped, %d failed",
		time.Since(started), summary.Triggered, summary.Deduped, summary.Skipped, summary.Failed)
	return summary, nil
}

// evaluateWatcher resolves the watcher's percentile ranks against the
// symbol's deviation history and compares the latest deviation to the
// resulting band.
func evaluateWatcher(w Watcher, deviations []float64, price, deviation float64) (AlertItem, bool) {
	if len(deviations) < minValidPoints {
		return AlertItem{}, false
	}
	lowBand := analysis.Percentile(deviations, w.Entry.ThresholdLow)
	highBand := analysis.Percentile(deviations, w.Entry.ThresholdHigh)

	item := AlertItem{
		Symbol:    w.Entry.Symbol,
		Price:     price,
		Deviation: deviation,
		BandLow:   lowBand,
		BandHigh:  highBand,
		IsOwned:   w.Entry.IsOwned,
	}
	switch {
	case deviation <= lowBand:
		item.Direction = DirectionLow
		return item, true
	case deviation >= highBand:
		item.Direction = DirectionHigh
		return item, true
	}
	return AlertItem{}, false
}

// isDeduped reports whether a triggered alert was already delivered for
// the current band excursion. Under the default band_reentry policy a
// set mark suppresses until the deviation re-enters the band; under the
// cooldown policy the mark expires after a fixed number of hours.
func (c *AlertChecker) isDeduped(entry *models.WatchEntry, now time.Time) bool {
	policy := c.settings.String(models.ConfigKeyRearmPolicy, "band_reentry")
	if policy == "cooldown" {
		cooldown := time.Duration(c.settings.Int(models.ConfigKeyCooldownHours, 72)) * time.Hour
		if entry.LastAlertedAt != nil && now.Sub(*entry.LastAlertedAt) < cooldown {
			return true
		}
		// The entry mark can be lost to manual edits; the sent audit
		// trail backs it within the cooldown window.
		var sent int64
		c.db.Model(&models.AlertRecord{}).
			Where("user_id = ? AND symbol = ? AND status = ? AND sent_at > ?",
				entry.UserID, entry.Symbol, models.AlertStatusSent, now.Add(-cooldown)).
			Count(&sent)
		return sent > 0
	}
	return entry.LastAlertedAt != nil
}

func (c *AlertChecker) logEvent(logType, message, userID, symbol string) {
	row := models.EventLog{LogType: logType, Message: message, UserID: userID, Symbol: symbol}
	if err := c.db.Create(&row).Error; err != nil {
		log.Printf("Error writing event log: %v", err)
	}
}

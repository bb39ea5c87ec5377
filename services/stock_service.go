package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"stock_alerts_backend/config"
	"stock_alerts_backend/models"
	"stock_alerts_backend/services/analysis"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// minValidPoints is the smallest deviation history that produces
// meaningful percentile bands.
const minValidPoints = 20

// ErrInsufficientData means the symbol has too short a history for the
// moving-average analysis.
var ErrInsufficientData = errors.New("insufficient data for meaningful analysis")

// HistoricalDataFetcher fetches a daily close series for a symbol.
// Implemented by marketdata.Client; faked in tests.
type HistoricalDataFetcher interface {
	FetchHistoricalData(ctx context.Context, symbol, period string) ([]analysis.Candle, error)
}

// Percentiles are the default low/high band values cached per symbol.
type Percentiles struct {
	P16 float64 `json:"p16"`
	P84 float64 `json:"p84"`
}

// Snapshot is the fully derived series for one symbol, as cached in the
// series_cache table and served to the read API. Undefined values are nil
// and serialize as JSON null.
type Snapshot struct {
	Dates         []string    `json:"dates"`
	Prices        []float64   `json:"prices"`
	MA200         []*float64  `json:"ma_200"`
	PctDiff       []*float64  `json:"pct_diff"`
	Percentiles   Percentiles `json:"percentiles"`
	PreviousClose *float64    `json:"previous_close"`
	LastUpdated   time.Time   `json:"last_updated"`
}

// LastPrice returns the most recent close.
func (s *Snapshot) LastPrice() (float64, bool) {
	if len(s.Prices) == 0 {
		return 0, false
	}
	return s.Prices[len(s.Prices)-1], true
}

// LatestDeviation returns the most recent defined percent deviation.
func (s *Snapshot) LatestDeviation() (float64, bool) {
	for i := len(s.PctDiff) - 1; i >= 0; i-- {
		if s.PctDiff[i] != nil {
			return *s.PctDiff[i], true
		}
	}
	return 0, false
}

// ValidDeviations returns the non-nil percent deviations in series order.
func (s *Snapshot) ValidDeviations() []float64 {
	values := make([]float64, 0, len(s.PctDiff))
	for _, d := range s.PctDiff {
		if d != nil {
			values = append(values, *d)
		}
	}
	return values
}

// StockService owns per-symbol series computation and the series cache.
// Cache entries are symbol-scoped, which is what keeps external calls at
// O(distinct symbols) rather than O(watch entries).
type StockService struct {
	db       *gorm.DB
	fetcher  HistoricalDataFetcher
	settings *Settings
}

// NewStockService creates the stock data service.
func NewStockService(db *gorm.DB, fetcher HistoricalDataFetcher) *StockService {
	return &StockService{db: db, fetcher: fetcher, settings: NewSettings(db)}
}

// GetFreshSnapshot returns the cached snapshot for a symbol if it is
// younger than maxAge, or nil on a miss.
func (s *StockService) GetFreshSnapshot(symbol string, maxAge time.Duration) *Snapshot {
	var row models.SeriesCache
	cutoff := time.Now().Add(-maxAge)
	err := s.db.Where("symbol = ? AND last_fetch > ?", symbol, cutoff).First(&row).Error
	if err != nil {
		return nil
	}
	return decodeSnapshot(&row, symbol)
}

// GetStaleSnapshot returns the last cached snapshot regardless of age.
func (s *StockService) GetStaleSnapshot(symbol string) *Snapshot {
	var row models.SeriesCache
	if err := s.db.Where("symbol = ?", symbol).First(&row).Error; err != nil {
		return nil
	}
	return decodeSnapshot(&row, symbol)
}

func decodeSnapshot(row *models.SeriesCache, symbol string) *Snapshot {
	var snap Snapshot
	if err := json.Unmarshal([]byte(row.SeriesJSON), &snap); err != nil {
		log.Printf("Invalid cached series for %s: %v", symbol, err)
		return nil
	}
	if len(snap.Dates) == 0 {
		return nil
	}
	return &snap
}

// RefreshSnapshot fetches the full history for a symbol, runs the
// analytics engine and overwrites the cache row.
func (s *StockService) RefreshSnapshot(ctx context.Context, symbol string) (*Snapshot, error) {
	candles, err := s.fetcher.FetchHistoricalData(ctx, symbol, "max")
	if err != nil {
		return nil, err
	}

	result := analysis.Analyze(candles, analysis.DefaultWindow)
	if len(result.ValidDeviations()) < minValidPoints {
		return nil, fmt.Errorf("%w: %s has %d usable points, need %d",
			ErrInsufficientData, symbol, len(result.ValidDeviations()), minValidPoints)
	}

	lowRank := s.settings.Float(models.ConfigKeyDefaultLow, 16)
	highRank := s.settings.Float(models.ConfigKeyDefaultHigh, 84)
	lowBand, highBand, _ := result.Bands(lowRank, highRank)

	snap := &Snapshot{
		Dates:         make([]string, len(result.Dates)),
		Prices:        result.Prices,
		MA200:         result.MA,
		PctDiff:       result.PctDiff,
		Percentiles:   Percentiles{P16: lowBand, P84: highBand},
		PreviousClose: result.PreviousClose,
		LastUpdated:   time.Now().UTC(),
	}
	for i, d := range result.Dates {
		snap.Dates[i] = d.Format("2006-01-02")
	}

	if err := s.putSnapshot(symbol, snap); err != nil {
		// A cache write failure is logged but does not discard the
		// freshly computed data.
		log.Printf("Error updating series cache for %s: %v", symbol, err)
	}
	return snap, nil
}

func (s *StockService) putSnapshot(symbol string, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	row := models.SeriesCache{
		Symbol:     symbol,
		LastFetch:  time.Now().UTC(),
		SeriesJSON: string(data),
	}
	if price, ok := snap.LastPrice(); ok {
		row.LastPrice = decimal.NewFromFloat(price)
	}
	if n := len(snap.MA200); n > 0 && snap.MA200[n-1] != nil {
		row.MAValue = decimal.NullDecimal{
			Decimal: decimal.NewFromFloat(*snap.MA200[n-1]),
			Valid:   true,
		}
	}
	return s.db.Save(&row).Error
}

// GetSnapshot returns a snapshot no older than maxAge, refreshing from the
// upstream provider on a miss. When the refresh fails and allowStale is
// set, the last known snapshot is returned with stale=true so batch
// consumers can degrade gracefully instead of failing hard.
func (s *StockService) GetSnapshot(ctx context.Context, symbol string, maxAge time.Duration, allowStale bool) (snap *Snapshot, stale bool, err error) {
	if snap := s.GetFreshSnapshot(symbol, maxAge); snap != nil {
		log.Printf("Using cached data for %s", symbol)
		return snap, false, nil
	}

	snap, err = s.RefreshSnapshot(ctx, symbol)
	if err == nil {
		return snap, false, nil
	}

	if allowStale {
		if stale := s.GetStaleSnapshot(symbol); stale != nil {
			log.Printf("Fetch failed for %s, serving stale cache: %v", symbol, err)
			return stale, true, nil
		}
	}
	return nil, false, err
}

// defaultCacheHours is the cache TTL used when no config-table row
// overrides it: the CACHE_HOURS environment value, falling back to 1h.
func defaultCacheHours() int {
	if config.AppConfig != nil && config.AppConfig.CacheHours > 0 {
		return config.AppConfig.CacheHours
	}
	return 1
}

// GetStockData returns the period-filtered chart payload for the read API.
func (s *StockService) GetStockData(ctx context.Context, symbol, period string) (*Snapshot, error) {
	maxAge := time.Duration(s.settings.Int(models.ConfigKeyCacheHours, defaultCacheHours())) * time.Hour
	snap, _, err := s.GetSnapshot(ctx, symbol, maxAge, false)
	if err != nil {
		return nil, err
	}
	return filterByPeriod(snap, period), nil
}

// filterByPeriod trims a full-history snapshot to the requested window.
// Percentile bands are kept from the full history: they describe the
// symbol's long-run distribution, not the displayed slice.
func filterByPeriod(snap *Snapshot, period string) *Snapshot {
	if period == "max" {
		return snap
	}

	years := int(period[0] - '0')
	cutoff := time.Now().UTC().AddDate(0, 0, -years*365).Format("2006-01-02")

	start := len(snap.Dates)
	for i, d := range snap.Dates {
		if d >= cutoff {
			start = i
			break
		}
	}

	return &Snapshot{
		Dates:         snap.Dates[start:],
		Prices:        snap.Prices[start:],
		MA200:         snap.MA200[start:],
		PctDiff:       snap.PctDiff[start:],
		Percentiles:   snap.Percentiles,
		PreviousClose: snap.PreviousClose,
		LastUpdated:   snap.LastUpdated,
	}
}

package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"sort"
	"time"

	"stock_alerts_backend/services/analysis"
)

const defaultBaseURL = "https://api.tiingo.com"

// Typed permanent failures. Neither is retried.
var (
	// ErrNoData means the upstream has no series for the symbol (unknown
	// ticker or empty payload).
	ErrNoData = errors.New("no data available for symbol")
	// ErrBadResponse means the upstream answered with a payload we could
	// not use (malformed JSON, missing close prices).
	ErrBadResponse = errors.New("malformed response from market data provider")
)

// Client fetches daily price history from the Tiingo API. It owns the
// retry/backoff policy for transient upstream failures and nothing else:
// no cache or store access happens here.
type Client struct {
	apiToken   string
	baseURL    string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	sleep      func(time.Duration) // injectable for tests
}

// NewClient creates a market data client with the standard retry policy:
// 3 attempts, exponential backoff starting at 1s with jitter up to 25%.
func NewClient(apiToken string) *Client {
	return &Client{
		apiToken:   apiToken,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxRetries: 3,
		baseDelay:  time.Second,
		sleep:      time.Sleep,
	}
}

type tiingoPrice struct {
	Date     string   `json:"date"`
	Close    float64  `json:"close"`
	AdjClose *float64 `json:"adjClose"`
}

// FetchHistoricalData fetches the daily close series for a symbol over the
// given period ("1y", "2y", "3y", "5y", "max"). The returned candles are
// ordered oldest-first.
func (c *Client) FetchHistoricalData(ctx context.Context, symbol, period string) ([]analysis.Candle, error) {
	endDate := time.Now().UTC()
	startDate := endDate.AddDate(0, 0, -periodDays(period))

	url := fmt.Sprintf("%s/tiingo/daily/%s/prices?startDate=%s&endDate=%s",
		c.baseURL, symbol,
		startDate.Format("2006-01-02"), endDate.Format("2006-01-02"))

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		start := time.Now()
		candles, retryable, err := c.fetchOnce(ctx, url, symbol)
		latency := time.Since(start)

		if err == nil {
			log.Printf("Fetched %d data points for %s (attempt %d/%d, %v)",
				len(candles), symbol, attempt, c.maxRetries, latency)
			return candles, nil
		}

		log.Printf("Fetch failed for %s (attempt %d/%d, %v): %v",
			symbol, attempt, c.maxRetries, latency, err)

		if !retryable {
			return nil, err
		}
		lastErr = err

		if attempt < c.maxRetries {
			backoff := c.backoffDelay(attempt)
			log.Printf("Backing off %v before retrying %s", backoff, symbol)
			c.sleep(backoff)
		}
	}

	return nil, fmt.Errorf("fetch for %s failed after %d attempts: %w", symbol, c.maxRetries, lastErr)
}

// fetchOnce performs a single upstream request. The second return value
// reports whether the failure is transient and worth retrying.
func (c *Client) fetchOnce(ctx context.Context, url, symbol string) ([]analysis.Candle, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+c.apiToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network errors and timeouts are transient.
		return nil, true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, fmt.Errorf("rate limited (429)")
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("server error (%d)", resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, fmt.Errorf("%w: %s", ErrNoData, symbol)
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("client error (%d) for %s", resp.StatusCode, symbol)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response: %w", err)
	}

	var prices []tiingoPrice
	if err := json.Unmarshal(body, &prices); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if len(prices) == 0 {
		return nil, false, fmt.Errorf("%w: %s", ErrNoData, symbol)
	}

	candles := make([]analysis.Candle, 0, len(prices))
	for _, p := range prices {
		date, err := parseTiingoDate(p.Date)
		if err != nil {
			return nil, false, fmt.Errorf("%w: bad date %q", ErrBadResponse, p.Date)
		}
		close := p.Close
		if p.AdjClose != nil {
			close = *p.AdjClose
		}
		candles = append(candles, analysis.Candle{Date: date, Close: close})
	}

	sort.Slice(candles, func(i, j int) bool { return candles[i].Date.Before(candles[j].Date) })
	return candles, false, nil
}

// backoffDelay doubles per attempt (1s, 2s, 4s) with jitter up to 25%.
func (c *Client) backoffDelay(attempt int) time.Duration {
	base := c.baseDelay << (attempt - 1)
	jitter := time.Duration(rand.Int63n(int64(base) / 4))
	return base + jitter
}

func periodDays(period string) int {
	switch period {
	case "1y":
		return 365
	case "2y":
		return 730
	case "3y":
		return 1095
	case "5y":
		return 1825
	default: // max: 10 years
		return 3650
	}
}

func parseTiingoDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

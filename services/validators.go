package services

import (
	"fmt"
	"regexp"
	"strings"
)

// Validation bounds for user-supplied input.
const (
	MaxTickerLength      = 10
	MaxTickersPerCommand = 50
)

var (
	tickerPattern    = regexp.MustCompile(`^[A-Z0-9.-]{1,10}$`)
	allDigitsPattern = regexp.MustCompile(`^[0-9]+$`)
	repeatedPunct    = regexp.MustCompile(`(\.\.|--)`)
	onlyPunct        = regexp.MustCompile(`^[.-]+$`)
	userIDPattern    = regexp.MustCompile(`^[0-9]{5,15}$`)
)

var validPeriods = map[string]bool{"1y": true, "3y": true, "5y": true, "max": true}

// ValidateTicker normalizes and validates a ticker symbol: bounded length,
// alphanumeric plus dot/dash, not purely numeric or punctuation.
func ValidateTicker(ticker string) (string, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return "", fmt.Errorf("ticker symbol cannot be empty")
	}
	if len(ticker) > MaxTickerLength {
		return "", fmt.Errorf("ticker symbol too long (max %d characters)", MaxTickerLength)
	}
	if !tickerPattern.MatchString(ticker) {
		return "", fmt.Errorf("ticker symbol must contain only letters, numbers, dots, and dashes")
	}
	if allDigitsPattern.MatchString(ticker) {
		return "", fmt.Errorf("ticker symbol cannot be all numbers")
	}
	if onlyPunct.MatchString(ticker) || repeatedPunct.MatchString(ticker) {
		return "", fmt.Errorf("invalid ticker symbol format")
	}
	return ticker, nil
}

// ValidateTickerList validates each ticker in a command argument list and
// rejects duplicates. Returns the normalized list.
func ValidateTickerList(tickers []string) ([]string, error) {
	if len(tickers) == 0 {
		return nil, fmt.Errorf("at least one ticker symbol is required")
	}
	if len(tickers) > MaxTickersPerCommand {
		return nil, fmt.Errorf("too many tickers (max %d allowed)", MaxTickersPerCommand)
	}

	seen := make(map[string]bool, len(tickers))
	validated := make([]string, 0, len(tickers))
	for _, t := range tickers {
		ticker, err := ValidateTicker(t)
		if err != nil {
			return nil, fmt.Errorf("invalid ticker %q: %w", t, err)
		}
		if seen[ticker] {
			return nil, fmt.Errorf("duplicate ticker symbol: %s", ticker)
		}
		seen[ticker] = true
		validated = append(validated, ticker)
	}
	return validated, nil
}

// ValidatePeriod checks a chart period against the supported set.
func ValidatePeriod(period string) (string, error) {
	period = strings.ToLower(strings.TrimSpace(period))
	if !validPeriods[period] {
		return "", fmt.Errorf("invalid period, must be one of: 1y, 3y, 5y, max")
	}
	return period, nil
}

// ValidateUserID checks a Telegram user ID (numeric, sane length).
func ValidateUserID(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if !userIDPattern.MatchString(userID) {
		return "", fmt.Errorf("invalid user ID")
	}
	return userID, nil
}

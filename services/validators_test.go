package services

import (
	"strings"
	"testing"
)

func TestValidateTicker(t *testing.T) {
	valid := map[string]string{
		"aapl":    "AAPL",
		" MSFT ":  "MSFT",
		"BRK.B":   "BRK.B",
		"BF-B":    "BF-B",
		"A":       "A",
		"ABC123":  "ABC123",
		"1COV.DE": "1COV.DE",
	}
	for input, want := range valid {
		got, err := ValidateTicker(input)
		if err != nil {
			t.Fatalf("ValidateTicker(%q) unexpected error: %v", input, err)
		}
		if got != want {
			t.Fatalf("ValidateTicker(%q) = %q, want %q", input, got, want)
		}
	}

	invalid := []string{
		"",
		"   ",
		"TOOLONGSYMBOL",
		"12345",
		"AA PL",
		"AAPL!",
		"...",
		"--",
		"A..B",
		"A--B",
		"<AAPL>",
	}
	for _, input := range invalid {
		if _, err := ValidateTicker(input); err == nil {
			t.Fatalf("ValidateTicker(%q) expected error", input)
		}
	}
}

func TestValidateTickerList(t *testing.T) {
	got, err := ValidateTickerList([]string{"aapl", "msft"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != "AAPL" || got[1] != "MSFT" {
		t.Fatalf("unexpected normalized list: %v", got)
	}

	if _, err := ValidateTickerList(nil); err == nil {
		t.Fatal("expected error for empty list")
	}
	if _, err := ValidateTickerList([]string{"AAPL", "aapl"}); err == nil {
		t.Fatal("expected error for duplicates after normalization")
	}

	many := make([]string, MaxTickersPerCommand+1)
	for i := range many {
		many[i] = "T" + strings.Repeat("A", i%5)
	}
	if _, err := ValidateTickerList(many); err == nil {
		t.Fatal("expected error for oversized list")
	}
}

func TestValidatePeriod(t *testing.T) {
	for _, p := range []string{"1y", "3y", "5y", "max", " MAX "} {
		if _, err := ValidatePeriod(p); err != nil {
			t.Fatalf("ValidatePeriod(%q) unexpected error: %v", p, err)
		}
	}
	for _, p := range []string{"", "2y", "10y", "all", "week"} {
		if _, err := ValidatePeriod(p); err == nil {
			t.Fatalf("ValidatePeriod(%q) expected error", p)
		}
	}
}

func TestValidateUserID(t *testing.T) {
	if _, err := ValidateUserID("12345678"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, id := range []string{"", "abc", "123", "1234567890123456", "12345678x"} {
		if _, err := ValidateUserID(id); err == nil {
			t.Fatalf("ValidateUserID(%q) expected error", id)
		}
	}
}

func TestSettingsFallbacks(t *testing.T) {
	db := newTestDB(t)
	settings := NewSettings(db)

	if got := settings.Int("missing_key", 7); got != 7 {
		t.Fatalf("expected default 7, got %d", got)
	}
	if err := settings.Set("cache_hours", "3"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := settings.Int("cache_hours", 1); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}

	settings.Set("cache_hours", "garbage")
	if got := settings.Int("cache_hours", 1); got != 1 {
		t.Fatalf("expected fallback on bad value, got %d", got)
	}

	settings.Set("default_threshold_low", "10.5")
	if got := settings.Float("default_threshold_low", 16); got != 10.5 {
		t.Fatalf("expected 10.5, got %v", got)
	}
}

package services

import (
	"strings"
	"testing"

	"stock_alerts_backend/models"
)

func TestFormatDigestSectionsAndOrder(t *testing.T) {
	svc := NewNotificationService(nil, nil)

	items := []AlertItem{
		{Symbol: "ZZZ", Price: 50, Deviation: 12.5, BandHigh: 10, Direction: DirectionHigh},
		{Symbol: "AAA", Price: 80, Deviation: -14.2, BandLow: -12, Direction: DirectionLow},
		{Symbol: "OWN", Price: 120, Deviation: 15.1, BandHigh: 11, Direction: DirectionHigh, IsOwned: true},
	}
	text := svc.formatDigest(items)

	posOwned := strings.Index(text, "Your positions")
	posLow := strings.Index(text, "Unusually low")
	posHigh := strings.Index(text, "Unusually high")
	if posOwned < 0 || posLow < 0 || posHigh < 0 {
		t.Fatalf("missing digest sections:\n%s", text)
	}
	if !(posOwned < posLow && posLow < posHigh) {
		t.Fatalf("expected positions, then low, then high:\n%s", text)
	}

	if strings.Index(text, "OWN") > posLow {
		t.Fatalf("expected owned symbol in positions section:\n%s", text)
	}
	for _, symbol := range []string{"AAA", "ZZZ", "OWN"} {
		if !strings.Contains(text, symbol) {
			t.Fatalf("digest missing %s:\n%s", symbol, text)
		}
	}
}

func TestFormatDigestOmitsEmptySections(t *testing.T) {
	svc := NewNotificationService(nil, nil)

	text := svc.formatDigest([]AlertItem{
		{Symbol: "AAA", Price: 80, Deviation: -14.2, BandLow: -12, Direction: DirectionLow},
	})
	if strings.Contains(text, "Your positions") || strings.Contains(text, "Unusually high") {
		t.Fatalf("expected only the low section:\n%s", text)
	}
}

func TestSendDigestWritesAuditRows(t *testing.T) {
	db := newTestDB(t)
	sender := &fakeSender{}
	svc := NewNotificationService(db, sender)

	user := &models.User{ID: "12345678", Name: "Alice", NotificationEnabled: true}
	db.Create(user)
	db.Create(&models.WatchEntry{UserID: user.ID, Symbol: "AAA", ThresholdLow: 16, ThresholdHigh: 84})
	db.Create(&models.WatchEntry{UserID: user.ID, Symbol: "BBB", ThresholdLow: 16, ThresholdHigh: 84})

	items := []AlertItem{
		{Symbol: "AAA", Price: 80, Deviation: -14.2, BandLow: -12, Direction: DirectionLow},
		{Symbol: "BBB", Price: 55, Deviation: 13.0, BandHigh: 11, Direction: DirectionHigh},
	}
	if err := svc.SendDigest(user, items); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sender.messages) != 1 {
		t.Fatalf("expected one batched message, got %d", len(sender.messages))
	}

	var records []models.AlertRecord
	db.Where("user_id = ?", user.ID).Find(&records)
	if len(records) != 2 {
		t.Fatalf("expected audit row per item, got %d", len(records))
	}
	for _, r := range records {
		if r.Status != models.AlertStatusSent {
			t.Fatalf("expected sent status, got %q", r.Status)
		}
	}

	var fresh models.User
	db.Where("id = ?", user.ID).First(&fresh)
	if fresh.LastNotified == nil {
		t.Fatal("expected last_notified stamped")
	}
}

func TestSendDigestEmptyIsNoop(t *testing.T) {
	sender := &fakeSender{}
	svc := NewNotificationService(nil, sender)

	if err := svc.SendDigest(&models.User{ID: "12345678"}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sender.messages) != 0 {
		t.Fatal("expected no message for empty digest")
	}
}

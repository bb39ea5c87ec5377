package scheduler

import (
	"context"
	"log"
	"time"

	"stock_alerts_backend/models"
	"stock_alerts_backend/services"

	"github.com/go-co-op/gocron"
	"gorm.io/gorm"
)

// Retention windows for the weekly cleanup job.
const (
	eventLogRetention    = 90 * 24 * time.Hour
	seriesCacheRetention = 30 * 24 * time.Hour
)

// Scheduler manages the background jobs: the daily alert sweep and the
// weekly storage cleanup.
type Scheduler struct {
	cron    *gocron.Scheduler
	db      *gorm.DB
	checker *services.AlertChecker
}

// NewScheduler creates a new scheduler instance
func NewScheduler(db *gorm.DB, checker *services.AlertChecker) *Scheduler {
	return &Scheduler{
		cron:    gocron.NewScheduler(time.UTC),
		db:      db,
		checker: checker,
	}
}

// Start registers and starts all scheduled jobs.
func (s *Scheduler) Start(checkTime string) {
	log.Println("Starting scheduler...")

	if checkTime == "" {
		checkTime = "16:30"
	}

	// Daily alert sweep after US market close. The checker itself decides
	// whether the day is a delivery day.
	s.cron.Every(1).Day().At(checkTime).Do(func() {
		s.runAlertCheck()
	})

	// Cleanup old data weekly on Sunday at 01:00
	s.cron.Every(1).Week().Sunday().At("01:00").Do(func() {
		s.cleanupOldData()
	})

	s.cron.StartAsync()
	log.Println("Scheduler started successfully")
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("Scheduler stopped")
}

func (s *Scheduler) runAlertCheck() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	summary, err := s.checker.RunCheck(ctx)
	if err != nil {
		log.Printf("Scheduled alert check failed: %v", err)
		return
	}
	log.Printf("Scheduled alert check done: %+v", summary)
}

// cleanupOldData trims aged event logs and series cache rows for symbols
// nobody fetched recently (typically symbols everyone stopped watching).
func (s *Scheduler) cleanupOldData() {
	log.Println("Running weekly cleanup...")

	res := s.db.Where("timestamp < ?", time.Now().Add(-eventLogRetention)).
		Delete(&models.EventLog{})
	if res.Error != nil {
		log.Printf("Error cleaning event logs: %v", res.Error)
	} else {
		log.Printf("Deleted %d old event log rows", res.RowsAffected)
	}

	res = s.db.Where("last_fetch < ?", time.Now().Add(-seriesCacheRetention)).
		Delete(&models.SeriesCache{})
	if res.Error != nil {
		log.Printf("Error cleaning series cache: %v", res.Error)
	} else {
		log.Printf("Deleted %d stale series cache rows", res.RowsAffected)
	}

	log.Println("Weekly cleanup completed")
}

package services

import (
	"fmt"
	"testing"

	"stock_alerts_backend/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens an isolated in-memory database and runs migrations.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := models.MigrateUserModels(db); err != nil {
		t.Fatalf("user migrations failed: %v", err)
	}
	if err := models.MigrateStockModels(db); err != nil {
		t.Fatalf("stock migrations failed: %v", err)
	}
	if err := models.MigrateAdminModels(db); err != nil {
		t.Fatalf("admin migrations failed: %v", err)
	}
	return db
}

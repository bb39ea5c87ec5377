package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config holds every process-level setting. Runtime tunables (cache TTL,
// default thresholds) live in the config database table instead, so they
// can change without a restart.
type Config struct {
	Port                  string
	DatabaseURL           string
	TelegramBotToken      string
	TelegramWebhookSecret string
	TiingoAPIToken        string
	AdminUsername         string
	AdminPassword         string
	JWTSecret             string
	RequestDelaySeconds   float64
	CacheHours            int
	AlertCheckTime        string
	Environment           string
}

var AppConfig *Config
var DB *gorm.DB

// LoadConfig loads environment variables into a validated Config.
// Missing required values are a startup failure, not a runtime surprise.
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Port:                  getEnv("PORT", "8080"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		TelegramBotToken:      os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramWebhookSecret: os.Getenv("TELEGRAM_WEBHOOK_SECRET"),
		TiingoAPIToken:        os.Getenv("TIINGO_API_TOKEN"),
		AdminUsername:         os.Getenv("ADMIN_USERNAME"),
		AdminPassword:         os.Getenv("ADMIN_PASSWORD"),
		JWTSecret:             getEnv("JWT_SECRET", ""),
		RequestDelaySeconds:   getEnvFloat("REQUEST_DELAY_SECONDS", 3.0),
		CacheHours:            getEnvInt("CACHE_HOURS", 1),
		AlertCheckTime:        getEnv("ALERT_CHECK_TIME", "16:30"),
		Environment:           getEnv("ENVIRONMENT", "development"),
	}

	required := map[string]string{
		"DATABASE_URL":       cfg.DatabaseURL,
		"TELEGRAM_BOT_TOKEN": cfg.TelegramBotToken,
		"TIINGO_API_TOKEN":   cfg.TiingoAPIToken,
	}
	var missing []string
	for key, value := range required {
		if value == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %v", missing)
	}

	// An empty JWT secret would let anyone mint valid admin tokens.
	if (cfg.AdminUsername != "" || cfg.AdminPassword != "") && cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required when admin credentials are configured")
	}

	AppConfig = cfg
	return cfg, nil
}

// InitDB initializes the database connection
func InitDB() (*gorm.DB, error) {
	var logLevel logger.LogLevel
	if AppConfig.Environment == "production" {
		logLevel = logger.Error
	} else {
		logLevel = logger.Warn
	}

	db, err := gorm.Open(postgres.Open(AppConfig.DatabaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	log.Println("Database connection verified successfully")
	DB = db
	return db, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: invalid value for %s (%q), using default %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("Warning: invalid value for %s (%q), using default %g", key, value, defaultValue)
		return defaultValue
	}
	return f
}

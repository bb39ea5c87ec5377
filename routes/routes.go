package routes

import (
	"log"
	"time"

	"stock_alerts_backend/config"
	"stock_alerts_backend/controllers"
	"stock_alerts_backend/middleware"
	"stock_alerts_backend/services"
	"stock_alerts_backend/services/marketdata"
	"stock_alerts_backend/services/telegram"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// App holds the wired service graph. Routes and the scheduler share it.
type App struct {
	Checker *services.AlertChecker
	Webhook *controllers.WebhookController
}

// SetupRoutes wires services and registers all API routes.
func SetupRoutes(router *gin.Engine, db *gorm.DB, cfg *config.Config) *App {
	// Shared services
	fetcher := marketdata.NewClient(cfg.TiingoAPIToken)
	sender := telegram.NewSender(cfg.TelegramBotToken)
	stockService := services.NewStockService(db, fetcher)
	watchlistService := services.NewWatchlistService(db)
	notificationService := services.NewNotificationService(db, sender)
	checker := services.NewAlertChecker(db, stockService, watchlistService, notificationService)

	// Controllers
	webhookController := controllers.NewWebhookController(db, watchlistService, sender, cfg.TelegramWebhookSecret)
	dataController := controllers.NewDataController(stockService)
	adminController := controllers.NewAdminController(db, checker, cfg.JWTSecret)

	// Telegram webhook
	router.POST("/webhook", webhookController.HandleUpdate)

	// Public read API, rate limited per IP
	dataLimiter := middleware.NewRateLimiter(60, time.Minute)
	data := router.Group("/data", middleware.RateLimitMiddleware(dataLimiter))
	{
		data.GET("/:symbol/:period", dataController.GetStockData)
	}

	// Admin JSON API. Without a signing secret the surface stays
	// unregistered: empty-key HS256 tokens are forgeable.
	if cfg.JWTSecret == "" {
		log.Println("Admin API disabled: JWT_SECRET not set")
	} else {
		loginLimiter := middleware.NewRateLimiter(5, 15*time.Minute)
		admin := router.Group("/admin")
		{
			admin.POST("/login", middleware.RateLimitMiddleware(loginLimiter), adminController.Login)

			protected := admin.Group("", middleware.JWTAuthMiddleware(cfg.JWTSecret))
			{
				protected.GET("/stats", adminController.Stats)
				protected.GET("/alerts", adminController.Alerts)
				protected.GET("/logs", adminController.Logs)
				protected.POST("/check", adminController.TriggerCheck)
			}
		}
	}

	return &App{Checker: checker, Webhook: webhookController}
}

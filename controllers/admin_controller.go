package controllers

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"stock_alerts_backend/models"
	"stock_alerts_backend/services"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

// AdminController serves the JWT-protected operations API: login,
// aggregate stats, audit trails and a manual check trigger.
type AdminController struct {
	db        *gorm.DB
	checker   *services.AlertChecker
	jwtSecret string
}

// NewAdminController creates the admin controller.
func NewAdminController(db *gorm.DB, checker *services.AlertChecker, jwtSecret string) *AdminController {
	return &AdminController{db: db, checker: checker, jwtSecret: jwtSecret}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login handles POST /admin/login and issues a 24h token.
func (c *AdminController) Login(ctx *gin.Context) {
	var req loginRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	var admin models.AdminUser
	err := c.db.Where("username = ?", req.Username).First(&admin).Error
	if err != nil || !admin.CheckPassword(req.Password) {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	claims := jwt.MapClaims{
		"username": admin.Username,
		"exp":      time.Now().Add(24 * time.Hour).Unix(),
		"iat":      time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(c.jwtSecret))
	if err != nil {
		log.Printf("Error signing admin token: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"token": signed, "expires_in": 86400})
}

// Stats handles GET /admin/stats with headline counts.
func (c *AdminController) Stats(ctx *gin.Context) {
	var users, activeUsers, entries, symbols, alerts24h int64
	c.db.Model(&models.User{}).Count(&users)
	c.db.Model(&models.User{}).Where("notification_enabled = ?", true).Count(&activeUsers)
	c.db.Model(&models.WatchEntry{}).Count(&entries)
	c.db.Model(&models.WatchEntry{}).Distinct("symbol").Count(&symbols)
	c.db.Model(&models.AlertRecord{}).
		Where("sent_at > ? AND status = ?", time.Now().Add(-24*time.Hour), models.AlertStatusSent).
		Count(&alerts24h)

	ctx.JSON(http.StatusOK, gin.H{
		"users":            users,
		"active_users":     activeUsers,
		"watch_entries":    entries,
		"distinct_symbols": symbols,
		"alerts_sent_24h":  alerts24h,
	})
}

// Alerts handles GET /admin/alerts, the paginated dispatch audit trail.
func (c *AdminController) Alerts(ctx *gin.Context) {
	limit := queryInt(ctx, "limit", 50, 500)
	offset := queryInt(ctx, "offset", 0, 1<<30)

	query := c.db.Model(&models.AlertRecord{}).Order("sent_at DESC")
	if status := ctx.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var records []models.AlertRecord
	if err := query.Limit(limit).Offset(offset).Find(&records).Error; err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load alerts"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"alerts": records, "count": len(records)})
}

// Logs handles GET /admin/logs, the event log with optional type filter.
func (c *AdminController) Logs(ctx *gin.Context) {
	limit := queryInt(ctx, "limit", 100, 1000)

	query := c.db.Model(&models.EventLog{}).Order("timestamp DESC")
	if logType := ctx.Query("type"); logType != "" {
		query = query.Where("log_type = ?", logType)
	}

	var logs []models.EventLog
	if err := query.Limit(limit).Find(&logs).Error; err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load logs"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"logs": logs, "count": len(logs)})
}

// TriggerCheck handles POST /admin/check and runs a sweep synchronously.
// The scheduler remains the normal path; this exists for incident
// response and smoke testing after deploys.
func (c *AdminController) TriggerCheck(ctx *gin.Context) {
	runCtx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	summary, err := c.checker.RunCheck(runCtx)
	if err != nil {
		log.Printf("Manual alert check failed: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "summary": summary})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"summary": summary})
}

func queryInt(ctx *gin.Context, name string, def, max int) int {
	v, err := strconv.Atoi(ctx.DefaultQuery(name, strconv.Itoa(def)))
	if err != nil || v < 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}

package controllers

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"stock_alerts_backend/models"
	"stock_alerts_backend/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookController receives Telegram webhook updates. Every request
// passes an ordered gate chain before any state is touched: readiness,
// secret header, body, parse. A request failing an early gate causes
// zero database mutations.
type WebhookController struct {
	db            *gorm.DB
	watchlists    *services.WatchlistService
	sender        services.MessageSender
	webhookSecret string
	ready         atomic.Bool
}

// NewWebhookController creates the webhook controller. It starts not
// ready; call SetReady once the database is up.
func NewWebhookController(db *gorm.DB, watchlists *services.WatchlistService, sender services.MessageSender, webhookSecret string) *WebhookController {
	return &WebhookController{
		db:            db,
		watchlists:    watchlists,
		sender:        sender,
		webhookSecret: webhookSecret,
	}
}

// SetReady marks the controller able to process updates.
func (c *WebhookController) SetReady() {
	c.ready.Store(true)
}

type telegramUpdate struct {
	UpdateID *int64 `json:"update_id"`
	Message  *struct {
		From *struct {
			ID        int64  `json:"id"`
			FirstName string `json:"first_name"`
			Username  string `json:"username"`
		} `json:"from"`
		Chat *struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Text string `json:"text"`
	} `json:"message"`
}

// HandleUpdate processes one webhook POST from Telegram.
func (c *WebhookController) HandleUpdate(ctx *gin.Context) {
	if !c.ready.Load() {
		ctx.String(http.StatusServiceUnavailable, "")
		return
	}

	header := ctx.GetHeader(secretTokenHeader)
	if header == "" {
		c.logSecurity("webhook request missing secret token header", ctx.ClientIP())
		ctx.String(http.StatusForbidden, "")
		return
	}
	if subtle.ConstantTimeCompare([]byte(header), []byte(c.webhookSecret)) != 1 {
		c.logSecurity("webhook request with invalid secret token", ctx.ClientIP())
		ctx.String(http.StatusForbidden, "")
		return
	}

	body, err := io.ReadAll(ctx.Request.Body)
	if err != nil || len(body) == 0 {
		ctx.String(http.StatusBadRequest, "")
		return
	}

	var update telegramUpdate
	if err := json.Unmarshal(body, &update); err != nil || update.UpdateID == nil {
		ctx.String(http.StatusBadRequest, "")
		return
	}

	// Non-message updates (edits, channel posts) are acknowledged and
	// dropped so Telegram does not redeliver them.
	if update.Message == nil || update.Message.From == nil || update.Message.Chat == nil {
		ctx.String(http.StatusOK, "")
		return
	}

	c.processMessage(&update)
	ctx.String(http.StatusOK, "")
}

func (c *WebhookController) processMessage(update *telegramUpdate) {
	msg := update.Message
	// Channel and anonymous senders carry negative or service IDs; they
	// cannot hold a watchlist, so the update is dropped after the ack.
	userID, err := services.ValidateUserID(strconv.FormatInt(msg.From.ID, 10))
	if err != nil {
		log.Printf("Dropping update %d: sender id %d is not a user", *update.UpdateID, msg.From.ID)
		return
	}
	name := msg.From.FirstName
	if name == "" {
		name = msg.From.Username
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" || !strings.HasPrefix(text, "/") {
		return
	}

	user, err := c.watchlists.UpsertUser(userID, name)
	if err != nil {
		log.Printf("Error upserting user %s: %v", userID, err)
		return
	}

	fields := strings.Fields(text)
	// Group chats deliver commands as /cmd@botname.
	command := strings.ToLower(fields[0])
	if i := strings.Index(command, "@"); i > 0 {
		command = command[:i]
	}
	args := fields[1:]

	reply := c.dispatch(user, command, args)
	if reply == "" {
		return
	}
	if err := c.sender.SendMessage(userID, reply); err != nil {
		log.Printf("Error replying to %s: %v", userID, err)
	}
}

func (c *WebhookController) dispatch(user *models.User, command string, args []string) string {
	switch command {
	case "/start":
		return fmt.Sprintf("Hello %s! I watch stock prices and alert you when they reach "+
			"unusually high or low levels versus their 200-day average.\n\n"+
			"Use /add SYMBOL to start watching a stock, or /help for all commands.", user.Name)
	case "/help":
		return helpText
	case "/list":
		return c.handleList(user)
	case "/add":
		return c.handleAdd(user, args)
	case "/remove":
		return c.handleRemove(user, args)
	case "/own":
		return c.handleOwn(user, args, true)
	case "/unown":
		return c.handleOwn(user, args, false)
	case "/mute":
		return c.handleNotifications(user, false)
	case "/unmute":
		return c.handleNotifications(user, true)
	default:
		return "Unknown command. Use /help to see what I can do."
	}
}

const helpText = `<b>Commands</b>
/add SYMBOL [SYMBOL...] - watch stocks
/remove SYMBOL [SYMBOL...] - stop watching
/list - show your watchlist
/own SYMBOL [SYMBOL...] - mark as a position you hold
/unown SYMBOL [SYMBOL...] - clear the position mark
/mute - pause all alerts
/unmute - resume alerts`

func (c *WebhookController) handleAdd(user *models.User, args []string) string {
	symbols, err := services.ValidateTickerList(args)
	if err != nil {
		return "Could not add: " + err.Error()
	}

	result, err := c.watchlists.AddSymbols(user, symbols)
	if err != nil {
		log.Printf("Error adding symbols for %s: %v", user.ID, err)
		return "Something went wrong adding those symbols. Please try again."
	}

	var b strings.Builder
	if len(result.Added) > 0 {
		b.WriteString("Now watching: " + strings.Join(result.Added, ", ") + "\n")
	}
	if len(result.Existing) > 0 {
		b.WriteString("Already watching: " + strings.Join(result.Existing, ", ") + "\n")
	}
	for symbol, reason := range result.Rejected {
		b.WriteString(fmt.Sprintf("Could not add %s: %s\n", symbol, reason))
	}
	return strings.TrimSpace(b.String())
}

func (c *WebhookController) handleRemove(user *models.User, args []string) string {
	symbols, err := services.ValidateTickerList(args)
	if err != nil {
		return "Could not remove: " + err.Error()
	}

	removed, missing, err := c.watchlists.RemoveSymbols(user.ID, symbols)
	if err != nil {
		log.Printf("Error removing symbols for %s: %v", user.ID, err)
		return "Something went wrong removing those symbols. Please try again."
	}

	var b strings.Builder
	if len(removed) > 0 {
		b.WriteString("Stopped watching: " + strings.Join(removed, ", ") + "\n")
	}
	if len(missing) > 0 {
		b.WriteString("Not on your watchlist: " + strings.Join(missing, ", ") + "\n")
	}
	return strings.TrimSpace(b.String())
}

func (c *WebhookController) handleList(user *models.User) string {
	items, err := c.watchlists.List(user.ID)
	if err != nil {
		log.Printf("Error listing watchlist for %s: %v", user.ID, err)
		return "Something went wrong loading your watchlist. Please try again."
	}
	if len(items) == 0 {
		return "Your watchlist is empty. Use /add SYMBOL to start watching a stock."
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("<b>Your watchlist</b> (%d/%d)\n", len(items), user.MaxStocks))
	for _, item := range items {
		b.WriteString("\n" + item.Symbol)
		if item.IsOwned {
			b.WriteString(" 💼")
		}
		if item.LastPrice != nil {
			b.WriteString(fmt.Sprintf(" $%.2f", *item.LastPrice))
		}
		if item.LastDeviation != nil {
			b.WriteString(fmt.Sprintf(" (%+.1f%% vs 200d)", *item.LastDeviation))
		}
	}
	return b.String()
}

func (c *WebhookController) handleOwn(user *models.User, args []string, owned bool) string {
	symbols, err := services.ValidateTickerList(args)
	if err != nil {
		return "Could not update: " + err.Error()
	}

	updated, missing, err := c.watchlists.SetOwned(user.ID, symbols, owned)
	if err != nil {
		log.Printf("Error updating owned flags for %s: %v", user.ID, err)
		return "Something went wrong. Please try again."
	}

	var b strings.Builder
	if len(updated) > 0 {
		verb := "Marked as owned"
		if !owned {
			verb = "No longer marked as owned"
		}
		b.WriteString(verb + ": " + strings.Join(updated, ", ") + "\n")
	}
	if len(missing) > 0 {
		b.WriteString("Not on your watchlist: " + strings.Join(missing, ", ") + "\n")
	}
	return strings.TrimSpace(b.String())
}

func (c *WebhookController) handleNotifications(user *models.User, enabled bool) string {
	if err := c.watchlists.SetNotifications(user.ID, enabled); err != nil {
		log.Printf("Error toggling notifications for %s: %v", user.ID, err)
		return "Something went wrong. Please try again."
	}
	if enabled {
		return "Alerts resumed."
	}
	return "Alerts paused. Use /unmute to resume."
}

func (c *WebhookController) logSecurity(message, clientIP string) {
	row := models.EventLog{
		LogType: "security",
		Message: fmt.Sprintf("%s (ip=%s)", message, clientIP),
	}
	if err := c.db.Create(&row).Error; err != nil {
		log.Printf("Error writing security log: %v", err)
	}
}

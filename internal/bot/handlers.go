package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/ajit-kumar014/price-tracker-telegram/internal/fetcher"
	"github.com/ajit-kumar014/price-tracker-telegram/internal/models"
	"github.com/ajit-kumar014/price-tracker-telegram/internal/monitor"
	"github.com/ajit-kumar014/price-tracker-telegram/internal/scraper"
	"github.com/ajit-kumar014/price-tracker-telegram/internal/storage"

	"github.com/PuerkitoBio/goquery"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Handler wires Telegram commands to the store and the monitor.
type Handler struct {
	api      *tgbotapi.BotAPI
	store    storage.Store
	monitor  *monitor.Monitor
	registry *scraper.Registry
	fetch    *fetcher.Fetcher
	chatID   int64 // authorized chat; zero disables the check
}

func NewHandler(api *tgbotapi.BotAPI, store storage.Store, mon *monitor.Monitor, registry *scraper.Registry, fetch *fetcher.Fetcher, chatID int64) *Handler {
	return &Handler{
		api:      api,
		store:    store,
		monitor:  mon,
		registry: registry,
		fetch:    fetch,
		chatID:   chatID,
	}
}

// escapeHTML escapes the characters Telegram's HTML parse mode rejects.
func escapeHTML(text string) string {
	text = strings.ReplaceAll(text, "&", "&amp;")
	text = strings.ReplaceAll(text, "<", "&lt;")
	text = strings.ReplaceAll(text, ">", "&gt;")
	return text
}

// Run consumes Telegram updates until ctx is cancelled.
func (h *Handler) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := h.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			h.api.StopReceivingUpdates()
			log.Println("bot: update loop stopping")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			h.dispatch(ctx, update.Message)
		}
	}
}

func (h *Handler) dispatch(ctx context.Context, message *tgbotapi.Message) {
	parts := strings.Fields(message.Text)
	if len(parts) == 0 {
		return
	}

	command := strings.ToLower(parts[0])
	// Strip @botname from commands sent in groups.
	if idx := strings.Index(command, "@"); idx > 0 {
		command = command[:idx]
	}

	isPublic := command == "/start" || command == "/help"
	if !isPublic && h.chatID != 0 && message.Chat.ID != h.chatID {
		h.reply(message.Chat.ID, "You are not authorized to use this bot.")
		return
	}

	switch command {
	case "/start", "/help":
		h.handleHelp(message.Chat.ID)
	case "/add":
		h.handleAdd(ctx, message)
	case "/list":
		h.handleList(ctx, message.Chat.ID)
	case "/remove":
		h.handleRemove(ctx, message)
	case "/pause":
		h.handleSetActive(ctx, message, false)
	case "/resume":
		h.handleSetActive(ctx, message, true)
	case "/check":
		h.handleCheck(ctx, message)
	case "/history":
		h.handleHistory(ctx, message)
	case "/stats":
		h.handleStats(ctx, message.Chat.ID)
	default:
		h.reply(message.Chat.ID, "Unknown command. Use /help to see the available commands.")
	}
}

func (h *Handler) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.api.Send(msg); err != nil {
		log.Printf("bot: send reply: %v", err)
	}
}

// replyHTML sends with HTML parse mode, falling back to plain text when
// Telegram rejects the markup.
func (h *Handler) replyHTML(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "HTML"
	if _, err := h.api.Send(msg); err != nil {
		log.Printf("bot: send html reply: %v", err)
		msg.ParseMode = ""
		if _, err := h.api.Send(msg); err != nil {
			log.Printf("bot: send plain reply: %v", err)
		}
	}
}

func (h *Handler) handleHelp(chatID int64) {
	helpText := `🤖 <b>Price Tracker Bot</b>

<b>Available commands:</b>

<b>/add &lt;URL&gt; &lt;target_price&gt;</b> - Track a new product
Example: /add https://www.amazon.com/dp/B0EXAMPLE 899.99

<b>/list</b> - List tracked products

<b>/remove &lt;id&gt;</b> - Stop tracking a product

<b>/pause &lt;id&gt;</b> / <b>/resume &lt;id&gt;</b> - Pause or resume checks

<b>/check</b> - Run a full check cycle now
<b>/check &lt;id&gt;</b> - Check one product now

<b>/history &lt;id&gt; [days]</b> - Show price history (default 30 days)

<b>/stats</b> - Tracker totals

<b>/help</b> - This message
`
	h.replyHTML(chatID, helpText)
}

func (h *Handler) handleAdd(ctx context.Context, message *tgbotapi.Message) {
	parts := strings.Fields(message.Text)
	if len(parts) < 3 {
		h.reply(message.Chat.ID, "❌ Wrong format.\n\nUsage: /add <URL> <target_price>\n\nExample: /add https://www.amazon.com/dp/B0EXAMPLE 899.99")
		return
	}

	url := parts[1]
	targetPrice, err := strconv.ParseFloat(parts[2], 64)
	if err != nil || targetPrice <= 0 {
		h.reply(message.Chat.ID, "❌ Invalid target price. Use a positive number.")
		return
	}

	ext := h.registry.Find(url)
	if ext == nil {
		h.reply(message.Chat.ID, "❌ Unsupported URL. Currently supported stores: Amazon, Mercado Livre.")
		return
	}

	// Fetch once up front to grab the product name; a failure here is
	// not fatal, the first check cycle fills the gaps.
	name := ""
	res := h.fetch.Fetch(ctx, url)
	if res.Status == fetcher.StatusOK {
		if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body)); err == nil {
			name = ext.Title(doc)
		}
	}
	if name == "" {
		name = "Unnamed product"
	}

	userID := ""
	if message.From != nil {
		userID = strconv.FormatInt(message.From.ID, 10)
	}
	product := &models.Product{URL: url, Name: name, UserID: userID, TargetPrice: targetPrice}
	if err := h.store.AddProduct(ctx, product); err != nil {
		if errors.Is(err, storage.ErrDuplicateURL) {
			h.reply(message.Chat.ID, "❌ This product is already being tracked.")
		} else {
			h.reply(message.Chat.ID, fmt.Sprintf("❌ Could not add product: %v", err))
		}
		return
	}

	h.reply(message.Chat.ID, fmt.Sprintf(
		"✅ Product added!\n\nID: %d\nName: %s\nTarget price: %.2f\nURL: %s\n\nFirst check runs on the next cycle, or use /check %d now.",
		product.ID, name, targetPrice, url, product.ID,
	))
}

func (h *Handler) handleList(ctx context.Context, chatID int64) {
	products, err := h.store.ListProducts(ctx)
	if err != nil {
		h.reply(chatID, fmt.Sprintf("❌ Could not list products: %v", err))
		return
	}
	if len(products) == 0 {
		h.reply(chatID, "📋 No products tracked yet. Use /add to start.")
		return
	}

	var response strings.Builder
	response.WriteString("📋 <b>Tracked products:</b>\n\n")
	for _, p := range products {
		response.WriteString(fmt.Sprintf("🆔 <b>ID: %d</b>", p.ID))
		if !p.Active {
			response.WriteString(" ⏸ paused")
		}
		response.WriteString("\n")
		response.WriteString(fmt.Sprintf("📦 %s\n", escapeHTML(p.Name)))

		if p.CurrentPrice > 0 {
			response.WriteString(fmt.Sprintf("💰 <b>Current: %.2f</b>", p.CurrentPrice))
			if p.LowestPrice > 0 {
				response.WriteString(fmt.Sprintf(" (low %.2f / high %.2f)", p.LowestPrice, p.HighestPrice))
			}
			response.WriteString("\n")
			if p.CurrentPrice <= p.TargetPrice {
				response.WriteString(fmt.Sprintf("🎯 Target: %.2f ✅ <b>REACHED</b>\n", p.TargetPrice))
			} else {
				response.WriteString(fmt.Sprintf("🎯 Target: %.2f (%.2f above)\n", p.TargetPrice, p.CurrentPrice-p.TargetPrice))
			}
		} else {
			response.WriteString("💰 <b>Not checked yet</b>\n")
			response.WriteString(fmt.Sprintf("🎯 Target: %.2f\n", p.TargetPrice))
		}

		if !p.LastChecked.IsZero() {
			response.WriteString(fmt.Sprintf("🕐 Last checked: %s\n", p.LastChecked.Format("2006-01-02 15:04")))
		} else {
			response.WriteString("🕐 Last checked: never\n")
		}
		response.WriteString(fmt.Sprintf("🔗 %s\n\n", p.URL))
	}
	h.replyHTML(chatID, response.String())
}

// parseID pulls the product id argument out of a command.
func (h *Handler) parseID(message *tgbotapi.Message, usage string) (int64, bool) {
	parts := strings.Fields(message.Text)
	if len(parts) < 2 {
		h.reply(message.Chat.ID, "❌ Wrong format.\n\nUsage: "+usage)
		return 0, false
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		h.reply(message.Chat.ID, "❌ Invalid ID.")
		return 0, false
	}
	return id, true
}

func (h *Handler) handleRemove(ctx context.Context, message *tgbotapi.Message) {
	id, ok := h.parseID(message, "/remove <id>")
	if !ok {
		return
	}

	product, err := h.store.GetProduct(ctx, id)
	if err != nil {
		h.reply(message.Chat.ID, "❌ Product not found.")
		return
	}
	if err := h.store.SetActive(ctx, id, false); err != nil {
		h.reply(message.Chat.ID, fmt.Sprintf("❌ Could not remove product: %v", err))
		return
	}
	h.reply(message.Chat.ID, fmt.Sprintf("✅ Removed from tracking: %s", product.Name))
}

func (h *Handler) handleSetActive(ctx context.Context, message *tgbotapi.Message, active bool) {
	verb, usage := "paused", "/pause <id>"
	if active {
		verb, usage = "resumed", "/resume <id>"
	}
	id, ok := h.parseID(message, usage)
	if !ok {
		return
	}

	if err := h.store.SetActive(ctx, id, active); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.reply(message.Chat.ID, "❌ Product not found.")
		} else {
			h.reply(message.Chat.ID, fmt.Sprintf("❌ Could not update product: %v", err))
		}
		return
	}
	h.reply(message.Chat.ID, fmt.Sprintf("✅ Product %d %s.", id, verb))
}

func (h *Handler) handleCheck(ctx context.Context, message *tgbotapi.Message) {
	parts := strings.Fields(message.Text)

	// Bare /check triggers a full cycle in the background.
	if len(parts) < 2 {
		h.monitor.TriggerManual()
		h.reply(message.Chat.ID, "⏳ Check cycle queued. It starts as soon as the current one (if any) finishes.")
		return
	}

	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		h.reply(message.Chat.ID, "❌ Invalid ID.")
		return
	}

	waitMsg := tgbotapi.NewMessage(message.Chat.ID, "⏳ Checking price...")
	sent, sendErr := h.api.Send(waitMsg)

	result, err := h.monitor.CheckNow(ctx, id)

	var text string
	switch {
	case errors.Is(err, storage.ErrNotFound):
		text = "❌ Product not found."
	case err != nil:
		text = fmt.Sprintf("❌ Check failed: %v", err)
	case result.Failed():
		text = "❌ Could not get a price this time. See the logs for details; it will be retried on the next cycle."
	default:
		product, _ := h.store.GetProduct(ctx, id)
		text = fmt.Sprintf("📊 Current price: %.2f", *result.NewPrice)
		if result.PreviousPrice != nil {
			text += fmt.Sprintf("\nPrevious price: %.2f", *result.PreviousPrice)
		}
		if product != nil {
			text += fmt.Sprintf("\nTarget price: %.2f", product.TargetPrice)
			if *result.NewPrice <= product.TargetPrice {
				text += "\n\n✅ At or below target!"
			}
		}
	}

	if sendErr == nil {
		edit := tgbotapi.NewEditMessageText(message.Chat.ID, sent.MessageID, text)
		if _, err := h.api.Send(edit); err != nil {
			h.reply(message.Chat.ID, text)
		}
	} else {
		h.reply(message.Chat.ID, text)
	}
}

func (h *Handler) handleHistory(ctx context.Context, message *tgbotapi.Message) {
	id, ok := h.parseID(message, "/history <id> [days]")
	if !ok {
		return
	}

	days := 30
	parts := strings.Fields(message.Text)
	if len(parts) >= 3 {
		if d, err := strconv.Atoi(parts[2]); err == nil && d > 0 {
			days = d
		}
	}

	product, err := h.store.GetProduct(ctx, id)
	if err != nil {
		h.reply(message.Chat.ID, "❌ Product not found.")
		return
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	history, err := h.store.History(ctx, id, since)
	if err != nil {
		h.reply(message.Chat.ID, fmt.Sprintf("❌ Could not load history: %v", err))
		return
	}
	if len(history) == 0 {
		h.reply(message.Chat.ID, fmt.Sprintf("📈 No observations for %s in the last %d days.", product.Name, days))
		return
	}

	var response strings.Builder
	response.WriteString(fmt.Sprintf("📈 <b>%s</b>, last %d days (%d observations)\n\n", escapeHTML(product.Name), days, len(history)))

	// Cap the listing; the totals above still cover everything.
	const maxRows = 25
	start := 0
	if len(history) > maxRows {
		start = len(history) - maxRows
		response.WriteString(fmt.Sprintf("(showing the latest %d)\n", maxRows))
	}
	for _, obs := range history[start:] {
		when := obs.Timestamp.Format("2006-01-02 15:04")
		if obs.Price != nil {
			response.WriteString(fmt.Sprintf("%s  %.2f\n", when, *obs.Price))
		} else {
			response.WriteString(fmt.Sprintf("%s  — %s\n", when, obs.Status))
		}
	}
	h.replyHTML(message.Chat.ID, response.String())
}

func (h *Handler) handleStats(ctx context.Context, chatID int64) {
	stats, err := h.store.Stats(ctx)
	if err != nil {
		h.reply(chatID, fmt.Sprintf("❌ Could not load stats: %v", err))
		return
	}
	h.reply(chatID, fmt.Sprintf(
		"📊 Tracker stats\n\nProducts: %d\nActive: %d\nPrice observations: %d",
		stats.TotalProducts, stats.ActiveProducts, stats.Observations,
	))
}

package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/wishlist/internal/models"
)

// StatsSource serves the conversion reports the admin commands print.
type StatsSource interface {
	StatsSummary(ctx context.Context, rng models.StatsRange) (*models.StatsSummary, error)
	ProductStats(ctx context.Context, rng models.StatsRange) ([]*models.ProductStat, error)
}

// RangeParser turns a command argument into a range bound.
type RangeParser func(raw string, upper bool) (*time.Time, error)

// CommandHandler answers one chat command with a Markdown reply.
type CommandHandler interface {
	Handle(ctx context.Context, args []string) (string, error)
}

// Router dispatches admin chat commands.
type Router struct {
	logger   *logrus.Logger
	handlers map[string]CommandHandler
}

// NewRouter creates a router with /help, /stats and /top registered.
func NewRouter(stats StatsSource, parse RangeParser, logger *logrus.Logger) *Router {
	r := &Router{
		logger:   logger,
		handlers: make(map[string]CommandHandler),
	}
	r.RegisterCommand("help", helpHandler{})
	r.RegisterCommand("stats", &summaryHandler{stats: stats, parse: parse})
	r.RegisterCommand("top", &topHandler{stats: stats})
	return r
}

// RegisterCommand registers a command handler
func (r *Router) RegisterCommand(command string, handler CommandHandler) {
	r.handlers[command] = handler
	r.logger.Debugf("Registered command: %s", command)
}

// Reply runs the command and returns the text to send back.
func (r *Router) Reply(ctx context.Context, command string, args []string) string {
	handler, ok := r.handlers[command]
	if !ok {
		r.logger.WithField("command", command).Debug("Unknown command")
		return "Unknown command. Use /help to see available commands."
	}

	text, err := handler.Handle(ctx, args)
	if err != nil {
		r.logger.WithFields(logrus.Fields{
			"command": command,
			"error":   err,
		}).Error("Command handler failed")
		return "An error occurred while processing your command: " + err.Error()
	}
	return text
}

// HandleMessage answers commands sent to the admin chat and ignores everything else.
func (t *Telegram) HandleMessage(ctx context.Context, router *Router, message *tgbotapi.Message) {
	if message == nil || !message.IsCommand() || message.Chat == nil {
		return
	}
	if message.Chat.ID != t.chatID {
		t.logger.WithField("chat_id", message.Chat.ID).Warn("Ignoring command from foreign chat")
		return
	}

	text := router.Reply(ctx, message.Command(), strings.Fields(message.CommandArguments()))
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.ReplyToMessageID = message.MessageID
	if _, err := t.api.Send(msg); err != nil {
		t.logger.WithError(err).Error("Failed to send command reply")
	}
}

// Listen polls for admin commands until ctx is done.
func (t *Telegram) Listen(ctx context.Context, router *Router) error {
	if _, err := t.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.api.GetUpdatesChan(u)

	t.logger.Info("Telegram admin commands enabled")

	for {
		select {
		case <-ctx.Done():
			t.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.HandleMessage(ctx, router, update.Message)
		}
	}
}

type helpHandler struct{}

func (helpHandler) Handle(context.Context, []string) (string, error) {
	return `*Wishlist admin*

• /stats [from] [to] - adds, conversions and revenue
• /top [n] - most saved products (default 10)

_Dates: YYYY-MM-DD_`, nil
}

type summaryHandler struct {
	stats StatsSource
	parse RangeParser
}

func (h *summaryHandler) Handle(ctx context.Context, args []string) (string, error) {
	var rng models.StatsRange
	var err error
	if len(args) > 0 {
		if rng.From, err = h.parse(args[0], false); err != nil {
			return "", fmt.Errorf("invalid from date %q", args[0])
		}
	}
	if len(args) > 1 {
		if rng.To, err = h.parse(args[1], true); err != nil {
			return "", fmt.Errorf("invalid to date %q", args[1])
		}
	}

	summary, err := h.stats.StatsSummary(ctx, rng)
	if err != nil {
		return "", err
	}
	return FormatSummary(summary), nil
}

type topHandler struct {
	stats StatsSource
}

func (h *topHandler) Handle(ctx context.Context, args []string) (string, error) {
	limit := 10
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return "", fmt.Errorf("top needs a positive number, got %q", args[0])
		}
		limit = n
	}

	stats, err := h.stats.ProductStats(ctx, models.StatsRange{})
	if err != nil {
		return "", err
	}
	if len(stats) > limit {
		stats = stats[:limit]
	}
	return FormatTop(stats), nil
}

// FormatSummary renders the Markdown body of a /stats reply.
func FormatSummary(s *models.StatsSummary) string {
	return fmt.Sprintf("*Wishlist stats*\nAdds: %d\nConversions: %d\nRevenue: %.2f\nBuyers: %d\nConversion rate: %.2f%%",
		s.TotalAdds, s.Conversions, s.Revenue, s.PurchasingUsers, s.ConversionRate)
}

// FormatTop renders the Markdown body of a /top reply.
func FormatTop(stats []*models.ProductStat) string {
	if len(stats) == 0 {
		return "No products saved yet."
	}
	var b strings.Builder
	b.WriteString("*Most saved products*")
	for i, s := range stats {
		fmt.Fprintf(&b, "\n%d. product %d: %d adds, %d sold, %.2f", i+1, s.ProductID, s.Adds, s.Conversions, s.Revenue)
	}
	return b.String()
}

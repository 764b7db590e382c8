// Package notify forwards conversion events to a Telegram chat.
package notify

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/wishlist/internal/models"
)

// Telegram wraps the Telegram bot API for outbound alerts.
type Telegram struct {
	api    *tgbotapi.BotAPI
	chatID int64
	logger *logrus.Logger
}

// NewTelegram creates a notifier posting to chatID.
func NewTelegram(token string, chatID int64, logger *logrus.Logger) (*Telegram, error) {
	if chatID == 0 {
		return nil, fmt.Errorf("telegram chat id is required")
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	logger.Infof("Authorized on account %s", api.Self.UserName)

	return &Telegram{
		api:    api,
		chatID: chatID,
		logger: logger,
	}, nil
}

// NotifyConversions posts a summary of the attributed line items.
func (t *Telegram) NotifyConversions(ctx context.Context, notice models.ConversionNotice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(notice.Records) == 0 {
		return nil
	}

	msg := tgbotapi.NewMessage(t.chatID, FormatConversions(notice))
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	t.logger.WithField("order_id", notice.OrderID).Debug("Conversion notice sent")
	return nil
}

// FormatConversions renders the Markdown body of a conversion notice.
func FormatConversions(notice models.ConversionNotice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Wishlist conversion* on order #%d\n", notice.OrderID)
	fmt.Fprintf(&b, "User %d, status `%s`\n", notice.UserID, notice.Status)
	for _, rec := range notice.Records {
		if rec.VariationID > 0 {
			fmt.Fprintf(&b, "• product %d (variation %d) x%d: %.2f\n", rec.ProductID, rec.VariationID, rec.Quantity, rec.ItemTotal)
		} else {
			fmt.Fprintf(&b, "• product %d x%d: %.2f\n", rec.ProductID, rec.Quantity, rec.ItemTotal)
		}
	}
	fmt.Fprintf(&b, "Total: %.2f", notice.Revenue())
	return b.String()
}

package notifier

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram sends alerts through a Telegram bot.
type Telegram struct {
	bot *tgbotapi.BotAPI
}

var _ Notifier = (*Telegram)(nil)

func NewTelegram(bot *tgbotapi.BotAPI) *Telegram {
	return &Telegram{bot: bot}
}

func (t *Telegram) Send(ctx context.Context, chatID int64, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, message)
	msg.DisableWebPagePreview = true
	_, err := t.bot.Send(msg)
	return err
}

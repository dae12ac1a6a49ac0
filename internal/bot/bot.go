package bot

import (
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Init connects to the Telegram API with the given token.
func Init(token string) (*tgbotapi.BotAPI, error) {
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN not configured, check the .env file")
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		if err.Error() == "Unauthorized" {
			return nil, fmt.Errorf("telegram token invalid or expired; get a new one from @BotFather")
		}
		return nil, fmt.Errorf("connect to telegram: %w", err)
	}

	api.Debug = false
	log.Printf("bot: authorized as %s", api.Self.UserName)
	return api, nil
}

package telegram

import (
	"fmt"
	"log"
	"os"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var adminChatIds string = os.Getenv("TG_ADMINS") // comma separated chat ids from env

func EscapeMessage(message string) string {
	r := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"`", "\\`",
	)
	return r.Replace(message)
}

func newBot() *tgbotapi.BotAPI {
	token := os.Getenv("TG_TOKEN")
	if token == "" {
		return nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		log.Println("Error tg bot init", err)
		return nil
	}
	return bot
}

// NotifyOps sends a plain markdown message to every admin chat. Best effort,
// alerting must never fail the task that triggered it.
func NotifyOps(message string) {
	bot := newBot()
	if bot == nil || adminChatIds == "" {
		fmt.Println("[Telegram] skipped ops alert:", message)
		return
	}
	for _, chatId := range strings.Split(adminChatIds, ",") {
		var id int64
		if _, err := fmt.Sscan(strings.TrimSpace(chatId), &id); err != nil {
			log.Println("[Telegram] bad admin chat id", chatId)
			continue
		}
		msg := tgbotapi.NewMessage(id, EscapeMessage(message))
		msg.ParseMode = "markdown"
		if _, err := bot.Send(msg); err != nil {
			log.Println("[Telegram] failed to send ops alert", err)
		}
	}
}

// NotifyGenerationExhausted alerts admins that a try-on burned through every
// retry without producing an image.
func NotifyGenerationExhausted(tryOnID uint, userID uint, finishReason string) {
	if finishReason == "" {
		finishReason = "unknown"
	}
	NotifyOps(fmt.Sprintf("Try-on %v for user %v exhausted all attempts, last finish reason: %s", tryOnID, userID, finishReason))
}

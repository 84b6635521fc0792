package channel

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"crmhub/internal/notify/models"
	tenantmodels "crmhub/internal/tenant/models"
)

type botSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram messages staff users who linked a chat with the notification bot.
type Telegram struct {
	bot botSender
}

// NewTelegram authenticates the bot token against the Bot API.
func NewTelegram(token string) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Telegram{bot: bot}, nil
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Deliver(_ context.Context, user *tenantmodels.User, n *models.Notification) error {
	if user.TelegramChatID == 0 {
		return ErrNoAddress
	}
	text := "*" + tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, n.Title) + "*"
	if n.Body != "" {
		text += "\n" + tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, n.Body)
	}
	msg := tgbotapi.NewMessage(user.TelegramChatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

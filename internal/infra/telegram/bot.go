package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Bot sends service notifications through the platform's bot account. It
// never polls for updates: the QR login flow talks to users, the bot only
// talks back.
type Bot struct {
	api *tgbotapi.BotAPI
}

func NewBot(token string) (*Bot, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("telegram bot token is empty")
	}

	api, err := tgbotapi.NewBotAPI(strings.TrimSpace(token))
	if err != nil {
		return nil, fmt.Errorf("create telegram bot api: %w", err)
	}

	return &Bot{api: api}, nil
}

func (b *Bot) SendText(ctx context.Context, chatID int64, text string) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}
	if chatID == 0 {
		return fmt.Errorf("chat id is required")
	}

	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}

	_ = ctx
	return nil
}

// NotifyLogin tells the account owner that a new web session was attached.
// The private chat id of a user equals their telegram id, so the message is
// deliverable as long as the user has started the bot once.
func (b *Bot) NotifyLogin(ctx context.Context, telegramID int64, firstName string) error {
	name := strings.TrimSpace(firstName)
	if name == "" {
		name = "there"
	}
	text := fmt.Sprintf("Hi %s! Your Telegram account was just connected to the HR portal. If this wasn't you, revoke the session in Telegram settings.", name)
	return b.SendText(ctx, telegramID, text)
}

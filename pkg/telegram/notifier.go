// Package telegram sends plain text notifications through a Telegram bot.
package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender is the part of the bot API the notifier needs
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier delivers messages to Telegram chats
type Notifier struct {
	bot Sender
}

// NewNotifier authenticates the bot token against Telegram
func NewNotifier(token string) (*Notifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &Notifier{bot: bot}, nil
}

// NewNotifierWithSender wraps an existing sender
func NewNotifierWithSender(s Sender) *Notifier {
	return &Notifier{bot: s}
}

// SendText sends text to chatID. The bot API has no context support, so ctx is only
// checked before sending.
func (n *Notifier) SendText(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send to %d failed: %w", chatID, err)
	}
	return nil
}

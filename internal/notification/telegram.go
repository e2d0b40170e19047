package notification

import (
	"context"
	"html"

	tgbotapi "github.com/OvyFlash/telegram-bot-api"
)

type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram sends review alerts to an operator chat.
type Telegram struct {
	bot    telegramSender
	chatID int64
}

func NewTelegram(token string, chatID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Telegram{bot: bot, chatID: chatID}, nil
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	out := tgbotapi.NewMessage(t.chatID, "<b>"+html.EscapeString(msg.Subject)+"</b>\n"+html.EscapeString(msg.Text))
	out.ParseMode = tgbotapi.ModeHTML
	_, err := t.bot.Send(out)
	return err
}

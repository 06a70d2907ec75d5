package gateway

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rahul/homebot/internal/assistant"
)

// replyTimeout bounds one update, advisor round trips included.
const replyTimeout = 2 * time.Minute

type TelegramGateway struct {
	Bot     *tgbotapi.BotAPI
	Handler Handler
}

func NewTelegramGateway(token string, handler Handler) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log.Printf("Authorized on account %s", bot.Self.UserName)

	return &TelegramGateway{
		Bot:     bot,
		Handler: handler,
	}, nil
}

func (tg *TelegramGateway) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.Bot.GetUpdatesChan(u)

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			tg.handleCallback(update.CallbackQuery)
		case update.Message != nil:
			tg.handleMessage(update.Message)
		}
	}
	return nil
}

func (tg *TelegramGateway) handleMessage(m *tgbotapi.Message) {
	if m.Text == "" {
		return
	}
	if m.From != nil {
		log.Printf("[%s] %s", m.From.UserName, m.Text)
	}

	ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
	defer cancel()
	chatID := strconv.FormatInt(m.Chat.ID, 10)
	reply, err := tg.Handler.HandleText(ctx, chatID, m.Text)
	if err != nil {
		log.Printf("Error handling message from %s: %v", chatID, err)
	}
	if reply.Text == "" {
		return
	}

	msg := tgbotapi.NewMessage(m.Chat.ID, reply.Text)
	if kb := inlineKeyboard(reply.Buttons); kb != nil {
		msg.ReplyMarkup = *kb
	}
	if _, err := tg.Bot.Send(msg); err != nil {
		log.Printf("Error sending reply to %s: %v", chatID, err)
	}
}

// handleCallback answers the button press and edits the message it came from
// in place.
func (tg *TelegramGateway) handleCallback(q *tgbotapi.CallbackQuery) {
	if _, err := tg.Bot.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
		log.Printf("Error answering callback: %v", err)
	}
	if q.Message == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
	defer cancel()
	chatID := strconv.FormatInt(q.Message.Chat.ID, 10)
	reply, err := tg.Handler.HandleCallback(ctx, chatID, q.Data)
	if err != nil {
		log.Printf("Error handling callback %q from %s: %v", q.Data, chatID, err)
	}
	if reply.Text == "" {
		return
	}

	var edit tgbotapi.EditMessageTextConfig
	if kb := inlineKeyboard(reply.Buttons); kb != nil {
		edit = tgbotapi.NewEditMessageTextAndMarkup(q.Message.Chat.ID, q.Message.MessageID, reply.Text, *kb)
	} else {
		edit = tgbotapi.NewEditMessageText(q.Message.Chat.ID, q.Message.MessageID, reply.Text)
	}
	if _, err := tg.Bot.Send(edit); err != nil && !strings.Contains(err.Error(), "message is not modified") {
		log.Printf("Error editing message in %s: %v", chatID, err)
	}
}

func inlineKeyboard(buttons [][]assistant.Button) *tgbotapi.InlineKeyboardMarkup {
	if len(buttons) == 0 {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, row := range buttons {
		if len(row) == 0 {
			continue
		}
		out := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			out = append(out, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(out...))
	}
	if len(rows) == 0 {
		return nil
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &kb
}

func (tg *TelegramGateway) Send(chatID string, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}

	msg := tgbotapi.NewMessage(id, text)
	_, err = tg.Bot.Send(msg)
	return err
}

func (tg *TelegramGateway) Stop() error {
	tg.Bot.StopReceivingUpdates()
	return nil
}

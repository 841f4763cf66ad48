package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram posts operational events to a fixed administrative chat.
type Telegram struct {
	api    *tgbotapi.BotAPI
	chatID int64
	logger *slog.Logger
}

func NewTelegram(token string, chatID int64, logger *slog.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram client: %w", err)
	}

	return &Telegram{
		api:    api,
		chatID: chatID,
		logger: logger.With("component", "notifier"),
	}, nil
}

func (t *Telegram) SendMessage(_ context.Context, text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("send admin message: %w", err)
	}
	return nil
}

// SendImage uploads a photo and returns its message reference so it can be
// edited or retracted later.
func (t *Telegram) SendImage(_ context.Context, path string) (string, error) {
	photo := tgbotapi.NewPhoto(t.chatID, tgbotapi.FilePath(path))
	sent, err := t.api.Send(photo)
	if err != nil {
		return "", fmt.Errorf("send admin image: %w", err)
	}
	return strconv.Itoa(sent.MessageID), nil
}

// UpdateImage replaces the media of a previously sent image message.
func (t *Telegram) UpdateImage(_ context.Context, path, ref string) (string, error) {
	id, err := strconv.Atoi(ref)
	if err != nil {
		return "", fmt.Errorf("parse message ref %q: %w", ref, err)
	}

	edit := tgbotapi.EditMessageMediaConfig{
		BaseEdit: tgbotapi.BaseEdit{
			ChatID:    t.chatID,
			MessageID: id,
		},
		Media: tgbotapi.NewInputMediaPhoto(tgbotapi.FilePath(path)),
	}
	if _, err := t.api.Send(edit); err != nil {
		return "", fmt.Errorf("update admin image: %w", err)
	}
	return ref, nil
}

func (t *Telegram) DeleteMessage(_ context.Context, ref string) error {
	id, err := strconv.Atoi(ref)
	if err != nil {
		return fmt.Errorf("parse message ref %q: %w", ref, err)
	}

	if _, err := t.api.Request(tgbotapi.NewDeleteMessage(t.chatID, id)); err != nil {
		return fmt.Errorf("delete admin message: %w", err)
	}
	return nil
}

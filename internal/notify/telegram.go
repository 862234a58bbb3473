package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"heimdall/internal/config"
	"heimdall/internal/permanent"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

// ErrNoRecipients reports a Telegram broadcast with no approved subscriber.
var ErrNoRecipients = errors.New("no approved telegram subscribers")

// Recipients yields the chat ids a broadcast goes to.
type Recipients interface {
	ApprovedChatIDs() []int64
}

// RecipientsFunc adapts a function to Recipients.
type RecipientsFunc func() []int64

// ApprovedChatIDs calls f.
func (f RecipientsFunc) ApprovedChatIDs() []int64 {
	return f()
}

// TelegramSender broadcasts one message to every approved subscriber.
type TelegramSender struct {
	client     *tgbot.Bot
	recipients Recipients
	logger     *slog.Logger
}

// NewTelegramSender creates Telegram sender with HTTP client.
// Params: Telegram notifier config, recipient source, and optional logger.
// Returns: initialized sender or bot construction error.
func NewTelegramSender(cfg config.TelegramNotifier, recipients Recipients, logger *slog.Logger) (*TelegramSender, error) {
	if strings.TrimSpace(cfg.BotToken) == "" {
		return nil, errors.New("telegram bot token is required")
	}
	if recipients == nil {
		return nil, errors.New("telegram recipients source is required")
	}
	options := []tgbot.Option{
		tgbot.WithSkipGetMe(),
		tgbot.WithServerURL(strings.TrimRight(cfg.APIBase, "/")),
	}
	botClient, err := tgbot.New(cfg.BotToken, options...)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return &TelegramSender{client: botClient, recipients: recipients, logger: logger}, nil
}

// Channel returns sender channel name.
func (s *TelegramSender) Channel() string {
	return config.ChannelTelegram
}

// Send posts one message to every approved chat.
// Params: context and rendered message.
// Returns: delivered count; error only when no chat received the message.
func (s *TelegramSender) Send(ctx context.Context, message Message) (SendResult, error) {
	chatIDs := s.recipients.ApprovedChatIDs()
	if len(chatIDs) == 0 {
		return SendResult{}, permanent.Mark(fmt.Errorf("telegram: %w", ErrNoRecipients))
	}

	var (
		result    SendResult
		lastErr   error
		forbidden int
	)
	for _, chatID := range chatIDs {
		request := &tgbot.SendMessageParams{
			ChatID: chatID,
			Text:   message.Body,
		}
		if message.HTML {
			request.ParseMode = tgmodels.ParseModeHTML
		}
		sent, err := s.client.SendMessage(ctx, request)
		if err != nil {
			if errors.Is(err, tgbot.ErrorForbidden) {
				forbidden++
				if s.logger != nil {
					s.logger.Warn("telegram subscriber blocked the bot", "chat_id", chatID)
				}
			} else if s.logger != nil {
				s.logger.Warn("telegram send failed", "chat_id", chatID, "error", err.Error())
			}
			lastErr = err
			continue
		}
		result.Delivered++
		if sent != nil {
			result.MessageID = sent.ID
		}
	}

	if result.Delivered > 0 {
		return result, nil
	}
	if forbidden == len(chatIDs) {
		return SendResult{}, permanent.Mark(fmt.Errorf("telegram send: %w", lastErr))
	}
	return SendResult{}, fmt.Errorf("telegram send: %w", lastErr)
}

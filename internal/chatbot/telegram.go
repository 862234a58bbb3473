package chatbot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"heimdall/internal/config"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

// pollSlack is added to the long-poll timeout for the HTTP round trip.
const pollSlack = 10 * time.Second

// UpdateSource delivers inbound chat updates after a cursor.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]tgmodels.Update, error)
}

// Messenger sends one transactional message to one chat.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Identity reports the bot account behind a token.
type Identity interface {
	GetMe(ctx context.Context) (*tgmodels.User, error)
}

// TelegramAPI talks to the Bot API for the command loop.
// Params: token, API base URL, shared HTTP client, and go-telegram client.
// Returns: UpdateSource, Messenger, and Identity implementation.
type TelegramAPI struct {
	token  string
	base   string
	http   *http.Client
	client *tgbot.Bot
}

// NewTelegramAPI creates the chat loop transport.
// Params: Telegram notifier config.
// Returns: API client or token/construction error.
func NewTelegramAPI(cfg config.TelegramNotifier) (*TelegramAPI, error) {
	token := strings.TrimSpace(cfg.BotToken)
	if token == "" {
		return nil, errors.New("telegram bot token is required")
	}
	base := strings.TrimRight(cfg.APIBase, "/")
	if base == "" {
		base = "https://api.telegram.org"
	}
	client, err := tgbot.New(token, tgbot.WithSkipGetMe(), tgbot.WithServerURL(base))
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return &TelegramAPI{
		token:  token,
		base:   base,
		http:   &http.Client{},
		client: client,
	}, nil
}

// updatesResponse is the getUpdates envelope.
type updatesResponse struct {
	OK          bool              `json:"ok"`
	Result      []tgmodels.Update `json:"result"`
	ErrorCode   int               `json:"error_code"`
	Description string            `json:"description"`
}

// GetUpdates long-polls for updates with id >= offset.
// Params: context, offset cursor, and server-side poll timeout.
// Returns: received updates or transport/API error.
func (a *TelegramAPI) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]tgmodels.Update, error) {
	query := url.Values{}
	query.Set("offset", strconv.FormatInt(offset, 10))
	query.Set("timeout", strconv.Itoa(int(timeout/time.Second)))
	query.Set("allowed_updates", `["message"]`)
	endpoint := a.base + "/bot" + a.token + "/getUpdates?" + query.Encode()

	reqCtx, cancel := context.WithTimeout(ctx, timeout+pollSlack)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build getUpdates request: %w", err)
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("getUpdates: %w", redactToken(err, a.token))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read getUpdates response: %w", err)
	}
	var decoded updatesResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode getUpdates response (status %d): %w", resp.StatusCode, err)
	}
	if !decoded.OK {
		return nil, fmt.Errorf("getUpdates: telegram error %d: %s", decoded.ErrorCode, decoded.Description)
	}
	return decoded.Result, nil
}

// SendMessage sends an HTML reply to one chat.
func (a *TelegramAPI) SendMessage(ctx context.Context, chatID int64, text string) error {
	_, err := a.client.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: tgmodels.ParseModeHTML,
	})
	if err != nil {
		return fmt.Errorf("send message to %d: %w", chatID, err)
	}
	return nil
}

// GetMe returns the bot account; used as the connection test.
func (a *TelegramAPI) GetMe(ctx context.Context) (*tgmodels.User, error) {
	me, err := a.client.GetMe(ctx)
	if err != nil {
		return nil, fmt.Errorf("getMe: %w", err)
	}
	return me, nil
}

// redactToken strips the bot token from URL errors.
func redactToken(err error, token string) error {
	if err == nil || token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), token, "<token>"))
}

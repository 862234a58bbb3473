package chatbot

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"heimdall/internal/config"
	"heimdall/internal/domain"
	"heimdall/internal/logging"

	tgmodels "github.com/go-telegram/bot/models"
)

// Options tunes the long-poll loop.
type Options struct {
	PollTimeout  time.Duration
	ErrorBackoff time.Duration
}

// OptionsFrom maps Telegram config onto loop options.
func OptionsFrom(cfg config.TelegramNotifier) Options {
	return Options{
		PollTimeout:  time.Duration(cfg.PollTimeoutSec) * time.Second,
		ErrorBackoff: time.Duration(cfg.ErrorBackoffSec) * time.Second,
	}
}

// Bot runs the subscriber command loop and operator notices.
// Params: shared registry, update source, reply messenger, and loop options.
// Returns: long-running command processor.
type Bot struct {
	registry  *Registry
	source    UpdateSource
	messenger Messenger
	opts      Options
	logger    *slog.Logger
	cursor    atomic.Int64
}

// NewBot wires a command loop.
// Params: registry, update source, messenger, options, and optional logger.
// Returns: bot ready for Run.
func NewBot(registry *Registry, source UpdateSource, messenger Messenger, opts Options, logger *slog.Logger) *Bot {
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 30 * time.Second
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = 5 * time.Second
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Bot{
		registry:  registry,
		source:    source,
		messenger: messenger,
		opts:      opts,
		logger:    logger,
	}
}

// Cursor returns the highest update id handed to the command handler.
func (b *Bot) Cursor() int64 {
	return b.cursor.Load()
}

// Run long-polls until ctx is cancelled.
// Params: ctx controls the loop and the in-flight poll.
// Returns: nil after cancellation.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("telegram command loop started", "poll_timeout", b.opts.PollTimeout.String())
	defer b.logger.Info("telegram command loop stopped", "cursor", b.Cursor())

	for {
		if ctx.Err() != nil {
			return nil
		}
		updates, err := b.source.GetUpdates(ctx, b.Cursor()+1, b.opts.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			b.logger.Warn("telegram poll failed", "error", err.Error(), "backoff", b.opts.ErrorBackoff.String())
			if !sleepContext(ctx, b.opts.ErrorBackoff) {
				return nil
			}
			continue
		}
		for _, update := range updates {
			if update.ID > b.Cursor() {
				b.cursor.Store(update.ID)
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate processes one inbound update; the cursor is already past it.
// Params: context and decoded update.
func (b *Bot) HandleUpdate(ctx context.Context, update tgmodels.Update) {
	message := update.Message
	if message == nil || strings.TrimSpace(message.Text) == "" {
		return
	}
	chatID := message.Chat.ID
	var username, firstName string
	if message.From != nil {
		username = message.From.Username
		firstName = message.From.FirstName
	}
	if username == "" {
		username = message.Chat.Username
	}
	if firstName == "" {
		firstName = message.Chat.FirstName
	}

	command := parseCommand(message.Text)
	b.logger.Debug("telegram command", "chat_id", chatID, "command", command)

	reply := b.reply(command, chatID, username, firstName)
	b.send(ctx, chatID, reply)
}

// reply applies a command and returns the text to send back.
func (b *Bot) reply(command string, chatID int64, username, firstName string) string {
	switch command {
	case "/start", "/subscribe":
		sub, created, err := b.registry.Subscribe(chatID, username, firstName)
		if err != nil {
			b.logger.Error("subscribe failed", "chat_id", chatID, "error", err.Error())
			return textTryLater
		}
		if !created {
			return textAlreadySubscribed
		}
		b.logger.Info("new telegram subscriber", "chat_id", chatID, "name", sub.DisplayName(), "approved", sub.Approved)
		if sub.Approved {
			return textWelcome
		}
		return textWelcomePending
	case "/unsubscribe", "/stop":
		removed, err := b.registry.Unsubscribe(chatID)
		if err != nil {
			b.logger.Error("unsubscribe failed", "chat_id", chatID, "error", err.Error())
			return textTryLater
		}
		if !removed {
			return textNotSubscribed
		}
		b.logger.Info("telegram subscriber left", "chat_id", chatID)
		return textUnsubscribed
	case "/status":
		sub, ok := b.registry.Lookup(chatID)
		if !ok {
			return textStatusMissing
		}
		total, _ := b.registry.Counts()
		return statusText(sub, total)
	case "/help":
		return textHelp
	default:
		return textUnknownCommand
	}
}

// Approve approves a subscriber and tells them.
// Params: context and chat id.
// Returns: updated entry or registry error.
func (b *Bot) Approve(ctx context.Context, chatID int64) (domain.Subscriber, error) {
	sub, err := b.registry.Approve(chatID)
	if err != nil {
		return domain.Subscriber{}, err
	}
	b.send(ctx, chatID, textApproved)
	return sub, nil
}

// Disapprove puts a subscriber on hold and tells them.
func (b *Bot) Disapprove(ctx context.Context, chatID int64) (domain.Subscriber, error) {
	sub, err := b.registry.Disapprove(chatID)
	if err != nil {
		return domain.Subscriber{}, err
	}
	b.send(ctx, chatID, textDisapproved)
	return sub, nil
}

// Remove deletes a subscriber and tells them.
func (b *Bot) Remove(ctx context.Context, chatID int64) (domain.Subscriber, error) {
	sub, err := b.registry.Remove(chatID)
	if err != nil {
		return domain.Subscriber{}, err
	}
	b.send(ctx, chatID, textRemoved)
	return sub, nil
}

// send delivers a best-effort reply; failures are only logged.
func (b *Bot) send(ctx context.Context, chatID int64, text string) {
	if b.messenger == nil {
		return
	}
	if err := b.messenger.SendMessage(ctx, chatID, text); err != nil {
		b.logger.Warn("telegram reply failed", "chat_id", chatID, "error", err.Error())
	}
}

// parseCommand lower-cases the first word and drops a @botname suffix.
func parseCommand(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	command := strings.ToLower(fields[0])
	if at := strings.IndexByte(command, '@'); at > 0 {
		command = command[:at]
	}
	return command
}

// sleepContext waits d or until ctx ends.
// Returns: false when ctx ended first.
func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// ErrStopTimeout reports a loop that outlived its stop grace period.
var ErrStopTimeout = errors.New("telegram command loop did not stop within grace period")

// Runner owns the goroutine running a Bot.
type Runner struct {
	bot    *Bot
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRunner wraps bot for background execution.
func NewRunner(bot *Bot) *Runner {
	return &Runner{bot: bot}
}

// Start launches the loop; calling it twice is a no-op.
func (r *Runner) Start(ctx context.Context) {
	if r.done != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go func() {
		defer close(r.done)
		_ = r.bot.Run(loopCtx)
	}()
}

// Done is closed when the loop exits.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// Stop cancels the in-flight poll and joins the loop.
// Params: grace is the longest wait for the loop to exit.
// Returns: ErrStopTimeout when the loop is still running after grace.
func (r *Runner) Stop(grace time.Duration) error {
	if r.done == nil {
		return nil
	}
	r.cancel()
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-r.done:
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"heimdall/internal/config"
	"heimdall/internal/domain"
	"heimdall/internal/permanent"
)

// SendResult returns channel-specific metadata after successful delivery.
// Params: sender-specific metadata fields.
// Returns: delivered recipient count and last message identifier.
type SendResult struct {
	MessageID int
	Delivered int
}

// ChannelSender sends one rendered message to one channel.
// Params: context and rendered message.
// Returns: channel send metadata and transport error when send fails.
type ChannelSender interface {
	Channel() string
	Send(ctx context.Context, message Message) (SendResult, error)
}

// DeliveryResult holds the outcome of every channel for one notification.
// Params: nil error marks a successful channel.
// Returns: per-channel outcomes consumed by the alert manager.
type DeliveryResult struct {
	Outcomes map[string]error
}

// Succeeded returns channels that delivered, sorted by name.
func (r DeliveryResult) Succeeded() []string {
	out := make([]string, 0, len(r.Outcomes))
	for channel, err := range r.Outcomes {
		if err == nil {
			out = append(out, channel)
		}
	}
	sort.Strings(out)
	return out
}

// AnySucceeded reports whether at least one channel delivered.
func (r DeliveryResult) AnySucceeded() bool {
	for _, err := range r.Outcomes {
		if err == nil {
			return true
		}
	}
	return false
}

// Failed returns failing channels with their errors.
func (r DeliveryResult) Failed() map[string]error {
	out := make(map[string]error)
	for channel, err := range r.Outcomes {
		if err != nil {
			out[channel] = err
		}
	}
	return out
}

// Err joins channel failures into one error.
// Params: none.
// Returns: nil when every channel delivered or no channel was configured.
func (r DeliveryResult) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	channels := make([]string, 0, len(failed))
	for channel := range failed {
		channels = append(channels, channel)
	}
	sort.Strings(channels)
	errs := make([]error, 0, len(channels))
	for _, channel := range channels {
		errs = append(errs, fmt.Errorf("%s: %w", channel, failed[channel]))
	}
	return errors.Join(errs...)
}

// Dispatcher delivers notifications to every configured channel with retries/backoff.
// Params: sender list, renderers, and retry policy.
// Returns: fan-out helper for manager layer.
type Dispatcher struct {
	senders   map[string]ChannelSender
	channels  []string
	renderers map[string]Renderer
	fallback  Renderer
	retries   map[string]config.NotifyRetry
	logger    *slog.Logger
}

// NewDispatcher builds notification dispatcher from enabled channels.
// Params: global notify config, Telegram recipient source, and optional logger.
// Returns: configured dispatcher or construction error.
func NewDispatcher(cfg config.NotifyConfig, recipients Recipients, logger *slog.Logger) (*Dispatcher, error) {
	senders := make([]ChannelSender, 0, len(config.NotifyChannelNames()))
	retries := make(map[string]config.NotifyRetry)
	renderers := make(map[string]Renderer)
	for _, channel := range config.NotifyChannelNames() {
		if !config.NotifyChannelEnabled(cfg, channel) {
			continue
		}
		retries[channel] = config.NotifyChannelRetry(cfg, channel)
		switch channel {
		case config.ChannelEmail:
			renderer, err := NewEmailRenderer(strings.TrimSpace(cfg.Email.LogoPath) != "")
			if err != nil {
				return nil, err
			}
			renderers[channel] = renderer
			senders = append(senders, NewEmailSender(cfg.Email, logger))
		case config.ChannelTelegram:
			sender, err := NewTelegramSender(cfg.Telegram, recipients, logger)
			if err != nil {
				return nil, err
			}
			senders = append(senders, sender)
		}
	}

	dispatcher, err := New(senders, retries, logger)
	if err != nil {
		return nil, err
	}
	for channel, renderer := range renderers {
		dispatcher.renderers[channel] = renderer
	}
	return dispatcher, nil
}

// New builds a dispatcher around prepared senders.
// Params: senders, retry policies keyed by channel, and optional logger.
// Returns: dispatcher using the Telegram renderer for channels without a dedicated one.
func New(senders []ChannelSender, retries map[string]config.NotifyRetry, logger *slog.Logger) (*Dispatcher, error) {
	fallback, err := NewTelegramRenderer()
	if err != nil {
		return nil, err
	}
	d := &Dispatcher{
		senders:   make(map[string]ChannelSender, len(senders)),
		renderers: make(map[string]Renderer),
		fallback:  fallback,
		retries:   make(map[string]config.NotifyRetry, len(retries)),
		logger:    logger,
	}
	for channel, retry := range retries {
		d.retries[channel] = retry
	}
	for _, sender := range senders {
		channel := sender.Channel()
		if _, dup := d.senders[channel]; dup {
			return nil, fmt.Errorf("notify channel %q registered twice", channel)
		}
		d.senders[channel] = sender
		d.channels = append(d.channels, channel)
	}
	sort.Strings(d.channels)
	return d, nil
}

// Notify renders and sends one notification to every channel concurrently.
// Params: context and channel-independent payload.
// Returns: per-channel outcomes; empty when no channel is configured.
func (d *Dispatcher) Notify(ctx context.Context, notification domain.Notification) DeliveryResult {
	result := DeliveryResult{Outcomes: make(map[string]error, len(d.channels))}
	if len(d.channels) == 0 {
		return result
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, channel := range d.channels {
		wg.Add(1)
		go func(channel string) {
			defer wg.Done()
			_, err := d.Send(ctx, channel, notification)
			mu.Lock()
			result.Outcomes[channel] = err
			mu.Unlock()
		}(channel)
	}
	wg.Wait()
	return result
}

// Send renders and sends one notification to one channel with retry policy.
// Params: destination channel and notification payload.
// Returns: channel metadata and final error after retries.
func (d *Dispatcher) Send(ctx context.Context, channel string, notification domain.Notification) (SendResult, error) {
	sender, ok := d.senders[channel]
	if !ok {
		return SendResult{}, fmt.Errorf("notify channel %q is not configured", channel)
	}
	renderer := d.fallback
	if dedicated, ok := d.renderers[channel]; ok {
		renderer = dedicated
	}
	message, err := renderer.Render(notification)
	if err != nil {
		return SendResult{}, permanent.Mark(err)
	}
	message.Channel = channel
	return d.sendWithRetry(ctx, sender, message, d.retries[channel])
}

// sendWithRetry sends one message with channel-specific retry policy.
// Params: sender, payload, and retry policy for the sender channel.
// Returns: channel metadata and final error after retries.
func (d *Dispatcher) sendWithRetry(ctx context.Context, sender ChannelSender, message Message, retry config.NotifyRetry) (SendResult, error) {
	if !retry.Enabled {
		return sender.Send(ctx, message)
	}

	attempt := 0
	backoff := time.Duration(retry.InitialMS) * time.Millisecond
	maxBackoff := time.Duration(retry.MaxMS) * time.Millisecond
	var timer *time.Timer
	stopTimer := func() {
		if timer != nil && !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
	}

	for {
		attempt++
		result, err := sender.Send(ctx, message)
		if err == nil {
			stopTimer()
			if retry.LogEachAttempt && attempt > 1 && d.logger != nil {
				d.logger.Info("notify send recovered after retries", "channel", sender.Channel(), "attempt", attempt)
			}
			return result, nil
		}
		if retry.LogEachAttempt && d.logger != nil {
			d.logger.Warn("notify send attempt failed", "channel", sender.Channel(), "attempt", attempt, "error", err.Error())
		}

		if permanent.Is(err) {
			stopTimer()
			return SendResult{}, err
		}
		if retry.MaxAttempts > 0 && attempt >= retry.MaxAttempts {
			stopTimer()
			return SendResult{}, fmt.Errorf("channel %s failed after %d attempts: %w", sender.Channel(), attempt, err)
		}

		if timer == nil {
			timer = time.NewTimer(backoff)
		} else {
			stopTimer()
			timer.Reset(backoff)
		}
		select {
		case <-ctx.Done():
			stopTimer()
			return SendResult{}, ctx.Err()
		case <-timer.C:
		}

		if strings.EqualFold(retry.Backoff, "exponential") {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}

// Channels returns configured channel list.
// Params: none.
// Returns: deterministic sender keys.
func (d *Dispatcher) Channels() []string {
	return d.channels
}

package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"heimdall/internal/clock"
	"heimdall/internal/domain"
	"heimdall/internal/ledger"
	"heimdall/internal/logging"
	"heimdall/internal/notify"
)

// Notifier delivers a notification to every enabled channel.
type Notifier interface {
	Notify(ctx context.Context, notification domain.Notification) notify.DeliveryResult
}

// Manager connects ledger decisions with notification delivery.
// Params: alert ledger, notifier, alert journal, metrics, logger, and clock.
// Returns: observation sink used by sweeps and operator commands.
type Manager struct {
	mu       sync.Mutex
	ledger   *ledger.Ledger
	notifier Notifier
	journal  *logging.Journal
	metrics  *Metrics
	logger   *slog.Logger
	clock    clock.Clock
	session  Session
}

// SessionReport summarizes one batched session.
type SessionReport struct {
	Alerts      int
	Resolutions int
	Sent        int
}

// NewManager creates manager with its collaborators.
// Params: ledger, notifier (nil disables delivery), journal (nil disables it), metrics, logger, and clock.
// Returns: initialized manager.
func NewManager(led *ledger.Ledger, notifier Notifier, journal *logging.Journal, metrics *Metrics, logger *slog.Logger, clk clock.Clock) *Manager {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Manager{
		ledger:   led,
		notifier: notifier,
		journal:  journal,
		metrics:  metrics,
		logger:   logger,
		clock:    clock.OrReal(clk),
	}
}

// SetNotifier swaps the notifier after a config reload.
func (m *Manager) SetNotifier(notifier Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifier = notifier
}

// Ledger returns the underlying alert ledger.
func (m *Manager) Ledger() *ledger.Ledger {
	return m.ledger
}

// Observe records one breach and sends or buffers the alert when due.
// Params: context and breach observation.
// Returns: ledger decision and persistence error.
func (m *Manager) Observe(ctx context.Context, obs domain.Observation) (domain.Decision, error) {
	now := m.clock.Now()
	fp := ledger.FingerprintOf(obs)
	decision, err := m.ledger.RecordObservation(ctx, fp, obs, now)
	if err != nil {
		return domain.Decision{}, fmt.Errorf("record observation for %s: %w", obs.Server, err)
	}
	if err := m.journal.Record(now, obs.Server, obs.Hostname, obs.Message); err != nil {
		m.logger.Warn("alert journal write failed", "error", err.Error())
	}
	m.metrics.SetActiveAlerts(len(m.ledger.Active()))

	logger := m.logger.With("server", obs.Server, "hostname", obs.Hostname, "fingerprint", string(fp), "type", decision.Record.Type)
	if !decision.ShouldNotify {
		logger.Debug("alert within cooldown", "kind", string(decision.Kind))
		return decision, nil
	}
	logger.Warn("alert raised", "kind", string(decision.Kind), "message", obs.Message)

	event := domain.Event{Kind: decision.Kind, Record: decision.Record, Timestamp: now}
	if m.buffer(event) {
		return decision, nil
	}
	if _, err := m.dispatch(ctx, domain.NotificationAlert, []domain.Event{event}); err != nil {
		return decision, err
	}
	return decision, nil
}

// Clear resolves an alert condition that is back within bounds.
// Params: context, server nickname, hostname, alert type, and human detail.
// Returns: resolution event (nil when nothing was active) and persistence error.
func (m *Manager) Clear(ctx context.Context, server, hostname, alertType, detail string) (*domain.Event, error) {
	now := m.clock.Now()
	fp := ledger.Fingerprint(server, hostname, alertType)
	record, err := m.ledger.Resolve(ctx, fp, now)
	if err != nil {
		return nil, fmt.Errorf("resolve %s %s: %w", server, alertType, err)
	}
	if record == nil {
		return nil, nil
	}
	m.metrics.SetActiveAlerts(len(m.ledger.Active()))

	event := domain.Event{
		Kind:      domain.KindResolved,
		Record:    *record,
		Detail:    detail,
		Duration:  record.ResolvedTime.Sub(record.FirstDetected),
		Timestamp: now,
	}
	m.logger.Info("alert resolved", "server", server, "hostname", hostname, "fingerprint", string(fp), "type", alertType, "detail", detail)

	if m.buffer(event) {
		return &event, nil
	}
	if _, err := m.dispatch(ctx, domain.NotificationResolution, []domain.Event{event}); err != nil {
		return &event, err
	}
	return &event, nil
}

// StartSession begins buffering due events.
// Returns: ErrSessionActive when a session is already collecting.
func (m *Manager) StartSession() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Start()
}

// EndSession flushes buffered events as at most two notifications.
// Params: context for delivery.
// Returns: session counts and ErrNoSession or persistence error.
func (m *Manager) EndSession(ctx context.Context) (SessionReport, error) {
	m.mu.Lock()
	alerts, resolutions, err := m.session.End()
	m.mu.Unlock()
	if err != nil {
		return SessionReport{}, err
	}

	report := SessionReport{Alerts: len(alerts), Resolutions: len(resolutions)}
	if len(alerts) > 0 {
		result, err := m.dispatch(ctx, domain.NotificationAlert, alerts)
		if result.AnySucceeded() {
			report.Sent++
		}
		if err != nil {
			return report, err
		}
	}
	if len(resolutions) > 0 {
		result, err := m.dispatch(ctx, domain.NotificationResolution, resolutions)
		if result.AnySucceeded() {
			report.Sent++
		}
		if err != nil {
			return report, err
		}
	}
	return report, nil
}

// SendTest delivers the test notification to every enabled channel.
// Params: context.
// Returns: per-channel outcomes.
func (m *Manager) SendTest(ctx context.Context) notify.DeliveryResult {
	notifier := m.notifierSnapshot()
	if notifier == nil {
		return notify.DeliveryResult{Outcomes: map[string]error{}}
	}
	result := notifier.Notify(ctx, domain.Notification{
		Kind:      domain.NotificationTest,
		Cooldown:  m.ledger.Cooldown(),
		Timestamp: m.clock.Now(),
	})
	m.metrics.ObserveDelivery(result)
	return result
}

func (m *Manager) buffer(event domain.Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Add(event)
}

func (m *Manager) notifierSnapshot() Notifier {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.notifier
}

// dispatch sends events with the other active alerts attached.
// A successful delivery on any channel stamps last_notified on every active alert.
// Params: context, notification kind, and events (more than one makes a batch).
// Returns: delivery outcomes and persistence error from the cooldown reset.
func (m *Manager) dispatch(ctx context.Context, kind domain.NotificationKind, events []domain.Event) (notify.DeliveryResult, error) {
	notifier := m.notifierSnapshot()
	if notifier == nil {
		return notify.DeliveryResult{Outcomes: map[string]error{}}, nil
	}

	now := m.clock.Now()
	included := make(map[domain.Fingerprint]struct{}, len(events))
	for _, event := range events {
		included[event.Record.Fingerprint] = struct{}{}
	}
	var others []domain.AlertRecord
	for _, record := range m.ledger.Active() {
		if _, ok := included[record.Fingerprint]; !ok {
			others = append(others, record)
		}
	}

	result := notifier.Notify(ctx, domain.Notification{
		Kind:        kind,
		Batch:       len(events) > 1,
		Events:      events,
		OtherActive: others,
		Cooldown:    m.ledger.Cooldown(),
		Timestamp:   now,
	})
	m.metrics.ObserveDelivery(result)

	for channel, err := range result.Failed() {
		m.logger.Error("notification delivery failed", "channel", channel, "kind", string(kind), "events", len(events), "error", err.Error())
	}
	if !result.AnySucceeded() {
		return result, nil
	}
	m.logger.Info("notification sent", "kind", string(kind), "events", len(events), "channels", strings.Join(result.Succeeded(), ","))

	if err := m.ledger.ResetNotified(ctx, now); err != nil {
		return result, fmt.Errorf("reset notification cooldown: %w", err)
	}
	return result, nil
}

package app

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"heimdall/internal/domain"
	"heimdall/internal/ledger"
	"heimdall/internal/state"
)

func TestObserveNotifiesOncePerCooldown(t *testing.T) {
	t.Parallel()

	fx := newManagerFixture(t)
	ctx := context.Background()
	obs := cpuObservation("web1", "CPU usage at 92.0%, threshold is 80%")

	decision, err := fx.manager.Observe(ctx, obs)
	if err != nil || decision.Kind != domain.KindNew || !decision.ShouldNotify {
		t.Fatalf("first observe: %+v %v", decision, err)
	}
	fx.clock.Advance(10 * time.Minute)
	decision, err = fx.manager.Observe(ctx, obs)
	if err != nil || decision.ShouldNotify {
		t.Fatalf("second observe must be gated: %+v %v", decision, err)
	}
	fx.clock.Advance(time.Hour)
	decision, err = fx.manager.Observe(ctx, obs)
	if err != nil || decision.Kind != domain.KindRecurring || !decision.ShouldNotify {
		t.Fatalf("third observe: %+v %v", decision, err)
	}

	sent := fx.notifier.sent()
	if len(sent) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(sent))
	}
	if sent[0].Kind != domain.NotificationAlert || sent[0].Batch || sent[0].Cooldown != time.Hour {
		t.Fatalf("unexpected notification %+v", sent[0])
	}
	if sent[1].Events[0].Kind != domain.KindRecurring {
		t.Fatalf("expected recurring event, got %s", sent[1].Events[0].Kind)
	}

	lines := strings.Split(strings.TrimSpace(fx.journal.String()), "\n")
	if len(lines) != 3 || lines[0] != "[2026-03-01 10:00:00] web1 (web1.internal): CPU usage at 92.0%, threshold is 80%" {
		t.Fatalf("unexpected journal %q", fx.journal.String())
	}
}

func TestSuccessfulSendResetsEveryActiveAlert(t *testing.T) {
	t.Parallel()

	fx := newManagerFixture(t)
	ctx := context.Background()

	if _, err := fx.manager.Observe(ctx, cpuObservation("web1", "CPU usage at 92.0%, threshold is 80%")); err != nil {
		t.Fatalf("observe web1: %v", err)
	}
	fx.clock.Advance(40 * time.Minute)
	if _, err := fx.manager.Observe(ctx, cpuObservation("db1", "CPU usage at 95.0%, threshold is 80%")); err != nil {
		t.Fatalf("observe db1: %v", err)
	}

	sent := fx.notifier.sent()
	if len(sent) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(sent))
	}
	others := sent[1].OtherActive
	if len(others) != 1 || others[0].Server != "web1" {
		t.Fatalf("other active alerts must list web1 only, got %+v", others)
	}

	want := t0.Add(40 * time.Minute)
	for _, record := range fx.ledger.Active() {
		if !record.LastNotified.Equal(want) {
			t.Fatalf("%s last_notified=%s want %s", record.Server, record.LastNotified, want)
		}
	}

	// web1's cooldown restarted with db1's send, so it stays quiet until 11:40.
	fx.clock.Advance(30 * time.Minute)
	decision, err := fx.manager.Observe(ctx, cpuObservation("web1", "CPU usage at 93.0%, threshold is 80%"))
	if err != nil || decision.ShouldNotify {
		t.Fatalf("web1 must still be in cooldown: %+v %v", decision, err)
	}
}

func TestFailedDeliverySkipsGlobalReset(t *testing.T) {
	t.Parallel()

	fx := newManagerFixture(t)
	ctx := context.Background()
	fx.notifier.fail = true

	if _, err := fx.manager.Observe(ctx, cpuObservation("web1", "CPU usage at 92.0%, threshold is 80%")); err != nil {
		t.Fatalf("observe web1: %v", err)
	}
	fx.clock.Advance(20 * time.Minute)
	if _, err := fx.manager.Observe(ctx, cpuObservation("db1", "CPU usage at 95.0%, threshold is 80%")); err != nil {
		t.Fatalf("observe db1: %v", err)
	}

	for _, record := range fx.ledger.Active() {
		if !record.LastNotified.Equal(record.FirstDetected) {
			t.Fatalf("%s last_notified must stay at first detection, got %s", record.Server, record.LastNotified)
		}
	}
	if len(fx.notifier.sent()) != 2 {
		t.Fatalf("both alerts must be attempted, got %d", len(fx.notifier.sent()))
	}

	// The failed alert was stamped when it was decided, so it waits out its cooldown.
	decision, err := fx.manager.Observe(ctx, cpuObservation("web1", "CPU usage at 94.0%, threshold is 80%"))
	if err != nil || decision.ShouldNotify {
		t.Fatalf("web1 must stay quiet within cooldown after a failed delivery: %+v %v", decision, err)
	}
}

func TestFailedDeliveryLoggedOncePerChannel(t *testing.T) {
	t.Parallel()

	led, err := ledger.Open(context.Background(), state.NewMemoryStore(), ledger.Options{Cooldown: time.Hour})
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	manager := NewManager(led, &captureNotifier{fail: true}, nil, NewMetrics(), logger, &manualClock{now: t0})

	if _, err := manager.Observe(context.Background(), cpuObservation("web1", "CPU usage at 92.0%, threshold is 80%")); err != nil {
		t.Fatalf("observe: %v", err)
	}

	if got := strings.Count(logs.String(), "notification delivery failed"); got != 2 {
		t.Fatalf("want one failure line per channel, got %d:\n%s", got, logs.String())
	}
}

func TestClearDispatchesResolution(t *testing.T) {
	t.Parallel()

	fx := newManagerFixture(t)
	ctx := context.Background()

	event, err := fx.manager.Clear(ctx, "web1", "web1.internal", ledger.TypeCPU, "CPU usage now at 45.0%, below threshold of 80%")
	if err != nil || event != nil {
		t.Fatalf("clear without active alert must be a no-op: %+v %v", event, err)
	}
	if len(fx.notifier.sent()) != 0 {
		t.Fatal("no-op clear must not notify")
	}

	if _, err := fx.manager.Observe(ctx, cpuObservation("web1", "CPU usage at 92.0%, threshold is 80%")); err != nil {
		t.Fatalf("observe: %v", err)
	}
	fx.clock.Advance(2*time.Hour + 5*time.Minute)
	event, err = fx.manager.Clear(ctx, "web1", "web1.internal", ledger.TypeCPU, "CPU usage now at 45.0%, below threshold of 80%")
	if err != nil || event == nil {
		t.Fatalf("clear: %+v %v", event, err)
	}
	if event.Duration != 2*time.Hour+5*time.Minute || event.Kind != domain.KindResolved {
		t.Fatalf("unexpected event %+v", event)
	}

	sent := fx.notifier.sent()
	last := sent[len(sent)-1]
	if last.Kind != domain.NotificationResolution || len(last.Events) != 1 || last.Events[0].Detail == "" {
		t.Fatalf("unexpected resolution notification %+v", last)
	}
	if len(fx.ledger.Active()) != 0 || len(fx.ledger.Resolved()) != 1 {
		t.Fatal("record must move to the resolved partition")
	}
}

func TestSessionSendsOneNotificationPerKind(t *testing.T) {
	t.Parallel()

	fx := newManagerFixture(t)
	ctx := context.Background()

	if _, err := fx.manager.Observe(ctx, cpuObservation("old", "CPU usage at 90.0%, threshold is 80%")); err != nil {
		t.Fatalf("observe: %v", err)
	}
	if err := fx.manager.StartSession(); err != nil {
		t.Fatalf("start session: %v", err)
	}
	if err := fx.manager.StartSession(); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive, got %v", err)
	}
	for _, server := range []string{"web1", "web2", "db1"} {
		if _, err := fx.manager.Observe(ctx, cpuObservation(server, "CPU usage at 99.0%, threshold is 80%")); err != nil {
			t.Fatalf("observe %s: %v", server, err)
		}
	}
	if _, err := fx.manager.Clear(ctx, "old", "old.internal", ledger.TypeCPU, "CPU usage now at 10.0%, below threshold of 80%"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if got := len(fx.notifier.sent()); got != 1 {
		t.Fatalf("nothing may be sent while collecting, got %d", got)
	}

	report, err := fx.manager.EndSession(ctx)
	if err != nil {
		t.Fatalf("end session: %v", err)
	}
	if report.Alerts != 3 || report.Resolutions != 1 || report.Sent != 2 {
		t.Fatalf("unexpected report %+v", report)
	}

	sent := fx.notifier.sent()[1:]
	if len(sent) != 2 {
		t.Fatalf("expected one alert batch and one resolution, got %d", len(sent))
	}
	if sent[0].Kind != domain.NotificationAlert || !sent[0].Batch || len(sent[0].Events) != 3 {
		t.Fatalf("unexpected alert batch %+v", sent[0])
	}
	if len(sent[0].OtherActive) != 0 {
		t.Fatalf("batched alerts must not repeat in other active, got %+v", sent[0].OtherActive)
	}
	if sent[1].Kind != domain.NotificationResolution || sent[1].Batch || len(sent[1].OtherActive) != 3 {
		t.Fatalf("unexpected resolution %+v", sent[1])
	}

	if _, err := fx.manager.EndSession(ctx); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestObservePersistFailureIsReturned(t *testing.T) {
	t.Parallel()

	fx := newManagerFixture(t)
	fx.store.setFail(true)

	_, err := fx.manager.Observe(context.Background(), cpuObservation("web1", "CPU usage at 92.0%, threshold is 80%"))
	if !errors.Is(err, ledger.ErrPersist) {
		t.Fatalf("expected ErrPersist, got %v", err)
	}
	if len(fx.notifier.sent()) != 0 {
		t.Fatal("nothing may be sent when the ledger write failed")
	}
	if fx.journal.Len() != 0 {
		t.Fatal("journal must not record an unpersisted observation")
	}
}

func TestSendTestDoesNotTouchLedger(t *testing.T) {
	t.Parallel()

	fx := newManagerFixture(t)
	ctx := context.Background()
	if _, err := fx.manager.Observe(ctx, cpuObservation("web1", "CPU usage at 92.0%, threshold is 80%")); err != nil {
		t.Fatalf("observe: %v", err)
	}
	fx.clock.Advance(time.Minute)

	result := fx.manager.SendTest(ctx)
	if !result.AnySucceeded() {
		t.Fatal("expected test delivery")
	}
	sent := fx.notifier.sent()
	if sent[len(sent)-1].Kind != domain.NotificationTest {
		t.Fatalf("unexpected kind %s", sent[len(sent)-1].Kind)
	}
	if record := fx.ledger.Active()[0]; !record.LastNotified.Equal(t0) {
		t.Fatalf("test send must not reset cooldown, got %s", record.LastNotified)
	}
}

func TestManagerWithoutNotifier(t *testing.T) {
	t.Parallel()

	fx := newManagerFixture(t)
	fx.manager.SetNotifier(nil)
	decision, err := fx.manager.Observe(context.Background(), cpuObservation("web1", "CPU usage at 92.0%, threshold is 80%"))
	if err != nil || !decision.ShouldNotify {
		t.Fatalf("observe: %+v %v", decision, err)
	}
	if len(fx.manager.SendTest(context.Background()).Outcomes) != 0 {
		t.Fatal("expected no outcomes without notifier")
	}
}

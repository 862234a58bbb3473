package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"heimdall/internal/config"
	"heimdall/internal/domain"
	"heimdall/internal/ledger"
	"heimdall/internal/logging"
	"heimdall/internal/notify"
	"heimdall/internal/sampler"
	"heimdall/internal/state"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type captureNotifier struct {
	mu    sync.Mutex
	items []domain.Notification
	fail  bool
}

func (n *captureNotifier) Notify(_ context.Context, notification domain.Notification) notify.DeliveryResult {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = append(n.items, notification)
	if n.fail {
		return notify.DeliveryResult{Outcomes: map[string]error{"email": errors.New("smtp down"), "telegram": errors.New("bad gateway")}}
	}
	return notify.DeliveryResult{Outcomes: map[string]error{"email": nil, "telegram": errors.New("bad gateway")}}
}

func (n *captureNotifier) sent() []domain.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.Notification(nil), n.items...)
}

type failingStore struct {
	*state.MemoryStore
	mu   sync.Mutex
	fail bool
}

func (s *failingStore) setFail(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = v
}

func (s *failingStore) Save(ctx context.Context, snapshot domain.LedgerSnapshot) error {
	s.mu.Lock()
	fail := s.fail
	s.mu.Unlock()
	if fail {
		return errors.New("read-only file system")
	}
	return s.MemoryStore.Save(ctx, snapshot)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

type managerFixture struct {
	manager  *Manager
	ledger   *ledger.Ledger
	notifier *captureNotifier
	clock    *manualClock
	store    *failingStore
	journal  *bytes.Buffer
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	store := &failingStore{MemoryStore: state.NewMemoryStore()}
	led, err := ledger.Open(context.Background(), store, ledger.Options{Cooldown: time.Hour})
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	clk := &manualClock{now: t0}
	notifier := &captureNotifier{}
	journal := &bytes.Buffer{}
	manager := NewManager(led, notifier, logging.NewJournal(nopWriteCloser{journal}), NewMetrics(), logging.Discard(), clk)
	return &managerFixture{
		manager:  manager,
		ledger:   led,
		notifier: notifier,
		clock:    clk,
		store:    store,
		journal:  journal,
	}
}

func cpuObservation(server, message string) domain.Observation {
	return domain.Observation{Server: server, Hostname: server + ".internal", Type: ledger.TypeCPU, Message: message}
}

// fakeSampler returns scripted reports per server nickname.
type fakeSampler struct {
	mu      sync.Mutex
	reports map[string]sampler.Report
	errs    map[string]error
	calls   []string
}

func newFakeSampler() *fakeSampler {
	return &fakeSampler{reports: map[string]sampler.Report{}, errs: map[string]error{}}
}

func (f *fakeSampler) set(nickname string, report sampler.Report, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports[nickname] = report
	f.errs[nickname] = err
}

func (f *fakeSampler) Sample(_ context.Context, server config.Server) (sampler.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, server.Nickname)
	report := f.reports[server.Nickname]
	report.Server = server
	return report, f.errs[server.Nickname]
}

func (f *fakeSampler) sampled() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func healthyReport(cpu, memory float64, disks ...sampler.DiskUsage) sampler.Report {
	return sampler.Report{
		CPU:    sampler.Reading{Value: cpu},
		Memory: sampler.Reading{Value: memory},
		Disks:  disks,
	}
}

func testServer(nickname string, services ...string) config.Server {
	return config.Server{Nickname: nickname, Hostname: nickname + ".internal", Port: 22, Username: "root", Services: services}
}

package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"heimdall/internal/config"
	"heimdall/internal/domain"
	"heimdall/internal/logging"
	"heimdall/internal/sampler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedPrompter answers forms from queued values.
type scriptedPrompter struct {
	server    func(*config.Server)
	nickname  string
	selects   []string
	confirm   bool
	smtp      func(*config.EmailNotifier)
	telegram  func(*config.TelegramNotifier)
	suggested string
}

func (p *scriptedPrompter) Server(_ string, server *config.Server) error {
	if p.server == nil {
		return errCancelled
	}
	p.server(server)
	return nil
}

func (p *scriptedPrompter) Nickname(suggested string) (string, error) {
	p.suggested = suggested
	if p.nickname == "" {
		return suggested, nil
	}
	return p.nickname, nil
}

func (p *scriptedPrompter) Select(_ string, _ []string) (string, error) {
	if len(p.selects) == 0 {
		return "", errCancelled
	}
	choice := p.selects[0]
	p.selects = p.selects[1:]
	return choice, nil
}

func (p *scriptedPrompter) Confirm(string) (bool, error) {
	return p.confirm, nil
}

func (p *scriptedPrompter) SMTP(email *config.EmailNotifier) error {
	if p.smtp == nil {
		return errCancelled
	}
	p.smtp(email)
	return nil
}

func (p *scriptedPrompter) Telegram(telegram *config.TelegramNotifier) error {
	if p.telegram == nil {
		return errCancelled
	}
	p.telegram(telegram)
	return nil
}

// stubSampler returns one report for every server.
type stubSampler struct {
	mu     sync.Mutex
	report sampler.Report
	calls  []string
}

func (s *stubSampler) Sample(_ context.Context, server config.Server) (sampler.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, server.Nickname)
	report := s.report
	report.Server = server
	return report, nil
}

type fixture struct {
	dir       string
	config    string
	inventory string
	env       *env
	prompter  *scriptedPrompter
	probed    []string
}

func newFixture(t *testing.T, extraConfig string) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		dir:       dir,
		config:    filepath.Join(dir, "heimdall.toml"),
		inventory: filepath.Join(dir, "servers.toml"),
		prompter:  &scriptedPrompter{},
	}
	body := fmt.Sprintf(`[service]
host_pause_ms = 1

[alerts]
store = "file"
state_file = %q

[log.alerts]
enabled = false
%s`, filepath.Join(dir, "alert_status.json"), extraConfig)
	require.NoError(t, os.WriteFile(f.config, []byte(body), 0o600))

	f.env = &env{
		prompter: f.prompter,
		probe: func(_ context.Context, server config.Server, _ config.SamplerConfig) (string, error) {
			f.probed = append(f.probed, server.Hostname)
			if server.Hostname == "unreachable.example" {
				return "", errors.New("dial tcp: connection refused")
			}
			return "srv-" + server.Hostname, nil
		},
		logger: logging.Discard(),
	}
	return f
}

func (f *fixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand(f.env)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--config", f.config, "--servers", f.inventory))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (f *fixture) writeInventory(t *testing.T, servers ...config.Server) {
	t.Helper()
	require.NoError(t, config.SaveInventory(f.inventory, config.Inventory{Servers: servers}))
}

func (f *fixture) loadInventory(t *testing.T) config.Inventory {
	t.Helper()
	inv, err := config.LoadInventory(f.inventory)
	require.NoError(t, err)
	return inv
}

func TestHostsAddWithFlagsUsesDetectedHostname(t *testing.T) {
	f := newFixture(t, "")

	out, err := f.run(t, "hosts", "add", "--hostname", "10.0.0.5", "--user", "root", "--service", "nginx", "--service", "redis")
	require.NoError(t, err)
	assert.Contains(t, out, "Added server 'srv-10.0.0.5'")

	inv := f.loadInventory(t)
	require.Len(t, inv.Servers, 1)
	assert.Equal(t, config.Server{
		Nickname: "srv-10.0.0.5",
		Hostname: "10.0.0.5",
		Port:     22,
		Username: "root",
		Services: []string{"nginx", "redis"},
	}, inv.Servers[0])
}

func TestHostsAddInteractiveProposesRemoteHostname(t *testing.T) {
	f := newFixture(t, "")
	f.prompter.server = func(server *config.Server) {
		server.Hostname = "db.internal"
		server.Port = 2222
		server.Username = "admin"
	}
	f.prompter.nickname = "db1"

	_, err := f.run(t, "hosts", "add")
	require.NoError(t, err)
	assert.Equal(t, "srv-db.internal", f.prompter.suggested)

	server, _, ok := f.loadInventory(t).Find("db1")
	require.True(t, ok)
	assert.Equal(t, 2222, server.Port)
	assert.Equal(t, "admin", server.Username)
}

func TestHostsAddLeavesInventoryUntouchedOnProbeFailure(t *testing.T) {
	f := newFixture(t, "")

	_, err := f.run(t, "hosts", "add", "--hostname", "unreachable.example", "--user", "root")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection test failed")

	_, statErr := os.Stat(f.inventory)
	assert.True(t, os.IsNotExist(statErr))
}

func TestHostsAddRejectsDuplicateNickname(t *testing.T) {
	f := newFixture(t, "")
	f.writeInventory(t, config.Server{Nickname: "web1", Hostname: "web1.internal", Username: "root"})

	_, err := f.run(t, "hosts", "add", "--hostname", "other", "--user", "root", "--nickname", "WEB1", "--skip-probe")
	require.Error(t, err)
	assert.Empty(t, f.probed)
	assert.Len(t, f.loadInventory(t).Servers, 1)
}

func TestHostsEditAndRemove(t *testing.T) {
	f := newFixture(t, "")
	f.writeInventory(t,
		config.Server{Nickname: "web1", Hostname: "web1.internal", Username: "root"},
		config.Server{Nickname: "web2", Hostname: "web2.internal", Username: "root"},
	)

	_, err := f.run(t, "hosts", "edit", "web1", "--port", "2200", "--service", "nginx")
	require.NoError(t, err)
	server, _, _ := f.loadInventory(t).Find("web1")
	assert.Equal(t, 2200, server.Port)
	assert.Equal(t, []string{"nginx"}, server.Services)

	f.prompter.selects = []string{"web2"}
	f.prompter.confirm = false
	out, err := f.run(t, "hosts", "remove")
	require.NoError(t, err)
	assert.Contains(t, out, "Cancelled.")
	assert.Len(t, f.loadInventory(t).Servers, 2)

	_, err = f.run(t, "hosts", "remove", "web2", "--yes")
	require.NoError(t, err)
	assert.Len(t, f.loadInventory(t).Servers, 1)

	_, err = f.run(t, "hosts", "remove", "ghost", "--yes")
	assert.ErrorIs(t, err, config.ErrServerNotFound)
}

func TestHostsListEmpty(t *testing.T) {
	f := newFixture(t, "")

	out, err := f.run(t, "hosts", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No servers configured")
}

func TestCheckRaisesAlertAndAlertsShowsIt(t *testing.T) {
	f := newFixture(t, "")
	f.writeInventory(t, config.Server{Nickname: "web1", Hostname: "web1.internal", Username: "root"})
	stub := &stubSampler{report: sampler.Report{
		CPU:    sampler.Reading{Value: 95},
		Memory: sampler.Reading{Value: 20},
		Disks:  []sampler.DiskUsage{{Mount: "/", Percent: 40}},
	}}
	f.env.sampler = stub

	out, err := f.run(t, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "web1 (web1.internal)")
	assert.Contains(t, out, "cpu 95.0%")
	assert.Contains(t, out, "alert")
	assert.Equal(t, []string{"web1"}, stub.calls)

	out, err = f.run(t, "alerts")
	require.NoError(t, err)
	assert.Contains(t, out, "Active alerts (1)")
	assert.Contains(t, out, "CPU usage at 95.0%, threshold is 80%")
}

func TestSubscribersApproveWithoutBotPersists(t *testing.T) {
	f := newFixture(t, `
[notify.telegram]
[[notify.telegram.subscribers]]
chat_id = 42
username = "alice"
subscribed_at = 2026-03-01T10:00:00Z
approved = false
`)

	out, err := f.run(t, "subscribers", "approve", "42")
	require.NoError(t, err)
	assert.Contains(t, out, "Approved @alice (42)")

	cfg, err := config.Load(f.config)
	require.NoError(t, err)
	require.Len(t, cfg.Notify.Telegram.Subscribers, 1)
	assert.True(t, cfg.Notify.Telegram.Subscribers[0].Approved)

	out, err = f.run(t, "subscribers", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "1 approved, 0 pending")

	_, err = f.run(t, "subscribers", "remove", "7")
	require.Error(t, err)

	_, err = f.run(t, "subscribers", "approve", "not-a-number")
	require.Error(t, err)
}

func TestConfigureSMTPWritesSection(t *testing.T) {
	f := newFixture(t, "")
	f.prompter.smtp = func(email *config.EmailNotifier) {
		email.SMTPServer = "smtp.example.com"
		email.SMTPPort = 587
		email.UseTLS = true
		email.Sender = "heimdall@example.com"
		email.Recipients = []string{"ops@example.com"}
	}

	_, err := f.run(t, "configure", "smtp")
	require.NoError(t, err)

	cfg, err := config.Load(f.config)
	require.NoError(t, err)
	assert.True(t, cfg.Notify.Email.Enabled)
	assert.Equal(t, "smtp.example.com", cfg.Notify.Email.SMTPServer)
	assert.Equal(t, []string{"ops@example.com"}, cfg.Notify.Email.Recipients)
	assert.Equal(t, filepath.Join(f.dir, "alert_status.json"), cfg.Alerts.StateFile)
}

func TestConfigureSMTPRejectsInvalidSender(t *testing.T) {
	f := newFixture(t, "")
	before, err := os.ReadFile(f.config)
	require.NoError(t, err)
	f.prompter.smtp = func(email *config.EmailNotifier) {
		email.SMTPServer = "smtp.example.com"
		email.Sender = "not an address"
		email.Recipients = []string{"ops@example.com"}
	}

	_, err = f.run(t, "configure", "smtp")
	require.Error(t, err)

	after, err := os.ReadFile(f.config)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestTestTelegramRequiresToken(t *testing.T) {
	f := newFixture(t, "")

	_, err := f.run(t, "test", "telegram")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bot_token")

	_, err = f.run(t, "test", "pager")
	require.Error(t, err)
}

func TestTestWithoutChannelsReportsNothingEnabled(t *testing.T) {
	f := newFixture(t, "")

	out, err := f.run(t, "test")
	require.NoError(t, err)
	assert.Contains(t, out, "No notification channels are enabled.")
}

func TestInteractiveMenuRunsActionsUntilExit(t *testing.T) {
	f := newFixture(t, "")
	f.writeInventory(t, config.Server{Nickname: "web1", Hostname: "web1.internal", Username: "root"})
	f.prompter.selects = []string{menuList, menuRemove, "web1", menuExit}
	f.prompter.confirm = true

	out, err := f.run(t, "interactive")
	require.NoError(t, err)
	assert.Contains(t, out, "web1.internal:22")
	assert.Contains(t, out, "Removed server 'web1'")
	assert.Empty(t, f.loadInventory(t).Servers)
}

func TestRenderSubscribersCountsPending(t *testing.T) {
	var out bytes.Buffer
	renderSubscribers(&out, []domain.Subscriber{
		{ChatID: 1, Username: "alice", Approved: true},
		{ChatID: 2, FirstName: "Bob"},
	})
	assert.Contains(t, out.String(), "pending approval")
	assert.Contains(t, out.String(), "1 approved, 1 pending")
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", []string{}},
		{"nginx", []string{"nginx"}},
		{"nginx, redis ,  postgresql", []string{"nginx", "redis", "postgresql"}},
		{"a b,,c", []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, splitList(tt.in))
		})
	}
}

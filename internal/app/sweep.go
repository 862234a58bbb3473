package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"heimdall/internal/clock"
	"heimdall/internal/config"
	"heimdall/internal/domain"
	"heimdall/internal/ledger"
	"heimdall/internal/logging"
	"heimdall/internal/sampler"

	"github.com/google/uuid"
)

// flushTimeout bounds session delivery after the sweep context ended.
const flushTimeout = 30 * time.Second

// Sampler reads one host report.
type Sampler interface {
	Sample(ctx context.Context, server config.Server) (sampler.Report, error)
}

// SweepOptions are the per-sweep policy values.
// Params: thresholds, batching flag, and pause between hosts.
// Returns: immutable options for one sweep.
type SweepOptions struct {
	Thresholds config.Thresholds
	Batch      bool
	HostPause  time.Duration
}

// SweepOptionsFrom extracts sweep options from config.
func SweepOptionsFrom(cfg config.Config) SweepOptions {
	return SweepOptions{
		Thresholds: cfg.Thresholds,
		Batch:      cfg.Alerts.Batch,
		HostPause:  time.Duration(cfg.Service.HostPauseMS) * time.Millisecond,
	}
}

// HostResult is the outcome of checking one server.
type HostResult struct {
	Server   config.Server
	Report   sampler.Report
	Err      error
	Raised   []string
	Resolved []string
	Skipped  []string
}

// Reachable reports whether the host produced a report.
func (h HostResult) Reachable() bool {
	return h.Err == nil
}

// Summary describes one sweep.
type Summary struct {
	ID       uuid.UUID
	Started  time.Time
	Finished time.Time
	Hosts    []HostResult
	Session  SessionReport
}

// Duration returns sweep wall time.
func (s Summary) Duration() time.Duration {
	return s.Finished.Sub(s.Started)
}

// Sweeper checks every host in order and feeds the manager.
// Params: manager, sampler, options, metrics, logger, and clock.
// Returns: sequential sweep runner.
type Sweeper struct {
	mu      sync.Mutex
	manager *Manager
	sampler Sampler
	opts    SweepOptions
	metrics *Metrics
	logger  *slog.Logger
	clock   clock.Clock
}

// NewSweeper creates sweeper.
func NewSweeper(manager *Manager, sample Sampler, opts SweepOptions, metrics *Metrics, logger *slog.Logger, clk clock.Clock) *Sweeper {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Sweeper{
		manager: manager,
		sampler: sample,
		opts:    opts,
		metrics: metrics,
		logger:  logger,
		clock:   clock.OrReal(clk),
	}
}

// SetOptions replaces options; the next sweep picks them up.
func (s *Sweeper) SetOptions(opts SweepOptions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts = opts
}

// SetSampler replaces the sampler after a config reload.
func (s *Sweeper) SetSampler(sample Sampler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sampler = sample
}

func (s *Sweeper) snapshot() (SweepOptions, Sampler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts, s.sampler
}

// Sweep checks servers sequentially.
// Params: context and ordered inventory.
// Returns: summary and the error that aborted the sweep (persistence or cancellation).
func (s *Sweeper) Sweep(ctx context.Context, servers []config.Server) (Summary, error) {
	opts, sample := s.snapshot()
	summary := Summary{ID: uuid.New(), Started: s.clock.Now()}
	logger := s.logger.With("sweep_id", summary.ID.String())
	logger.Info("sweep started", "hosts", len(servers), "batch", opts.Batch)

	if opts.Batch {
		if err := s.manager.StartSession(); err != nil {
			return summary, err
		}
	}

	var sweepErr error
	for i, server := range servers {
		if i > 0 && opts.HostPause > 0 {
			if !sleepContext(ctx, opts.HostPause) {
				break
			}
		}
		if ctx.Err() != nil {
			break
		}
		result, err := s.checkHost(ctx, logger, sample, server, opts.Thresholds)
		summary.Hosts = append(summary.Hosts, result)
		if err != nil {
			sweepErr = err
			logger.Error("sweep aborted", "server", server.Nickname, "error", err.Error())
			break
		}
	}
	if sweepErr == nil && ctx.Err() != nil {
		sweepErr = ctx.Err()
	}

	if opts.Batch {
		flushCtx := ctx
		if ctx.Err() != nil {
			var cancel context.CancelFunc
			flushCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
			defer cancel()
		}
		report, err := s.manager.EndSession(flushCtx)
		summary.Session = report
		if err != nil && sweepErr == nil {
			sweepErr = err
		}
	}

	summary.Finished = s.clock.Now()
	result := "ok"
	if sweepErr != nil {
		result = "error"
	}
	s.metrics.ObserveSweep(result, summary.Duration())
	logger.Info("sweep finished", "hosts", len(summary.Hosts), "duration", summary.Duration().String(), "result", result)
	return summary, sweepErr
}

// checkHost samples one server and applies thresholds.
// Returns: host result and persistence error.
func (s *Sweeper) checkHost(ctx context.Context, logger *slog.Logger, sample Sampler, server config.Server, th config.Thresholds) (HostResult, error) {
	result := HostResult{Server: server}
	logger = logger.With("server", server.Nickname, "hostname", server.Hostname)

	report, err := sample.Sample(ctx, server)
	result.Report = report
	if err != nil {
		if ctx.Err() != nil {
			result.Err = ctx.Err()
			return result, nil
		}
		result.Err = err
		s.metrics.ObserveHost("unreachable")
		logger.Warn("host check failed", "error", err.Error())

		message := "Error checking server: " + err.Error()
		var connErr *sampler.ConnectivityError
		if errors.As(err, &connErr) {
			message = connErr.AlertMessage()
		}
		_, obsErr := s.manager.Observe(ctx, domain.Observation{
			Server:   server.Nickname,
			Hostname: server.Hostname,
			Type:     ledger.TypeConnectivity,
			Message:  message,
		})
		result.Raised = append(result.Raised, ledger.TypeConnectivity)
		return result, obsErr
	}
	s.metrics.ObserveHost("ok")

	eval := hostEvaluator{manager: s.manager, logger: logger, server: server, result: &result}
	if err := eval.clear(ctx, ledger.TypeConnectivity, "Server is reachable again"); err != nil {
		return result, err
	}

	if report.CPU.OK() {
		if err := eval.percent(ctx, ledger.TypeCPU, "CPU", report.CPU.Value, th.CPU,
			fmt.Sprintf("CPU usage at %.1f%%, threshold is %s%%", report.CPU.Value, formatThreshold(th.CPU))); err != nil {
			return result, err
		}
	} else {
		eval.skip(ledger.TypeCPU, report.CPU.Err)
	}

	if report.Memory.OK() {
		if err := eval.percent(ctx, ledger.TypeMemory, "Memory", report.Memory.Value, th.Memory,
			fmt.Sprintf("Memory usage at %.1f%%, threshold is %s%%", report.Memory.Value, formatThreshold(th.Memory))); err != nil {
			return result, err
		}
	} else {
		eval.skip(ledger.TypeMemory, report.Memory.Err)
	}

	if report.DiskErr != nil {
		eval.skip("disk", report.DiskErr)
	}
	for _, disk := range report.Disks {
		if err := eval.percent(ctx, ledger.DiskType(disk.Mount), "Disk "+disk.Mount, disk.Percent, th.Disk,
			fmt.Sprintf("Disk usage for %s at %.1f%%, threshold is %s%%", disk.Mount, disk.Percent, formatThreshold(th.Disk))); err != nil {
			return result, err
		}
	}

	for _, svc := range report.Services {
		if err := eval.service(ctx, svc); err != nil {
			return result, err
		}
	}

	logger.Info("host checked",
		"cpu", formatReading(report.CPU),
		"memory", formatReading(report.Memory),
		"disks", len(report.Disks),
		"raised", len(result.Raised),
		"resolved", len(result.Resolved),
		"duration", report.Duration.String(),
	)
	return result, nil
}

// hostEvaluator applies breach/resolve decisions for one host report.
type hostEvaluator struct {
	manager *Manager
	logger  *slog.Logger
	server  config.Server
	result  *HostResult
}

// percent raises at or above threshold and resolves below it.
func (e hostEvaluator) percent(ctx context.Context, alertType, label string, value, threshold float64, breach string) error {
	if value >= threshold {
		return e.raise(ctx, alertType, breach)
	}
	detail := fmt.Sprintf("%s usage now at %.1f%%, below threshold of %s%%", label, value, formatThreshold(threshold))
	return e.clear(ctx, alertType, detail)
}

// service compares running=0 and stopped=1 against a threshold of 1.
func (e hostEvaluator) service(ctx context.Context, svc sampler.ServiceResult) error {
	alertType := ledger.ServiceType(svc.Name)
	if svc.State == sampler.ServiceUnknown {
		e.skip(alertType, svc.Err)
		return nil
	}
	down := 0.0
	if svc.State == sampler.ServiceStopped {
		down = 1
	}
	if down >= 1 {
		return e.raise(ctx, alertType, fmt.Sprintf("Service %s is not running", svc.Name))
	}
	return e.clear(ctx, alertType, fmt.Sprintf("Service %s is running again", svc.Name))
}

func (e hostEvaluator) raise(ctx context.Context, alertType, message string) error {
	_, err := e.manager.Observe(ctx, domain.Observation{
		Server:   e.server.Nickname,
		Hostname: e.server.Hostname,
		Type:     alertType,
		Message:  message,
	})
	e.result.Raised = append(e.result.Raised, alertType)
	return err
}

func (e hostEvaluator) clear(ctx context.Context, alertType, detail string) error {
	event, err := e.manager.Clear(ctx, e.server.Nickname, e.server.Hostname, alertType, detail)
	if event != nil {
		e.result.Resolved = append(e.result.Resolved, alertType)
	}
	return err
}

// skip logs a parse failure; the metric neither raises nor resolves.
func (e hostEvaluator) skip(alertType string, err error) {
	e.result.Skipped = append(e.result.Skipped, alertType)
	if err != nil {
		e.logger.Warn("metric skipped", "type", alertType, "error", err.Error())
	}
}

func formatThreshold(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func formatReading(r sampler.Reading) string {
	if !r.OK() {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", r.Value)
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

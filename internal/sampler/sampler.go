package sampler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"heimdall/internal/config"
	"heimdall/internal/sshclient"
)

const (
	cpuCommand         = `LC_ALL=C top -bn1 | grep 'Cpu(s)' | awk '{print $2 + $4}'`
	memoryCommand      = `LC_ALL=C free | grep Mem`
	diskTypedCommand   = `LC_ALL=C df -PT`
	diskUntypedCommand = `LC_ALL=C df -P`
)

// Shell runs commands on one connected host.
type Shell interface {
	Run(ctx context.Context, cmd string) (sshclient.Result, error)
	Close() error
}

// Dialer opens a Shell for one inventory entry.
type Dialer interface {
	Dial(ctx context.Context, server config.Server) (Shell, error)
}

// SSHDialer dials inventory entries over SSH.
type SSHDialer struct {
	Config config.SamplerConfig
}

// Dial resolves settings for server and opens an SSH connection.
func (d SSHDialer) Dial(ctx context.Context, server config.Server) (Shell, error) {
	client, err := sshclient.Dial(ctx, sshclient.SettingsFor(server, d.Config))
	if err != nil {
		return nil, err
	}
	return client, nil
}

// ProbeFunc checks raw TCP reachability.
type ProbeFunc func(ctx context.Context, address string, timeout time.Duration) error

// ProbeTCP opens and closes one TCP connection.
func ProbeTCP(ctx context.Context, address string, timeout time.Duration) error {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return err
	}
	return conn.Close()
}

// Reading is one scalar metric or the reason it is missing.
type Reading struct {
	Value float64
	Err   error
}

// OK reports whether the reading carries a value.
func (r Reading) OK() bool {
	return r.Err == nil
}

// ServiceResult is the state of one configured service.
type ServiceResult struct {
	Name  string
	State ServiceState
	Probe ServiceProbe
	Err   error
}

// Report holds every metric read from one host.
type Report struct {
	Server   config.Server
	CPU      Reading
	Memory   Reading
	Disks    []DiskUsage
	DiskErr  error
	Services []ServiceResult
	Duration time.Duration
}

// Sampler reads metrics from hosts over a remote shell.
type Sampler struct {
	dialer         Dialer
	probe          ProbeFunc
	connectTimeout time.Duration
	commandTimeout time.Duration
	logger         *slog.Logger
}

// New builds a sampler.
// Params: sampler config, dialer (SSHDialer in production), and optional logger.
// Returns: sampler using ProbeTCP for liveness.
func New(cfg config.SamplerConfig, dialer Dialer, logger *slog.Logger) *Sampler {
	return &Sampler{
		dialer:         dialer,
		probe:          ProbeTCP,
		connectTimeout: time.Duration(cfg.ConnectTimeoutSec) * time.Second,
		commandTimeout: time.Duration(cfg.CommandTimeoutSec) * time.Second,
		logger:         logger,
	}
}

// Sample checks one host.
// Params: context and inventory entry.
// Returns: metric report; *ConnectivityError when the host could not be reached or logged into.
func (s *Sampler) Sample(ctx context.Context, server config.Server) (Report, error) {
	started := time.Now()
	report := Report{Server: server}

	if err := s.probe(ctx, server.Address(), s.connectTimeout); err != nil {
		return report, newConnectivityError(StageProbe, err)
	}

	dialCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.connectTimeout > 0 {
		dialCtx, cancel = context.WithTimeout(ctx, s.connectTimeout)
	}
	shell, err := s.dialer.Dial(dialCtx, server)
	cancel()
	if err != nil {
		return report, newConnectivityError(StageSession, err)
	}
	defer shell.Close()

	report.CPU = s.readScalar(ctx, shell, cpuCommand, ParseCPU)
	report.Memory = s.readScalar(ctx, shell, memoryCommand, ParseMemory)
	report.Disks, report.DiskErr = s.readDisks(ctx, shell)
	for _, name := range server.Services {
		report.Services = append(report.Services, s.checkService(ctx, shell, name))
	}
	report.Duration = time.Since(started)
	return report, nil
}

// run executes one command under the per-command timeout.
func (s *Sampler) run(ctx context.Context, shell Shell, cmd string) (sshclient.Result, error) {
	if s.commandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.commandTimeout)
		defer cancel()
	}
	return shell.Run(ctx, cmd)
}

func (s *Sampler) readScalar(ctx context.Context, shell Shell, cmd string, parse func(string) (float64, error)) Reading {
	result, err := s.run(ctx, shell, cmd)
	if err != nil {
		return Reading{Err: err}
	}
	value, err := parse(string(result.Stdout))
	if err != nil {
		return Reading{Err: err}
	}
	return Reading{Value: value}
}

func (s *Sampler) readDisks(ctx context.Context, shell Shell) ([]DiskUsage, error) {
	result, err := s.run(ctx, shell, diskTypedCommand)
	if err == nil && result.ExitCode == 0 && strings.TrimSpace(string(result.Stdout)) != "" {
		return ParseDisk(string(result.Stdout), true)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	result, err = s.run(ctx, shell, diskUntypedCommand)
	if err != nil {
		return nil, err
	}
	return ParseDisk(string(result.Stdout), false)
}

// checkService walks the probe fallback chain until one decides.
func (s *Sampler) checkService(ctx context.Context, shell Shell, name string) ServiceResult {
	var lastErr error
	for _, probe := range serviceProbes {
		result, err := s.run(ctx, shell, probe.Command(name))
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		state := ParseServiceState(probe, result.ExitCode, string(result.Stdout))
		if state != ServiceUnknown {
			return ServiceResult{Name: name, State: state, Probe: probe}
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%w: no probe could determine service %q state", ErrUnexpectedOutput, name)
	}
	if s.logger != nil && !errors.Is(lastErr, context.Canceled) {
		s.logger.Debug("service state undetermined", "service", name, "error", lastErr.Error())
	}
	return ServiceResult{Name: name, State: ServiceUnknown, Err: lastErr}
}

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"heimdall/internal/chatbot"
	"heimdall/internal/domain"
)

// Service runs sweeps on a fixed cadence with the chat loop and status server.
// Params: runtime wiring.
// Returns: long-running watch-mode process.
type Service struct {
	rt        *Runtime
	runner    *chatbot.Runner
	watcher   *Watcher
	httpSrv   *http.Server
	readyFlag atomic.Bool
	dirty     atomic.Bool
	lastSweep atomic.Pointer[Summary]
}

// NewService builds the watch-mode service.
// Params: runtime built by NewRuntime.
// Returns: service or watcher setup error.
func NewService(rt *Runtime) (*Service, error) {
	s := &Service{rt: rt}
	cfg := rt.Config()

	if rt.Bot != nil && cfg.Notify.Telegram.Enabled {
		s.runner = chatbot.NewRunner(rt.Bot)
	}
	if cfg.Service.ReloadOnChange {
		watcher, err := NewWatcher([]string{rt.paths.Config, rt.InventoryPath()}, func(path string) {
			s.dirty.Store(true)
		}, rt.Logger)
		if err != nil {
			return nil, err
		}
		s.watcher = watcher
	}
	if cfg.Service.StatusListen != "" {
		s.httpSrv = &http.Server{
			Addr:              cfg.Service.StatusListen,
			Handler:           s.statusHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return s, nil
}

// Run sweeps immediately and then every check interval until ctx ends or a signal arrives.
// Params: root context for service runtime.
// Returns: terminal run error.
func (s *Service) Run(ctx context.Context) error {
	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	logger := s.rt.Logger

	errChan := make(chan error, 1)
	if s.httpSrv != nil {
		go func() {
			logger.Info("status server starting", "listen", s.httpSrv.Addr)
			err := s.httpSrv.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()
	}
	if s.watcher != nil {
		go s.watcher.Run(runCtx)
	}
	if s.runner != nil {
		s.runner.Start(runCtx)
	}
	s.readyFlag.Store(true)

	for {
		s.sweepOnce(runCtx)

		interval := time.Duration(s.rt.Config().Service.CheckIntervalSec) * time.Second
		timer := time.NewTimer(interval)
		select {
		case <-runCtx.Done():
			timer.Stop()
			return s.shutdown()
		case err := <-errChan:
			timer.Stop()
			return errors.Join(fmt.Errorf("status server failed: %w", err), s.shutdown())
		case <-timer.C:
		}
	}
}

// sweepOnce applies pending reloads and runs one sweep; failures are logged only.
func (s *Service) sweepOnce(ctx context.Context) {
	logger := s.rt.Logger
	if s.dirty.Swap(false) {
		if err := s.rt.Reload(); err != nil {
			logger.Error("reload failed, keeping previous configuration", "error", err.Error())
		}
	}
	summary, err := s.rt.Sweep(ctx)
	s.lastSweep.Store(&summary)
	s.rt.Metrics.SetSubscribers(s.rt.Registry.Counts())
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("sweep failed", "sweep_id", summary.ID.String(), "error", err.Error())
	}
}

// shutdown stops the chat loop and status server, then releases the runtime.
// Params: none.
// Returns: joined shutdown errors.
func (s *Service) shutdown() error {
	s.readyFlag.Store(false)
	logger := s.rt.Logger
	var errs []error

	if s.runner != nil {
		grace := time.Duration(s.rt.Config().Notify.Telegram.StopGraceSec) * time.Second
		if err := s.runner.Stop(grace); err != nil {
			logger.Error("chat loop stop failed", "error", err.Error())
			errs = append(errs, err)
		}
	}
	if s.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			logger.Error("status server shutdown failed", "error", err.Error())
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("watcher close: %w", err))
		}
	}
	logger.Info("service stopped")
	if err := s.rt.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// alertsResponse is the /alerts document.
type alertsResponse struct {
	Active    []domain.AlertRecord `json:"active_alerts"`
	Resolved  []domain.AlertRecord `json:"resolved_alerts"`
	LastSweep *sweepStatus         `json:"last_sweep,omitempty"`
}

type sweepStatus struct {
	ID       string    `json:"id"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Hosts    int       `json:"hosts"`
}

// statusHandler wires health, readiness, alert, and metrics endpoints.
func (s *Service) statusHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(writer http.ResponseWriter, _ *http.Request) {
		if !s.readyFlag.Load() {
			writer.WriteHeader(http.StatusServiceUnavailable)
			_, _ = writer.Write([]byte("not-ready"))
			return
		}
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte("ready"))
	})
	mux.HandleFunc("/alerts", func(writer http.ResponseWriter, _ *http.Request) {
		body := alertsResponse{
			Active:   s.rt.Ledger.Active(),
			Resolved: s.rt.Ledger.Resolved(),
		}
		if last := s.lastSweep.Load(); last != nil {
			body.LastSweep = &sweepStatus{
				ID:       last.ID.String(),
				Started:  last.Started,
				Finished: last.Finished,
				Hosts:    len(last.Hosts),
			}
		}
		writer.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(writer).Encode(body)
	})
	mux.Handle("/metrics", s.rt.Metrics.Handler())
	return mux
}

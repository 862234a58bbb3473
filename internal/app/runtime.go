package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"sync"
	"time"

	"heimdall/internal/chatbot"
	"heimdall/internal/clock"
	"heimdall/internal/config"
	"heimdall/internal/domain"
	"heimdall/internal/ledger"
	"heimdall/internal/logging"
	"heimdall/internal/notify"
	"heimdall/internal/sampler"
	"heimdall/internal/state"
)

// Paths locates the files a runtime is built from.
// Params: application config path and optional inventory override.
type Paths struct {
	Config    string
	Inventory string
}

// RuntimeOptions override collaborators, mainly for tests and the CLI.
type RuntimeOptions struct {
	Logger  *slog.Logger
	Clock   clock.Clock
	Sampler Sampler
	Store   state.Store
}

// Runtime holds every long-lived component built from configuration.
// Params: loaded config snapshot, inventory, and shared collaborators.
// Returns: one wiring used by check, watch, bot, and operator commands.
type Runtime struct {
	mu         sync.RWMutex
	paths      Paths
	cfg        config.Config
	inventory  config.Inventory
	dispatcher *notify.Dispatcher
	ownSampler bool

	Logger   *slog.Logger
	Clock    clock.Clock
	Journal  *logging.Journal
	Store    state.Store
	Ledger   *ledger.Ledger
	Registry *chatbot.Registry
	Manager  *Manager
	Sweeper  *Sweeper
	Metrics  *Metrics
	Telegram *chatbot.TelegramAPI
	Bot      *chatbot.Bot

	closeLog func()
}

// NewRuntime loads configuration and wires components.
// Params: context for the initial ledger load, file paths, and overrides.
// Returns: runtime or the first setup error; partially built resources are released.
func NewRuntime(ctx context.Context, paths Paths, opts RuntimeOptions) (*Runtime, error) {
	cfg, err := LoadConfig(paths.Config)
	if err != nil {
		return nil, err
	}
	inventory, err := config.LoadInventory(InventoryPathFor(paths, cfg))
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		paths:     paths,
		cfg:       cfg,
		inventory: inventory,
		Clock:     clock.OrReal(opts.Clock),
		Logger:    opts.Logger,
	}
	if rt.Logger == nil {
		logger, closeLog, err := logging.New(cfg.Log)
		if err != nil {
			return nil, err
		}
		rt.Logger = logger
		rt.closeLog = closeLog
	}

	if err := rt.build(ctx, opts); err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) build(ctx context.Context, opts RuntimeOptions) error {
	cfg := rt.cfg

	journal, err := logging.OpenJournal(cfg.Log.Alerts)
	if err != nil {
		return err
	}
	rt.Journal = journal

	rt.Store = opts.Store
	if rt.Store == nil {
		store, err := buildStore(cfg)
		if err != nil {
			return err
		}
		rt.Store = store
	}

	rt.Ledger, err = ledger.Open(ctx, rt.Store, ledgerOptions(cfg))
	if err != nil {
		return err
	}

	rt.Registry = chatbot.NewRegistry(
		cfg.Notify.Telegram.Subscribers,
		chatbot.ConfigPersister(rt.paths.Config),
		cfg.Notify.Telegram.AutoApprove,
		rt.Clock,
	)
	rt.Metrics = NewMetrics()
	rt.Metrics.SetSubscribers(rt.Registry.Counts())
	rt.Metrics.SetActiveAlerts(len(rt.Ledger.Active()))

	rt.dispatcher, err = notify.NewDispatcher(cfg.Notify, rt.Registry, rt.Logger)
	if err != nil {
		return err
	}
	rt.Manager = NewManager(rt.Ledger, rt.dispatcher, rt.Journal, rt.Metrics, rt.Logger, rt.Clock)

	sample := opts.Sampler
	if sample == nil {
		sample = newSampler(cfg, rt.Logger)
		rt.ownSampler = true
	}
	rt.Sweeper = NewSweeper(rt.Manager, sample, SweepOptionsFrom(cfg), rt.Metrics, rt.Logger, rt.Clock)

	if strings.TrimSpace(cfg.Notify.Telegram.BotToken) != "" {
		rt.Telegram, err = chatbot.NewTelegramAPI(cfg.Notify.Telegram)
		if err != nil {
			return err
		}
		rt.Bot = chatbot.NewBot(rt.Registry, rt.Telegram, rt.Telegram, chatbot.OptionsFrom(cfg.Notify.Telegram), rt.Logger.With("component", "chatbot"))
	}
	return nil
}

// Config returns the current config snapshot.
func (rt *Runtime) Config() config.Config {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.cfg
}

// Inventory returns the current server inventory.
func (rt *Runtime) Inventory() config.Inventory {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.inventory
}

// Dispatcher returns the current notification dispatcher.
func (rt *Runtime) Dispatcher() *notify.Dispatcher {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.dispatcher
}

// Paths returns the files the runtime was built from.
func (rt *Runtime) Paths() Paths {
	return rt.paths
}

// InventoryPath returns the effective inventory file.
func (rt *Runtime) InventoryPath() string {
	return InventoryPathFor(rt.paths, rt.Config())
}

// Sweep checks every inventory host once.
func (rt *Runtime) Sweep(ctx context.Context) (Summary, error) {
	return rt.Sweeper.Sweep(ctx, rt.Inventory().Servers)
}

// Reload re-reads config and inventory and applies them.
// Params: none; the ledger store and bot token are fixed for the process lifetime.
// Returns: load/validation error; the previous snapshot stays active on error.
func (rt *Runtime) Reload() error {
	cfg, err := LoadConfig(rt.paths.Config)
	if err != nil {
		return err
	}
	inventory, err := config.LoadInventory(InventoryPathFor(rt.paths, cfg))
	if err != nil {
		return err
	}
	dispatcher, err := notify.NewDispatcher(cfg.Notify, rt.Registry, rt.Logger)
	if err != nil {
		return err
	}

	rt.mu.Lock()
	previous := rt.cfg
	rt.cfg = cfg
	rt.inventory = inventory
	rt.dispatcher = dispatcher
	rt.mu.Unlock()

	if previous.Alerts.Store != cfg.Alerts.Store {
		rt.Logger.Warn("alerts.store change requires restart", "current", previous.Alerts.Store, "configured", cfg.Alerts.Store)
	}
	if previous.Notify.Telegram.BotToken != cfg.Notify.Telegram.BotToken {
		rt.Logger.Warn("notify.telegram.bot_token change requires restart")
	}

	rt.Ledger.SetOptions(ledgerOptions(cfg))
	rt.Manager.SetNotifier(dispatcher)
	rt.Sweeper.SetOptions(SweepOptionsFrom(cfg))
	if rt.ownSampler {
		rt.Sweeper.SetSampler(newSampler(cfg, rt.Logger))
	}
	// Subscribers are re-read under the registry lock so a concurrent /start is not overwritten.
	if err := rt.Registry.ReloadFrom(func() ([]domain.Subscriber, bool, error) {
		fresh, err := LoadConfig(rt.paths.Config)
		return fresh.Notify.Telegram.Subscribers, fresh.Notify.Telegram.AutoApprove, err
	}); err != nil {
		rt.Logger.Warn("subscriber reload failed", "error", err)
	}
	rt.Metrics.SetSubscribers(rt.Registry.Counts())

	rt.Logger.Info("configuration reloaded", "hosts", len(inventory.Servers), "channels", strings.Join(dispatcher.Channels(), ","))
	return nil
}

// Close releases store, journal, and log sinks.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.Store != nil {
		if err := rt.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store close: %w", err))
		}
	}
	if err := rt.Journal.Close(); err != nil {
		errs = append(errs, fmt.Errorf("journal close: %w", err))
	}
	if rt.closeLog != nil {
		rt.closeLog()
	}
	return errors.Join(errs...)
}

// LoadConfig reads the application config; a missing file yields defaults.
func LoadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

// InventoryPathFor returns the override path or the configured inventory file.
func InventoryPathFor(paths Paths, cfg config.Config) string {
	if strings.TrimSpace(paths.Inventory) != "" {
		return paths.Inventory
	}
	return cfg.Service.InventoryFile
}

func ledgerOptions(cfg config.Config) ledger.Options {
	return ledger.Options{
		Cooldown:          time.Duration(cfg.Alerts.CooldownHours * float64(time.Hour)),
		ResolvedRetention: time.Duration(cfg.Alerts.ResolvedRetentionDays) * 24 * time.Hour,
	}
}

func newSampler(cfg config.Config, logger *slog.Logger) *sampler.Sampler {
	return sampler.New(cfg.Sampler, sampler.SSHDialer{Config: cfg.Sampler}, logger)
}

// buildStore creates the ledger backend from config.
// Params: root config snapshot.
// Returns: selected store backend.
func buildStore(cfg config.Config) (state.Store, error) {
	switch cfg.Alerts.Store {
	case config.StoreMemory:
		return state.NewMemoryStore(), nil
	case config.StoreNATS:
		return state.NewNATSStore(cfg.Alerts.NATS)
	default:
		return state.NewFileStore(cfg.Alerts.StateFile)
	}
}

package config

import (
	"errors"
	"fmt"
	"net/mail"
	"os"
	"strings"

	"heimdall/internal/domain"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultServiceName       = "heimdall"
	defaultCheckIntervalSec  = 300
	defaultInventoryFile     = "servers.toml"
	defaultHostPauseMS       = 1000
	defaultCPUThreshold      = 80
	defaultMemoryThreshold   = 80
	defaultDiskThreshold     = 85
	defaultCooldownHours     = 1
	defaultStateFile         = "alert_status.json"
	defaultRetentionDays     = 30
	defaultNATSURL           = "nats://127.0.0.1:4222"
	defaultNATSBucket        = "heimdall_ledger"
	defaultNATSKey           = "snapshot"
	defaultJournalPath       = "logs/alerts.log"
	defaultLogMaxSizeMB      = 10
	defaultLogMaxBackups     = 5
	defaultLogMaxAgeDays     = 30
	defaultConnectTimeoutSec = 5
	defaultCommandTimeoutSec = 20
	defaultSMTPPort          = 587
	defaultSMTPTimeoutSec    = 15
	defaultTelegramAPIBase   = "https://api.telegram.org"
	defaultPollTimeoutSec    = 30
	defaultStopGraceSec      = 5
	defaultErrorBackoffSec   = 5

	// StoreFile keeps the ledger in a local JSON document.
	StoreFile = "file"
	// StoreNATS keeps the ledger in a JetStream KV bucket.
	StoreNATS = "nats"
	// StoreMemory keeps the ledger in process memory only.
	StoreMemory = "memory"

	// ChannelEmail identifies SMTP transport.
	ChannelEmail = "email"
	// ChannelTelegram identifies Telegram transport.
	ChannelTelegram = "telegram"
)

var (
	channelOrder    = []string{ChannelEmail, ChannelTelegram}
	channelRegistry = map[string]channelDescriptor{
		ChannelEmail: {
			enabled: func(cfg NotifyConfig) bool { return cfg.Email.Enabled },
			retry:   func(cfg NotifyConfig) NotifyRetry { return cfg.Email.Retry },
		},
		ChannelTelegram: {
			enabled: func(cfg NotifyConfig) bool { return cfg.Telegram.Enabled },
			retry:   func(cfg NotifyConfig) NotifyRetry { return cfg.Telegram.Retry },
		},
	}
)

// channelDescriptor stores generic accessors for one notify transport.
type channelDescriptor struct {
	enabled func(NotifyConfig) bool
	retry   func(NotifyConfig) NotifyRetry
}

// Config holds the monitor's runtime settings.
// Params: TOML sections from the application config file.
// Returns: validated runtime configuration.
type Config struct {
	Service    ServiceConfig `toml:"service"`
	Log        LogConfig     `toml:"log"`
	Thresholds Thresholds    `toml:"thresholds"`
	Alerts     AlertsConfig  `toml:"alerts"`
	Sampler    SamplerConfig `toml:"sampler"`
	Notify     NotifyConfig  `toml:"notify"`
	AI         AIConfig      `toml:"ai"`
}

// ServiceConfig contains process-level settings.
// Params: name, sweep cadence, inventory location, and status listener.
// Returns: service behavior defaults.
type ServiceConfig struct {
	Name             string `toml:"name"`
	CheckIntervalSec int    `toml:"check_interval_sec"`
	InventoryFile    string `toml:"inventory_file"`
	HostPauseMS      int    `toml:"host_pause_ms"`
	StatusListen     string `toml:"status_listen"`
	ReloadOnChange   bool   `toml:"reload_on_change"`
}

// Thresholds holds breach limits in percent.
// Params: cpu, memory, and disk usage ceilings.
// Returns: immutable per-sweep comparison values.
type Thresholds struct {
	CPU    float64 `toml:"cpu"`
	Memory float64 `toml:"memory"`
	Disk   float64 `toml:"disk"`
}

// AlertsConfig controls ledger policy and storage.
// Params: cooldown, batching, store backend, and retention.
// Returns: ledger runtime options.
type AlertsConfig struct {
	CooldownHours         float64          `toml:"cooldown_hours"`
	Batch                 bool             `toml:"batch"`
	Store                 string           `toml:"store"`
	StateFile             string           `toml:"state_file"`
	ResolvedRetentionDays int              `toml:"resolved_retention_days"`
	NATS                  NATSLedgerConfig `toml:"nats"`
}

// NATSLedgerConfig locates the JetStream KV key holding the ledger snapshot.
// Params: server URLs, bucket, key, and bucket auto-create toggle.
// Returns: NATS state backend options.
type NATSLedgerConfig struct {
	URL               []string `toml:"url"`
	Bucket            string   `toml:"bucket"`
	Key               string   `toml:"key"`
	AllowCreateBucket bool     `toml:"allow_create_bucket"`
}

// SamplerConfig controls remote collection.
// Params: connect/command timeouts, host key policy, and ssh_config usage.
// Returns: sampler runtime options.
type SamplerConfig struct {
	ConnectTimeoutSec int    `toml:"connect_timeout_sec"`
	CommandTimeoutSec int    `toml:"command_timeout_sec"`
	KnownHosts        string `toml:"known_hosts"`
	UseSSHConfig      bool   `toml:"use_ssh_config"`
}

// NotifyConfig defines outbound notification channels.
type NotifyConfig struct {
	Email    EmailNotifier    `toml:"email"`
	Telegram TelegramNotifier `toml:"telegram"`
}

// NotifyRetry configures outbound delivery retries.
// Params: retry toggle, backoff, attempt limits, and logging.
// Returns: retry policy for notifications.
type NotifyRetry struct {
	Enabled        bool   `toml:"enabled"`
	Backoff        string `toml:"backoff"`
	InitialMS      int    `toml:"initial_ms"`
	MaxMS          int    `toml:"max_ms"`
	MaxAttempts    int    `toml:"max_attempts"`
	LogEachAttempt bool   `toml:"log_each_attempt"`
}

// EmailNotifier defines SMTP channel settings.
// Params: server, credentials, sender, recipients, optional logo, and retry policy.
// Returns: email sender configuration.
type EmailNotifier struct {
	Enabled    bool        `toml:"enabled"`
	SMTPServer string      `toml:"smtp_server"`
	SMTPPort   int         `toml:"smtp_port"`
	UseTLS     bool        `toml:"use_tls"`
	Username   string      `toml:"username"`
	Password   string      `toml:"password"`
	Sender     string      `toml:"sender"`
	Recipients []string    `toml:"recipients"`
	LogoPath   string      `toml:"logo_path"`
	TimeoutSec int         `toml:"timeout_sec"`
	Retry      NotifyRetry `toml:"retry"`
}

// TelegramNotifier defines Telegram bot settings.
// Params: token, API base, approval policy, polling knobs, retry policy, and subscribers.
// Returns: Telegram sender and chat loop configuration.
type TelegramNotifier struct {
	Enabled         bool                `toml:"enabled"`
	BotToken        string              `toml:"bot_token"`
	APIBase         string              `toml:"api_base"`
	AutoApprove     bool                `toml:"auto_approve"`
	PollTimeoutSec  int                 `toml:"poll_timeout_sec"`
	StopGraceSec    int                 `toml:"stop_grace_sec"`
	ErrorBackoffSec int                 `toml:"error_backoff_sec"`
	Retry           NotifyRetry         `toml:"retry"`
	Subscribers     []domain.Subscriber `toml:"subscribers"`
}

// AIConfig is accepted for compatibility with existing configs and otherwise unused.
type AIConfig struct {
	Enabled bool   `toml:"enabled"`
	Model   string `toml:"model"`
	APIKey  string `toml:"api_key"`
}

// LogConfig contains console/file logging sinks and the alert journal.
type LogConfig struct {
	Console LogSinkConfig `toml:"console"`
	File    LogSinkConfig `toml:"file"`
	Alerts  JournalConfig `toml:"alerts"`
}

// LogSinkConfig defines one logging sink.
// Params: enable flag, level, format, path, and rotation limits for file sinks.
// Returns: sink-specific behavior.
type LogSinkConfig struct {
	Enabled    bool   `toml:"enabled"`
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	Path       string `toml:"path"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// JournalConfig controls the append-only alert journal.
type JournalConfig struct {
	Enabled    bool   `toml:"enabled"`
	Path       string `toml:"path"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

// boolDefaults records explicit presence of bool keys whose default is true.
// Params: sparse fields decoded from the same TOML body.
// Returns: nil pointers for keys the file omits.
type boolDefaults struct {
	Service struct {
		ReloadOnChange *bool `toml:"reload_on_change"`
	} `toml:"service"`
	Log struct {
		Alerts struct {
			Enabled *bool `toml:"enabled"`
		} `toml:"alerts"`
	} `toml:"log"`
	Alerts struct {
		Batch *bool `toml:"batch"`
		NATS  struct {
			AllowCreateBucket *bool `toml:"allow_create_bucket"`
		} `toml:"nats"`
	} `toml:"alerts"`
	Sampler struct {
		UseSSHConfig *bool `toml:"use_ssh_config"`
	} `toml:"sampler"`
	Notify struct {
		Email struct {
			UseTLS *bool `toml:"use_tls"`
		} `toml:"email"`
	} `toml:"notify"`
}

// Load reads, defaults, and validates the application config file.
// Params: path to the TOML file.
// Returns: validated config or read/decode/validation error.
func Load(path string) (Config, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", path, err)
	}
	cfg, err := Parse(body)
	if err != nil {
		return Config{}, fmt.Errorf("config file %q: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes, defaults, and validates one TOML document.
// Params: raw TOML body.
// Returns: validated config or decode/validation error.
func Parse(body []byte) (Config, error) {
	var cfg Config
	if err := toml.Unmarshal(body, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode: %w", err)
	}
	var hints boolDefaults
	if err := toml.Unmarshal(body, &hints); err != nil {
		return Config{}, fmt.Errorf("decode: %w", err)
	}
	applyBoolDefaults(&cfg, hints)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file exists yet.
func Default() Config {
	cfg, err := Parse(nil)
	if err != nil {
		panic(fmt.Sprintf("default config is invalid: %v", err))
	}
	return cfg
}

// applyBoolDefaults sets true-by-default bool keys that the file omits.
func applyBoolDefaults(cfg *Config, hints boolDefaults) {
	defaultTrue(&cfg.Service.ReloadOnChange, hints.Service.ReloadOnChange)
	defaultTrue(&cfg.Log.Alerts.Enabled, hints.Log.Alerts.Enabled)
	defaultTrue(&cfg.Alerts.Batch, hints.Alerts.Batch)
	defaultTrue(&cfg.Alerts.NATS.AllowCreateBucket, hints.Alerts.NATS.AllowCreateBucket)
	defaultTrue(&cfg.Sampler.UseSSHConfig, hints.Sampler.UseSSHConfig)
	defaultTrue(&cfg.Notify.Email.UseTLS, hints.Notify.Email.UseTLS)
}

func defaultTrue(dst *bool, explicit *bool) {
	if explicit == nil {
		*dst = true
	}
}

// applyDefaults fills optional fields with runtime defaults.
// Params: cfg pointer to mutate.
// Returns: config updated in place.
func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Service.Name) == "" {
		cfg.Service.Name = defaultServiceName
	}
	if cfg.Service.CheckIntervalSec == 0 {
		cfg.Service.CheckIntervalSec = defaultCheckIntervalSec
	}
	if strings.TrimSpace(cfg.Service.InventoryFile) == "" {
		cfg.Service.InventoryFile = defaultInventoryFile
	}
	if cfg.Service.HostPauseMS == 0 {
		cfg.Service.HostPauseMS = defaultHostPauseMS
	}

	if cfg.Log.Console.Level == "" {
		cfg.Log.Console.Level = "info"
	}
	if cfg.Log.Console.Format == "" {
		cfg.Log.Console.Format = "line"
	}
	if cfg.Log.File.Level == "" {
		cfg.Log.File.Level = "info"
	}
	if cfg.Log.File.Format == "" {
		cfg.Log.File.Format = "json"
	}
	if cfg.Log.File.MaxSizeMB <= 0 {
		cfg.Log.File.MaxSizeMB = defaultLogMaxSizeMB
	}
	if cfg.Log.File.MaxBackups <= 0 {
		cfg.Log.File.MaxBackups = defaultLogMaxBackups
	}
	if cfg.Log.File.MaxAgeDays <= 0 {
		cfg.Log.File.MaxAgeDays = defaultLogMaxAgeDays
	}
	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console.Enabled = true
	}
	if strings.TrimSpace(cfg.Log.Alerts.Path) == "" {
		cfg.Log.Alerts.Path = defaultJournalPath
	}
	if cfg.Log.Alerts.MaxSizeMB <= 0 {
		cfg.Log.Alerts.MaxSizeMB = defaultLogMaxSizeMB
	}
	if cfg.Log.Alerts.MaxBackups <= 0 {
		cfg.Log.Alerts.MaxBackups = defaultLogMaxBackups
	}

	if cfg.Thresholds.CPU == 0 {
		cfg.Thresholds.CPU = defaultCPUThreshold
	}
	if cfg.Thresholds.Memory == 0 {
		cfg.Thresholds.Memory = defaultMemoryThreshold
	}
	if cfg.Thresholds.Disk == 0 {
		cfg.Thresholds.Disk = defaultDiskThreshold
	}

	if cfg.Alerts.CooldownHours == 0 {
		cfg.Alerts.CooldownHours = defaultCooldownHours
	}
	cfg.Alerts.Store = strings.ToLower(strings.TrimSpace(cfg.Alerts.Store))
	if cfg.Alerts.Store == "" {
		cfg.Alerts.Store = StoreFile
	}
	if strings.TrimSpace(cfg.Alerts.StateFile) == "" {
		cfg.Alerts.StateFile = defaultStateFile
	}
	if cfg.Alerts.ResolvedRetentionDays == 0 {
		cfg.Alerts.ResolvedRetentionDays = defaultRetentionDays
	}
	cfg.Alerts.NATS.URL = normalizeNATSURLs(cfg.Alerts.NATS.URL)
	if len(cfg.Alerts.NATS.URL) == 0 {
		cfg.Alerts.NATS.URL = []string{defaultNATSURL}
	}
	if strings.TrimSpace(cfg.Alerts.NATS.Bucket) == "" {
		cfg.Alerts.NATS.Bucket = defaultNATSBucket
	}
	if strings.TrimSpace(cfg.Alerts.NATS.Key) == "" {
		cfg.Alerts.NATS.Key = defaultNATSKey
	}

	if cfg.Sampler.ConnectTimeoutSec == 0 {
		cfg.Sampler.ConnectTimeoutSec = defaultConnectTimeoutSec
	}
	if cfg.Sampler.CommandTimeoutSec == 0 {
		cfg.Sampler.CommandTimeoutSec = defaultCommandTimeoutSec
	}

	if cfg.Notify.Email.SMTPPort == 0 {
		cfg.Notify.Email.SMTPPort = defaultSMTPPort
	}
	if cfg.Notify.Email.TimeoutSec == 0 {
		cfg.Notify.Email.TimeoutSec = defaultSMTPTimeoutSec
	}
	cfg.Notify.Email.Recipients = trimList(cfg.Notify.Email.Recipients)
	fillNotifyRetryDefaults(&cfg.Notify.Email.Retry)

	if strings.TrimSpace(cfg.Notify.Telegram.APIBase) == "" {
		cfg.Notify.Telegram.APIBase = defaultTelegramAPIBase
	}
	cfg.Notify.Telegram.APIBase = strings.TrimRight(cfg.Notify.Telegram.APIBase, "/")
	if cfg.Notify.Telegram.PollTimeoutSec == 0 {
		cfg.Notify.Telegram.PollTimeoutSec = defaultPollTimeoutSec
	}
	if cfg.Notify.Telegram.StopGraceSec == 0 {
		cfg.Notify.Telegram.StopGraceSec = defaultStopGraceSec
	}
	if cfg.Notify.Telegram.ErrorBackoffSec == 0 {
		cfg.Notify.Telegram.ErrorBackoffSec = defaultErrorBackoffSec
	}
	fillNotifyRetryDefaults(&cfg.Notify.Telegram.Retry)
}

// fillNotifyRetryDefaults normalizes retry policy fields for one channel.
// Params: retry policy pointer.
// Returns: policy defaults applied in place.
func fillNotifyRetryDefaults(retry *NotifyRetry) {
	if retry.Backoff == "" {
		retry.Backoff = "exponential"
	}
	if retry.InitialMS <= 0 {
		retry.InitialMS = 500
	}
	if retry.MaxMS <= 0 {
		retry.MaxMS = 60000
	}
	if retry.MaxAttempts == 0 {
		retry.MaxAttempts = 3
	}
}

// Validate checks a config assembled in code, such as one edited by an operator form.
func (c Config) Validate() error {
	return validateConfig(c)
}

// validateConfig validates full runtime configuration.
// Params: cfg snapshot to validate.
// Returns: first failing rule as error.
func validateConfig(cfg Config) error {
	if cfg.Service.CheckIntervalSec < 0 {
		return errors.New("service.check_interval_sec must be >0")
	}
	if cfg.Service.HostPauseMS < 0 {
		return errors.New("service.host_pause_ms must be >=0")
	}
	if err := validateLogSink("log.console", cfg.Log.Console, false); err != nil {
		return err
	}
	if err := validateLogSink("log.file", cfg.Log.File, true); err != nil {
		return err
	}

	for name, value := range map[string]float64{
		"thresholds.cpu":    cfg.Thresholds.CPU,
		"thresholds.memory": cfg.Thresholds.Memory,
		"thresholds.disk":   cfg.Thresholds.Disk,
	} {
		if value <= 0 || value > 100 {
			return fmt.Errorf("%s must be in (0,100], got %g", name, value)
		}
	}

	if cfg.Alerts.CooldownHours <= 0 {
		return errors.New("alerts.cooldown_hours must be >0")
	}
	if cfg.Alerts.ResolvedRetentionDays < 0 {
		return errors.New("alerts.resolved_retention_days must be >=0")
	}
	switch cfg.Alerts.Store {
	case StoreFile, StoreMemory:
	case StoreNATS:
		for i, url := range cfg.Alerts.NATS.URL {
			if strings.TrimSpace(url) == "" {
				return fmt.Errorf("alerts.nats.url[%d] is empty", i)
			}
		}
	default:
		return fmt.Errorf("alerts.store has unsupported value %q", cfg.Alerts.Store)
	}

	if cfg.Sampler.ConnectTimeoutSec < 0 {
		return errors.New("sampler.connect_timeout_sec must be >0")
	}
	if cfg.Sampler.CommandTimeoutSec < 0 {
		return errors.New("sampler.command_timeout_sec must be >0")
	}

	if err := validateEmail(cfg.Notify.Email); err != nil {
		return err
	}
	if err := validateTelegram(cfg.Notify.Telegram); err != nil {
		return err
	}
	for _, channel := range channelOrder {
		if err := validateRetry("notify."+channel+".retry", NotifyChannelRetry(cfg.Notify, channel)); err != nil {
			return err
		}
	}

	if cfg.AI.Enabled && (strings.TrimSpace(cfg.AI.Model) == "" || strings.TrimSpace(cfg.AI.APIKey) == "") {
		return errors.New("ai.model and ai.api_key are required when ai.enabled=true")
	}
	return nil
}

func validateEmail(cfg EmailNotifier) error {
	if cfg.SMTPPort <= 0 || cfg.SMTPPort > 65535 {
		return fmt.Errorf("notify.email.smtp_port must be in 1..65535, got %d", cfg.SMTPPort)
	}
	if cfg.TimeoutSec < 0 {
		return errors.New("notify.email.timeout_sec must be >0")
	}
	if !cfg.Enabled {
		return nil
	}
	if strings.TrimSpace(cfg.SMTPServer) == "" {
		return errors.New("notify.email.smtp_server is required when notify.email.enabled=true")
	}
	if strings.TrimSpace(cfg.Sender) == "" {
		return errors.New("notify.email.sender is required when notify.email.enabled=true")
	}
	if _, err := mail.ParseAddress(cfg.Sender); err != nil {
		return fmt.Errorf("notify.email.sender is invalid: %w", err)
	}
	if len(cfg.Recipients) == 0 {
		return errors.New("notify.email.recipients must not be empty when notify.email.enabled=true")
	}
	for i, rcpt := range cfg.Recipients {
		if _, err := mail.ParseAddress(rcpt); err != nil {
			return fmt.Errorf("notify.email.recipients[%d] is invalid: %w", i, err)
		}
	}
	if (cfg.Username == "") != (cfg.Password == "") {
		return errors.New("notify.email.username and notify.email.password must be set together")
	}
	return nil
}

func validateTelegram(cfg TelegramNotifier) error {
	if cfg.PollTimeoutSec < 0 {
		return errors.New("notify.telegram.poll_timeout_sec must be >0")
	}
	if cfg.StopGraceSec < 0 {
		return errors.New("notify.telegram.stop_grace_sec must be >0")
	}
	if cfg.ErrorBackoffSec < 0 {
		return errors.New("notify.telegram.error_backoff_sec must be >0")
	}
	seen := make(map[int64]struct{}, len(cfg.Subscribers))
	for i, sub := range cfg.Subscribers {
		if sub.ChatID == 0 {
			return fmt.Errorf("notify.telegram.subscribers[%d].chat_id is required", i)
		}
		if _, dup := seen[sub.ChatID]; dup {
			return fmt.Errorf("notify.telegram.subscribers[%d].chat_id %d is duplicated", i, sub.ChatID)
		}
		seen[sub.ChatID] = struct{}{}
	}
	if cfg.Enabled && strings.TrimSpace(cfg.BotToken) == "" {
		return errors.New("notify.telegram.bot_token is required when notify.telegram.enabled=true")
	}
	return nil
}

func validateRetry(path string, retry NotifyRetry) error {
	if !retry.Enabled {
		return nil
	}
	switch retry.Backoff {
	case "exponential", "fixed":
	default:
		return fmt.Errorf("%s.backoff has unsupported value %q", path, retry.Backoff)
	}
	if retry.MaxMS < retry.InitialMS {
		return fmt.Errorf("%s.max_ms must be >= initial_ms", path)
	}
	if retry.MaxAttempts < 0 {
		return fmt.Errorf("%s.max_attempts must be >=0", path)
	}
	return nil
}

// validateLogSink validates one log sink configuration.
// Params: sink name, sink values, and whether path is required.
// Returns: sink validation error.
func validateLogSink(name string, sink LogSinkConfig, requirePath bool) error {
	if !sink.Enabled {
		return nil
	}

	switch strings.ToLower(strings.TrimSpace(sink.Level)) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%s.level has unsupported value %q", name, sink.Level)
	}

	switch strings.ToLower(strings.TrimSpace(sink.Format)) {
	case "line", "json":
	default:
		return fmt.Errorf("%s.format has unsupported value %q", name, sink.Format)
	}

	if requirePath && strings.TrimSpace(sink.Path) == "" {
		return fmt.Errorf("%s.path is required", name)
	}
	return nil
}

// NotifyChannelNames returns supported channel names in dispatch order.
func NotifyChannelNames() []string {
	return append([]string(nil), channelOrder...)
}

// NotifyChannelEnabled reports whether the named channel is enabled.
// Params: notify config and channel name.
// Returns: false for unknown channels.
func NotifyChannelEnabled(cfg NotifyConfig, channel string) bool {
	descriptor, ok := channelRegistry[channel]
	if !ok {
		return false
	}
	return descriptor.enabled(cfg)
}

// NotifyChannelRetry returns the retry policy of the named channel.
// Params: notify config and channel name.
// Returns: zero policy for unknown channels.
func NotifyChannelRetry(cfg NotifyConfig, channel string) NotifyRetry {
	descriptor, ok := channelRegistry[channel]
	if !ok {
		return NotifyRetry{}
	}
	return descriptor.retry(cfg)
}

func normalizeNATSURLs(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, url := range urls {
		if trimmed := strings.TrimSpace(url); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func trimList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

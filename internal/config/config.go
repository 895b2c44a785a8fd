// Package config loads relay settings from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file settings.
const (
	EnvWebhookURLs    = "WEBHOOK_URLS"
	EnvSecretKey      = "SECRET_KEY"
	EnvTelegramToken  = "TELEGRAM_TOKEN"
	EnvTelegramChatID = "TELEGRAM_CHAT_ID"
	EnvMaxRetry       = "MAX_RETRY"
	EnvDebug          = "DEBUG"
	EnvSourceDSN      = "SOURCE_DSN"
	EnvQueueDSN       = "QUEUE_DSN"
)

var (
	// ErrSecretRequired indicates a missing signing secret.
	ErrSecretRequired = errors.New("config: secret_key is required")
	// ErrNoDestinations indicates an empty destination list.
	ErrNoDestinations = errors.New("config: at least one webhook url is required")
	// ErrInvalid wraps every other validation failure.
	ErrInvalid = errors.New("config: invalid")
)

// Config is the complete relay configuration.
type Config struct {
	WebhookURLs []string         `yaml:"webhook_urls"`
	SecretKey   string           `yaml:"secret_key"`
	MaxRetry    int              `yaml:"max_retry"`
	Debug       bool             `yaml:"debug"`
	ServiceName string           `yaml:"service_name"`
	Source      SourceConfig     `yaml:"source"`
	Queue       QueueConfig      `yaml:"queue"`
	Checkpoint  CheckpointConfig `yaml:"checkpoint"`
	Poll        LoopConfig       `yaml:"poll"`
	Retry       RetryConfig      `yaml:"retry"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telegram    TelegramConfig   `yaml:"telegram"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
}

// SourceConfig locates the access log.
type SourceConfig struct {
	// Driver is the database/sql driver name: mysql or pgx.
	Driver  string `yaml:"driver"`
	Dialect string `yaml:"dialect"`
	DSN     string `yaml:"dsn"`
	Table   string `yaml:"table"`
}

// QueueConfig locates the MySQL delivery queue.
type QueueConfig struct {
	DSN          string        `yaml:"dsn"`
	Table        string        `yaml:"table"`
	EnsureSchema bool          `yaml:"ensure_schema"`
	Cleanup      CleanupConfig `yaml:"cleanup"`
}

// CleanupConfig enables periodic purging of dead attempts. Zero retention disables it.
type CleanupConfig struct {
	Retention      time.Duration `yaml:"retention"`
	Every          time.Duration `yaml:"every"`
	Limit          int           `yaml:"limit"`
	IncludePending bool          `yaml:"include_pending"`
}

// CheckpointConfig selects the cursor backend.
type CheckpointConfig struct {
	// Backend is file or pebble.
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// LoopConfig controls one scheduled task.
type LoopConfig struct {
	Interval   time.Duration `yaml:"interval"`
	FaultDelay time.Duration `yaml:"fault_delay"`
	BatchSize  int           `yaml:"batch_size"`
}

// RetryConfig controls the retry task.
type RetryConfig struct {
	LoopConfig `yaml:",inline"`
	// DeadOnStatus lists HTTP statuses that dead-letter an attempt immediately.
	DeadOnStatus []int `yaml:"dead_on_status"`
	// BacklogInterval throttles queue size sampling. Zero samples every cycle.
	BacklogInterval time.Duration `yaml:"backlog_interval"`
}

// HTTPConfig controls outbound delivery.
type HTTPConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	FanoutWorkers int           `yaml:"fanout_workers"`
}

// TelegramConfig enables operator notices when both fields are set.
type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID string `yaml:"chat_id"`
}

// Enabled reports whether notices should be sent.
func (t TelegramConfig) Enabled() bool {
	return t.Token != "" && t.ChatID != ""
}

// TelemetryConfig enables OTLP metric export when an endpoint is set.
type TelemetryConfig struct {
	OTLPEndpoint string        `yaml:"otlp_endpoint"`
	Insecure     bool          `yaml:"insecure"`
	Interval     time.Duration `yaml:"interval"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		MaxRetry:    3,
		ServiceName: "NITGEN",
		Source: SourceConfig{
			Driver:  "mysql",
			Dialect: "mysql",
			Table:   "NGAC_LOG",
		},
		Queue: QueueConfig{
			Table:        "logs",
			EnsureSchema: true,
			Cleanup:      CleanupConfig{Every: time.Hour},
		},
		Checkpoint: CheckpointConfig{Backend: "file", Path: "checkpoint.txt"},
		Poll:       LoopConfig{Interval: 20 * time.Second, FaultDelay: 180 * time.Second, BatchSize: 30},
		Retry: RetryConfig{
			LoopConfig: LoopConfig{Interval: 60 * time.Second, FaultDelay: 180 * time.Second, BatchSize: 30},
		},
		HTTP:      HTTPConfig{Timeout: 30 * time.Second},
		Telemetry: TelemetryConfig{Interval: 30 * time.Second},
	}
}

// Load reads path (optional) over the defaults, applies environment overrides
// and validates the result.
func Load(path string) (Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if path = strings.TrimSpace(path); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvWebhookURLs); ok {
		c.WebhookURLs = splitURLs(v)
	}
	if v, ok := lookup(EnvSecretKey); ok {
		c.SecretKey = v
	}
	if v, ok := lookup(EnvTelegramToken); ok {
		c.Telegram.Token = v
	}
	if v, ok := lookup(EnvTelegramChatID); ok {
		c.Telegram.ChatID = v
	}
	if v, ok := lookup(EnvSourceDSN); ok {
		c.Source.DSN = v
	}
	if v, ok := lookup(EnvQueueDSN); ok {
		c.Queue.DSN = v
	}
	if v, ok := lookup(EnvMaxRetry); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalid, EnvMaxRetry, err)
		}
		c.MaxRetry = n
	}
	if v, ok := lookup(EnvDebug); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalid, EnvDebug, err)
		}
		c.Debug = b
	}

	return nil
}

// Validate rejects settings the relay cannot run with.
func (c Config) Validate() error {
	if c.SecretKey == "" {
		return ErrSecretRequired
	}
	if len(c.WebhookURLs) == 0 {
		return ErrNoDestinations
	}
	for _, raw := range c.WebhookURLs {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("%w: webhook url %q: %w", ErrInvalid, raw, err)
		}
		switch strings.ToLower(u.Scheme) {
		case "http", "https", "kafka":
		default:
			return fmt.Errorf("%w: webhook url %q: unsupported scheme", ErrInvalid, raw)
		}
		if u.Host == "" {
			return fmt.Errorf("%w: webhook url %q: host required", ErrInvalid, raw)
		}
	}
	if c.MaxRetry <= 0 {
		return fmt.Errorf("%w: max_retry must be >0", ErrInvalid)
	}
	if c.Source.DSN == "" {
		return fmt.Errorf("%w: source.dsn required", ErrInvalid)
	}
	if c.Queue.DSN == "" {
		return fmt.Errorf("%w: queue.dsn required", ErrInvalid)
	}
	switch c.Checkpoint.Backend {
	case "file", "pebble":
	default:
		return fmt.Errorf("%w: checkpoint.backend %q must be file or pebble", ErrInvalid, c.Checkpoint.Backend)
	}
	if c.Checkpoint.Path == "" {
		return fmt.Errorf("%w: checkpoint.path required", ErrInvalid)
	}
	for name, loop := range map[string]LoopConfig{"poll": c.Poll, "retry": c.Retry.LoopConfig} {
		if loop.Interval <= 0 || loop.FaultDelay <= 0 {
			return fmt.Errorf("%w: %s intervals must be >0", ErrInvalid, name)
		}
		if loop.BatchSize <= 0 {
			return fmt.Errorf("%w: %s.batch_size must be >0", ErrInvalid, name)
		}
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("%w: http.timeout must be >0", ErrInvalid)
	}
	if c.Queue.Cleanup.Retention < 0 {
		return fmt.Errorf("%w: queue.cleanup.retention must be >=0", ErrInvalid)
	}

	return nil
}

// splitURLs splits a comma-separated list. A piece without a scheme continues
// the previous URL, so kafka://b1:9092,b2:9092/topic survives intact.
func splitURLs(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		switch {
		case part == "":
		case !strings.Contains(part, "://") && len(out) > 0:
			out[len(out)-1] += "," + part
		default:
			out = append(out, part)
		}
	}
	return out
}

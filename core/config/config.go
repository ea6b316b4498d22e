package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings that are common for all bots.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir" envconfig:"LOG_DIR"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

// NavigationConfig holds user-visible texts of the back-button engine.
type NavigationConfig struct {
	BackButtonText string `yaml:"back_button_text"`
	ExpiredText    string `yaml:"expired_text"`
}

// SessionConfig controls free-text continuation waits.
type SessionConfig struct {
	// TimeoutSeconds is the default wait for the next message; 0 -> 30s.
	TimeoutSeconds int    `yaml:"timeout_seconds" envconfig:"SESSION_TIMEOUT_SECONDS"`
	ErrorText      string `yaml:"error_text"`
	WaitingText    string `yaml:"waiting_text"`
}

// SenderConfig tunes the asynchronous outbound dispatcher.
type SenderConfig struct {
	QueueSize  int `yaml:"queue_size" envconfig:"SENDER_QUEUE_SIZE"`
	Workers    int `yaml:"workers" envconfig:"SENDER_WORKERS"`
	MaxRetries int `yaml:"max_retries" envconfig:"SENDER_MAX_RETRIES"`
}

// DatabaseConfig holds the optional delivery-state database settings.
// An empty driver keeps notification cursors in memory.
type DatabaseConfig struct {
	Driver         string `yaml:"driver" envconfig:"DB_DRIVER"`
	Path           string `yaml:"path" envconfig:"DB_PATH"`
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
	// UpdateInlineQuery identifies inline query updates for rate limit exclusions.
	UpdateInlineQuery = "inline_query"
)

const (
	// DriverMemory keeps delivery state in process memory.
	DriverMemory = "memory"
	// DriverPostgres stores delivery state in PostgreSQL.
	DriverPostgres = "postgres"
	// DriverSQLite stores delivery state in a SQLite file.
	DriverSQLite = "sqlite3"
)

// Default user-visible texts.
const (
	DefaultBackButtonText = "« Back"
	DefaultExpiredText    = "This message has expired, the back button is no longer available"
	DefaultErrorText      = "The message you sent is invalid, please send it again"
	DefaultWaitingText    = "Please wait..."
	DefaultTimeoutSeconds = 30
)

// RateLimitConfig holds settings for rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
// - "inline_query": inline query updates
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates the configuration that belongs to the reusable core.
type Config struct {
	Telegram   TelegramConfig   `yaml:"telegram"`
	Webhook    WebhookConfig    `yaml:"webhook"`
	Logging    LoggingConfig    `yaml:"logging"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Navigation NavigationConfig `yaml:"navigation"`
	Session    SessionConfig    `yaml:"session"`
	Sender     SenderConfig     `yaml:"sender"`
	Database   DatabaseConfig   `yaml:"database"`
}

// Load reads configuration from a YAML file and environment variables.
// A .env file in the working directory is applied to the environment first.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" || rm == "polling" {
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	allowed := map[string]struct{}{
		UpdateCallback:    {},
		UpdateMessage:     {},
		UpdateInlineQuery: {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message, inline_query", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}

	normalizeTexts(cfg)

	if cfg.Session.TimeoutSeconds < 0 {
		return fmt.Errorf("session.timeout_seconds must be >= 0")
	}
	if cfg.Session.TimeoutSeconds == 0 {
		cfg.Session.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if cfg.Sender.MaxRetries < 0 {
		return fmt.Errorf("sender.max_retries must be >= 0")
	}

	return normalizeDatabase(&cfg.Database)
}

func normalizeTexts(cfg *Config) {
	if strings.TrimSpace(cfg.Navigation.BackButtonText) == "" {
		cfg.Navigation.BackButtonText = DefaultBackButtonText
	}
	if strings.TrimSpace(cfg.Navigation.ExpiredText) == "" {
		cfg.Navigation.ExpiredText = DefaultExpiredText
	}
	if strings.TrimSpace(cfg.Session.ErrorText) == "" {
		cfg.Session.ErrorText = DefaultErrorText
	}
	if strings.TrimSpace(cfg.Session.WaitingText) == "" {
		cfg.Session.WaitingText = DefaultWaitingText
	}
}

func normalizeDatabase(db *DatabaseConfig) error {
	driver := strings.ToLower(strings.TrimSpace(db.Driver))
	switch driver {
	case "", DriverMemory:
		db.Driver = DriverMemory
		return nil
	case "postgresql", DriverPostgres:
		db.Driver = DriverPostgres
		if strings.TrimSpace(db.Host) == "" || strings.TrimSpace(db.Name) == "" {
			return fmt.Errorf("database.host and database.name are required for driver %q", DriverPostgres)
		}
		if db.Port == "" {
			db.Port = "5432"
		}
		if db.SSLMode == "" {
			db.SSLMode = "disable"
		}
	case "sqlite", DriverSQLite:
		db.Driver = DriverSQLite
		if strings.TrimSpace(db.Path) == "" {
			return fmt.Errorf("database.path is required for driver %q", DriverSQLite)
		}
	default:
		return fmt.Errorf("invalid database.driver %q; allowed: memory, postgres, sqlite3", db.Driver)
	}
	if db.MaxConnections <= 0 {
		db.MaxConnections = 5
	}
	return nil
}

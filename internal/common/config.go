package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Queue       QueueConfig     `toml:"queue"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Shopify     ShopifyConfig   `toml:"shopify"`
	Retention   RetentionConfig `toml:"retention"`
	Quota       QuotaConfig     `toml:"quota"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type QueueConfig struct {
	PollInterval      string `toml:"poll_interval"`      // how often workers poll for messages
	Concurrency       int    `toml:"concurrency"`        // workers per queue
	VisibilityTimeout string `toml:"visibility_timeout"` // message redelivery window
	MaxReceive        int    `toml:"max_receive"`        // receives before dead-letter
	StepDelay         string `toml:"step_delay"`         // delay between bulk op poll attempts
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`
	ResetOnStartup bool   `toml:"reset_on_startup"` // delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // default "15:04:05.000"
}

// ShopifyConfig configures the Admin API client. Access tokens are
// keyed per shop domain; the webhook secret signs inbound deliveries.
type ShopifyConfig struct {
	APIVersion    string            `toml:"api_version"`
	WebhookSecret string            `toml:"webhook_secret"`
	RateLimit     int               `toml:"rate_limit"` // requests per second
	Timeout       string            `toml:"timeout"`
	AccessTokens  map[string]string `toml:"access_tokens"`
}

// RetentionConfig bounds how long audit records are kept.
type RetentionConfig struct {
	LogDays    int    `toml:"log_days"`
	BackupDays int    `toml:"backup_days"`
	Schedule   string `toml:"schedule"` // cron expression for the purge job
}

// QuotaConfig gates bulk operation admission per plan.
type QuotaConfig struct {
	DefaultMonthlyLimit int64             `toml:"default_monthly_limit"`
	PlanLimits          map[string]int64  `toml:"plan_limits"`
	ShopPlans           map[string]string `toml:"shop_plans"`
}

// DefaultConfig returns configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Queue: QueueConfig{
			PollInterval:      "1s",
			Concurrency:       4,
			VisibilityTimeout: "5m",
			MaxReceive:        3,
			StepDelay:         "5s",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/tagforge",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05.000",
		},
		Shopify: ShopifyConfig{
			APIVersion:   "2024-10",
			RateLimit:    2,
			Timeout:      "30s",
			AccessTokens: map[string]string{},
		},
		Retention: RetentionConfig{
			LogDays:    90,
			BackupDays: 30,
			Schedule:   "0 3 * * *",
		},
		Quota: QuotaConfig{
			DefaultMonthlyLimit: 1000,
			PlanLimits: map[string]int64{
				"free":      1000,
				"pro":       25000,
				"unlimited": 0, // 0 = no limit
			},
			ShopPlans: map[string]string{},
		},
	}
}

// LoadFromFiles loads configuration from defaults, then each config file
// in order (later files override earlier ones), then environment
// variables. Missing files are an error; an empty path list is fine.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := DefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// ApplyFlagOverrides applies command-line flag values on top of the
// loaded configuration. Flags have the highest priority.
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

func applyEnvOverrides(config *Config) {
	if v := os.Getenv("TAGFORGE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Server.Port = port
		}
	}
	if v := os.Getenv("TAGFORGE_HOST"); v != "" {
		config.Server.Host = v
	}
	if v := os.Getenv("TAGFORGE_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("TAGFORGE_BADGER_PATH"); v != "" {
		config.Storage.Badger.Path = v
	}
	if v := os.Getenv("TAGFORGE_WEBHOOK_SECRET"); v != "" {
		config.Shopify.WebhookSecret = v
	}
	if v := os.Getenv("TAGFORGE_ENVIRONMENT"); v != "" {
		config.Environment = v
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Queue.Concurrency <= 0 {
		return fmt.Errorf("queue concurrency must be positive, got %d", c.Queue.Concurrency)
	}
	if _, err := c.QueuePollInterval(); err != nil {
		return fmt.Errorf("invalid queue poll_interval: %w", err)
	}
	if _, err := c.StepDelay(); err != nil {
		return fmt.Errorf("invalid queue step_delay: %w", err)
	}
	if c.Retention.LogDays <= 0 || c.Retention.BackupDays <= 0 {
		return fmt.Errorf("retention windows must be positive")
	}
	return nil
}

// QueuePollInterval parses the worker poll interval.
func (c *Config) QueuePollInterval() (time.Duration, error) {
	return time.ParseDuration(c.Queue.PollInterval)
}

// VisibilityTimeout parses the queue visibility timeout.
func (c *Config) VisibilityTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Queue.VisibilityTimeout)
}

// StepDelay parses the fixed delay between bulk operation poll steps.
func (c *Config) StepDelay() (time.Duration, error) {
	return time.ParseDuration(c.Queue.StepDelay)
}

// ShopifyTimeout parses the Admin API request timeout.
func (c *Config) ShopifyTimeout() time.Duration {
	d, err := time.ParseDuration(c.Shopify.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// PlanLimit resolves the monthly bulk operation limit for a shop.
// Returns 0 when the shop's plan is unlimited.
func (c *Config) PlanLimit(shop string) int64 {
	plan, ok := c.Quota.ShopPlans[shop]
	if !ok {
		return c.Quota.DefaultMonthlyLimit
	}
	limit, ok := c.Quota.PlanLimits[strings.ToLower(plan)]
	if !ok {
		return c.Quota.DefaultMonthlyLimit
	}
	return limit
}

// AccessToken resolves the Admin API token for a shop domain.
func (c *Config) AccessToken(shop string) (string, error) {
	token, ok := c.Shopify.AccessTokens[shop]
	if !ok || token == "" {
		return "", fmt.Errorf("no access token configured for shop %s", shop)
	}
	return token, nil
}

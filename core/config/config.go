// Package config loads bot configuration from YAML with environment overrides.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
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
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
	Dir     string `yaml:"dir"`
	BotFile string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

// WindowPolicy describes a fixed-window rate limit: Points consumptions per WindowSeconds.
type WindowPolicy struct {
	Points        int `yaml:"points"`
	WindowSeconds int `yaml:"window_seconds"`
}

// RateLimitConfig holds the two limiter policies used by the bot.
type RateLimitConfig struct {
	// Messages caps inbound message throughput per Telegram user.
	Messages WindowPolicy `yaml:"messages"`
	// MagicLink caps magic-link email issuance per (user, email) pair.
	MagicLink WindowPolicy `yaml:"magic_link"`
}

// VerifyConfig configures the verification callback HTTP server.
type VerifyConfig struct {
	Listen string `yaml:"listen" envconfig:"VERIFY_LISTEN"`
	// BaseURL is the public prefix encoded into magic links, e.g. https://bot.example.com
	BaseURL string `yaml:"base_url" envconfig:"VERIFY_BASE_URL"`
}

// MailConfig configures the SMTP magic-link sender. An empty host selects the
// log-only sender used in dev profiles.
type MailConfig struct {
	Host     string `yaml:"host" envconfig:"SMTP_HOST"`
	Port     int    `yaml:"port" envconfig:"SMTP_PORT"`
	Username string `yaml:"username" envconfig:"SMTP_USERNAME"`
	Password string `yaml:"password" envconfig:"SMTP_PASSWORD"`
	From     string `yaml:"from" envconfig:"SMTP_FROM"`
}

// Config aggregates the configuration shared by the bot and the verify server.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Verify    VerifyConfig    `yaml:"verify"`
	Mail      MailConfig      `yaml:"mail"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
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
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
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

	if cfg.RateLimit.Messages.Points <= 0 {
		cfg.RateLimit.Messages.Points = 30
	}
	if cfg.RateLimit.Messages.WindowSeconds <= 0 {
		cfg.RateLimit.Messages.WindowSeconds = 60
	}
	if cfg.RateLimit.MagicLink.Points <= 0 {
		cfg.RateLimit.MagicLink.Points = 3
	}
	if cfg.RateLimit.MagicLink.WindowSeconds <= 0 {
		cfg.RateLimit.MagicLink.WindowSeconds = 3600
	}

	if strings.TrimSpace(cfg.Verify.Listen) == "" {
		cfg.Verify.Listen = ":8080"
	}
	if strings.TrimSpace(cfg.Verify.BaseURL) == "" {
		return fmt.Errorf("verify.base_url is required")
	}
	cfg.Verify.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Verify.BaseURL), "/")

	return nil
}

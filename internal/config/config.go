package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Reminders RemindersConfig `mapstructure:"reminders"`
	Report    ReportConfig    `mapstructure:"report"`
	Chart     ChartConfig     `mapstructure:"chart"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Desktop   DesktopConfig   `mapstructure:"desktop"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// MonitorConfig holds the level monitoring loop configuration
type MonitorConfig struct {
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	LookbackDays   int           `mapstructure:"lookback_days"`   // injections older than this are ignored; 0 = all
	ProjectionDays int           `mapstructure:"projection_days"` // projected curve length after now
	Medications    []string      `mapstructure:"medications"`     // names to monitor; empty = every medication with injections
}

// RemindersConfig controls injection reminders
type RemindersConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	DayBefore   bool          `mapstructure:"day_before"`
	LeadTime    time.Duration `mapstructure:"lead_time"` // how early the day-before reminder fires
	Due         bool          `mapstructure:"due"`
	Missed      bool          `mapstructure:"missed"`
	MissedGrace time.Duration `mapstructure:"missed_grace"`
}

// ReportConfig controls the scheduled level report
type ReportConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Schedule    string `mapstructure:"schedule"` // standard 5-field cron expression
	AttachChart bool   `mapstructure:"attach_chart"`
}

// ChartConfig holds chart rendering options
type ChartConfig struct {
	Width       int `mapstructure:"width"`
	Height      int `mapstructure:"height"`
	HistoryDays int `mapstructure:"history_days"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// DesktopConfig holds local desktop notification configuration
type DesktopConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	AppName string `mapstructure:"app_name"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	DBPath       string `mapstructure:"db_path"`
	SeedDefaults bool   `mapstructure:"seed_defaults"`
	MaxReminders int    `mapstructure:"max_reminders"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var envKeyReplacer = strings.NewReplacer(".", "_")

// Load reads configuration from file and environment variables.
// An empty path skips the file and uses defaults plus environment.
func Load(path string) (*Config, error) {
	v := newViper(path)

	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return decode(v)
}

// Watch reloads the file at path whenever it changes. Each reload that
// passes Validate is handed to onChange; failed reloads go to onError and
// the previous configuration stays in effect.
func Watch(path string, onChange func(*Config), onError func(error)) error {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := decode(v)
		if err == nil {
			err = cfg.Validate()
		}
		if err != nil {
			onError(fmt.Errorf("reload of %s (%s) rejected: %w", e.Name, e.Op, err))
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

func newViper(path string) *viper.Viper {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	}

	setDefaults(v)

	// DOSEORACLE_TELEGRAM_BOT_TOKEN overrides telegram.bot_token
	v.SetEnvPrefix("DOSEORACLE")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("monitor.poll_interval", "1h")
	v.SetDefault("monitor.lookback_days", 180)
	v.SetDefault("monitor.projection_days", 7)
	v.SetDefault("monitor.medications", []string{})

	v.SetDefault("reminders.enabled", true)
	v.SetDefault("reminders.day_before", true)
	v.SetDefault("reminders.lead_time", "24h")
	v.SetDefault("reminders.due", true)
	v.SetDefault("reminders.missed", true)
	v.SetDefault("reminders.missed_grace", "24h")

	v.SetDefault("report.enabled", true)
	v.SetDefault("report.schedule", "0 9 * * *")
	v.SetDefault("report.attach_chart", true)

	v.SetDefault("chart.width", 900)
	v.SetDefault("chart.height", 500)
	v.SetDefault("chart.history_days", 30)

	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	v.SetDefault("desktop.enabled", false)
	v.SetDefault("desktop.app_name", "doseoracle")

	v.SetDefault("storage.db_path", "")
	v.SetDefault("storage.seed_defaults", true)
	v.SetDefault("storage.max_reminders", 1000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Monitor config
	if c.Monitor.PollInterval < 1*time.Minute {
		return fmt.Errorf("monitor.poll_interval must be at least 1 minute")
	}
	if c.Monitor.LookbackDays < 0 {
		return fmt.Errorf("monitor.lookback_days must not be negative")
	}
	if c.Monitor.ProjectionDays < 0 || c.Monitor.ProjectionDays > 90 {
		return fmt.Errorf("monitor.projection_days must be between 0 and 90")
	}

	// Validate Reminders config
	if c.Reminders.Enabled {
		if c.Reminders.DayBefore && c.Reminders.LeadTime <= 0 {
			return fmt.Errorf("reminders.lead_time must be positive when day_before is enabled")
		}
		if c.Reminders.Missed && c.Reminders.MissedGrace <= 0 {
			return fmt.Errorf("reminders.missed_grace must be positive when missed is enabled")
		}
	}

	// Validate Report config
	if c.Report.Enabled {
		if _, err := cron.ParseStandard(c.Report.Schedule); err != nil {
			return fmt.Errorf("report.schedule is not a valid cron expression: %w", err)
		}
	}

	// Validate Chart config
	if c.Chart.Width < 200 || c.Chart.Height < 150 {
		return fmt.Errorf("chart.width must be at least 200 and chart.height at least 150")
	}
	if c.Chart.HistoryDays < 1 {
		return fmt.Errorf("chart.history_days must be at least 1")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Storage config
	if c.Storage.MaxReminders < 1 {
		return fmt.Errorf("storage.max_reminders must be at least 1")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

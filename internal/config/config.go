// Package config provides configuration loading, validation, and defaults
// for the poll bot. Values come from a YAML file and POLLBOT_* environment
// variables layered over built-in defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-telegram/bot/models"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables overriding config keys,
// e.g. POLLBOT_TELEGRAM_TOKEN for telegram.token.
const EnvPrefix = "POLLBOT"

// Config defines the application configuration for all components.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Poll      PollConfig      `mapstructure:"poll"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Messages  MessagesConfig  `mapstructure:"messages"`
}

// LoggerConfig controls log level and output format.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// TelegramConfig holds the bot credentials and transport settings.
type TelegramConfig struct {
	Token              string `mapstructure:"token"                validate:"required"`
	AdminUserID        int64  `mapstructure:"admin_user_id"        validate:"gte=0"`
	DropPendingUpdates bool   `mapstructure:"drop_pending_updates"`

	// BotInfo is filled at startup from getMe.
	BotInfo *models.User `mapstructure:"-" validate:"-"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
	// Retention is how long closed polls are kept; zero keeps them forever.
	Retention time.Duration `mapstructure:"retention" validate:"gte=0"`
}

// SchedulerConfig lists the scheduled tasks by name.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks" validate:"dive"`
}

// TaskConfig schedules a task either with a cron expression (seconds field
// allowed) or with a fixed interval.
type TaskConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Schedule string        `mapstructure:"schedule" validate:"required_without=Interval"`
	Interval time.Duration `mapstructure:"interval" validate:"omitempty,min=1s"`
}

// PollConfig tunes poll creation.
type PollConfig struct {
	DefaultDurationMinutes int      `mapstructure:"default_duration_minutes" validate:"min=1,max=1440"`
	Markers                []string `mapstructure:"markers"                  validate:"len=10,unique,dive,required"`
}

// GeminiConfig enables the results commentary when APIKey is set.
type GeminiConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"       validate:"required_with=APIKey"`
	Temperature float32       `mapstructure:"temperature" validate:"min=0,max=2"`
	Timeout     time.Duration `mapstructure:"timeout"     validate:"min=1s,max=10m"`
	Instruction string        `mapstructure:"instruction" validate:"required_with=APIKey"`
}

// Enabled reports whether a Gemini client should be created.
func (g GeminiConfig) Enabled() bool {
	return g.APIKey != ""
}

// MessagesConfig holds every user-facing text.
type MessagesConfig struct {
	Welcome             string `mapstructure:"welcome"                validate:"required"`
	Help                string `mapstructure:"help"                   validate:"required"`
	PollTooFewSegments  string `mapstructure:"poll_too_few_segments"  validate:"required"`
	PollOptionCount     string `mapstructure:"poll_option_count"      validate:"required"`
	EndPollUsage        string `mapstructure:"end_poll_usage"         validate:"required"`
	EndPollNotFound     string `mapstructure:"end_poll_not_found"     validate:"required"`
	EndPollNotPermitted string `mapstructure:"end_poll_not_permitted" validate:"required"`
	OpenPollsHeader     string `mapstructure:"open_polls_header"      validate:"required"`
	NoOpenPolls         string `mapstructure:"no_open_polls"          validate:"required"`
	ErrorGeneral        string `mapstructure:"error_general"          validate:"required"`
}

// LoadConfig reads the YAML file at path (optional), applies POLLBOT_*
// environment overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		} else if errors.Is(err, os.ErrNotExist) {
			slog.Info("Configuration file not found, using defaults and environment", "path", path)
		} else {
			return nil, fmt.Errorf("failed to stat config file %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration against its validation rules.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

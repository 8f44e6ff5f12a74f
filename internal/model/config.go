package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

const masked = "***"

// EmailConfig holds the mailbox connection settings.
type EmailConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	UseSSL   bool   `mapstructure:"use_ssl" yaml:"use_ssl"`

	// Mailbox is the folder selected after login.
	Mailbox string `mapstructure:"mailbox" yaml:"mailbox"`
}

// FetchConfig controls a single fetch cycle.
type FetchConfig struct {
	LookbackHours int `mapstructure:"lookback_hours" yaml:"lookback_hours"`

	// LookbackMinutes overrides LookbackHours when set to a positive value.
	LookbackMinutes *int `mapstructure:"lookback_minutes" yaml:"lookback_minutes,omitempty"`

	StripQuotes      bool    `mapstructure:"strip_quotes" yaml:"strip_quotes"`
	MaxRetries       int     `mapstructure:"max_retries" yaml:"max_retries"`
	RetryBackoffBase float64 `mapstructure:"retry_backoff_base" yaml:"retry_backoff_base"`

	// PrimaryOnly excludes Gmail's Promotions, Social, Updates and Forums
	// categories from searches.
	PrimaryOnly bool `mapstructure:"primary_only" yaml:"primary_only"`

	// UseArrivalDate selects the arrival-date locator over the sent-date
	// search.
	UseArrivalDate bool `mapstructure:"use_arrival_date" yaml:"use_arrival_date"`

	// ArrivalWindow bounds how many of the newest candidates the
	// arrival-date locator inspects.
	ArrivalWindow int `mapstructure:"arrival_window" yaml:"arrival_window"`

	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// LLMConfig holds settings for the optional LLM-backed summarizer.
type LLMConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Provider   string `mapstructure:"provider" yaml:"provider"`
	Model      string `mapstructure:"model" yaml:"model"`
	APIKey     string `mapstructure:"api_key" yaml:"api_key"`
	MaxTokens  int    `mapstructure:"max_tokens" yaml:"max_tokens"`
	TimeoutSec int    `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// StorageConfig locates the message index on disk.
type StorageConfig struct {
	Dir       string `mapstructure:"dir" yaml:"dir"`
	IndexFile string `mapstructure:"index_file" yaml:"index_file"`
}

// ScheduleConfig drives the background poller.
type ScheduleConfig struct {
	// Cron is a standard 5-field cron expression.
	Cron string `mapstructure:"cron" yaml:"cron"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Email    EmailConfig    `mapstructure:"email" yaml:"email"`
	Fetch    FetchConfig    `mapstructure:"fetch" yaml:"fetch"`
	LLM      LLMConfig      `mapstructure:"llm" yaml:"llm"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Schedule ScheduleConfig `mapstructure:"schedule" yaml:"schedule"`
}

// Lookback returns the fetch window. Minutes win over hours when present.
func (f FetchConfig) Lookback() time.Duration {
	if f.LookbackMinutes != nil && *f.LookbackMinutes > 0 {
		return time.Duration(*f.LookbackMinutes) * time.Minute
	}
	return time.Duration(f.LookbackHours) * time.Hour
}

// Timeout returns the caller-level bound for a whole fetch cycle.
func (f FetchConfig) Timeout() time.Duration {
	if f.TimeoutSec <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(f.TimeoutSec) * time.Second
}

// Timeout bounds a single provider request.
func (l LLMConfig) Timeout() time.Duration {
	if l.TimeoutSec <= 0 {
		return time.Minute
	}
	return time.Duration(l.TimeoutSec) * time.Second
}

// IndexPath returns the path of the index database.
func (s StorageConfig) IndexPath() string {
	return filepath.Join(s.Dir, s.IndexFile)
}

// Masked returns a copy of the config safe to print or log.
func (c AppConfig) Masked() AppConfig {
	if c.Email.Password != "" {
		c.Email.Password = masked
	}
	if c.LLM.APIKey != "" {
		c.LLM.APIKey = masked
	}
	if c.Fetch.LookbackMinutes != nil {
		m := *c.Fetch.LookbackMinutes
		c.Fetch.LookbackMinutes = &m
	}
	return c
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/contextcatcher/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "contextcatcher", "config.yaml")
}

var defaults = map[string]any{
	"email.host":               "imap.gmail.com",
	"email.port":               993,
	"email.use_ssl":            true,
	"email.mailbox":            "INBOX",
	"fetch.lookback_hours":     24,
	"fetch.strip_quotes":       true,
	"fetch.max_retries":        3,
	"fetch.retry_backoff_base": 2.0,
	"fetch.primary_only":       false,
	"fetch.use_arrival_date":   true,
	"fetch.arrival_window":     50,
	"fetch.timeout_sec":        300,
	"llm.enabled":              false,
	"llm.provider":             "anthropic",
	"llm.max_tokens":           1024,
	"llm.timeout_sec":          60,
	"storage.dir":              "./storage",
	"storage.index_file":       "index.db",
	"schedule.cron":            "*/15 * * * *",
}

// envBindings maps config keys to the environment variables that override
// them. The first non-empty variable wins.
var envBindings = map[string][]string{
	"email.host":             {"EMAIL_HOST"},
	"email.port":             {"EMAIL_PORT"},
	"email.username":         {"EMAIL_USERNAME"},
	"email.password":         {"EMAIL_PASSWORD"},
	"fetch.lookback_hours":   {"LOOKBACK_HOURS"},
	"fetch.lookback_minutes": {"LOOKBACK_MINUTES"},
	"llm.enabled":            {"LLM_ENABLED"},
	"llm.api_key":            {"LLM_API_KEY", "ANTHROPIC_API_KEY", "OPENAI_API_KEY"},
	"storage.dir":            {"STORAGE_DIR"},
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	for key, envs := range envBindings {
		_ = v.BindEnv(append([]string{key}, envs...)...)
	}
	return v
}

// LoadConfig reads configuration from the given YAML file path using Viper,
// then applies environment overrides. A missing file yields the defaults
// plus any environment overrides.
func LoadConfig(path string) (*AppConfig, error) {
	v := newViper(path)

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Fetch.MaxRetries < 1 {
		cfg.Fetch.MaxRetries = 1
	}
	if cfg.Fetch.ArrivalWindow <= 0 {
		cfg.Fetch.ArrivalWindow = 50
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("email", cfg.Email)
	v.Set("fetch", cfg.Fetch)
	v.Set("llm", cfg.LLM)
	v.Set("storage", cfg.Storage)
	v.Set("schedule", cfg.Schedule)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}

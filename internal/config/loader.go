// Package config loads worktrack settings from an optional TOML file, a
// .env file and the process environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/example/worktrack/internal/logging"
	"github.com/example/worktrack/internal/monitor"
	"github.com/example/worktrack/internal/notify"
)

// Config captures the settings of the worktrack daemon.
type Config struct {
	HTTPPort    int
	DatabaseURL string
	Location    *time.Location
	LogLevel    slog.Level

	Idle      monitor.Config
	SMTP      SMTPConfig
	RateLimit RateLimitConfig

	// EventBuffer is the per-subscriber queue length of the event broker.
	EventBuffer int
}

// SMTPConfig holds mail delivery settings. Alerts are only logged when
// Host is empty.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	CC       []string
	BCC      []string
}

// Enabled reports whether alerts should be mailed.
func (c SMTPConfig) Enabled() bool {
	return c.Host != ""
}

// RateLimitConfig bounds requests per client address. A zero RPS disables
// limiting.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// EmailConfig converts the SMTP settings for the e-mail notifier.
func (c Config) EmailConfig() notify.EmailConfig {
	return notify.EmailConfig{
		Host:            c.SMTP.Host,
		Port:            c.SMTP.Port,
		Username:        c.SMTP.Username,
		Password:        c.SMTP.Password,
		From:            c.SMTP.From,
		To:              c.SMTP.To,
		CC:              c.SMTP.CC,
		BCC:             c.SMTP.BCC,
		AutoStopMinutes: c.Idle.AutoStopMinutes,
		Location:        c.Location,
	}
}

// fileConfig mirrors the TOML layout of WORKTRACK_CONFIG_FILE.
type fileConfig struct {
	HTTPPort    int    `toml:"http_port"`
	DatabaseURL string `toml:"database_url"`
	Timezone    string `toml:"timezone"`
	LogLevel    string `toml:"log_level"`
	EventBuffer int    `toml:"event_buffer"`

	Idle struct {
		WarningMinutes   int    `toml:"warning_minutes"`
		AutoStopMinutes  int    `toml:"auto_stop_minutes"`
		CheckInterval    string `toml:"check_interval"`
		ActivityLookback string `toml:"activity_lookback"`
	} `toml:"idle"`

	SMTP struct {
		Host     string   `toml:"host"`
		Port     int      `toml:"port"`
		Username string   `toml:"username"`
		Password string   `toml:"password"`
		From     string   `toml:"from"`
		Admins   []string `toml:"admin_emails"`
		CC       []string `toml:"cc_emails"`
		BCC      []string `toml:"bcc_emails"`
	} `toml:"smtp"`

	RateLimit struct {
		RPS   float64 `toml:"rps"`
		Burst int     `toml:"burst"`
	} `toml:"rate_limit"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		HTTPPort:    8080,
		DatabaseURL: "sqlite://worktrack.db",
		Location:    time.Local,
		LogLevel:    slog.LevelInfo,
		Idle:        monitor.DefaultConfig(),
		SMTP:        SMTPConfig{Port: 587},
		RateLimit:   RateLimitConfig{RPS: 20, Burst: 40},
		EventBuffer: 64,
	}
}

// Load builds the configuration. Values are layered as defaults, then the
// TOML file named by WORKTRACK_CONFIG_FILE, then the environment. A .env
// file (WORKTRACK_ENV_FILE, default ".env") seeds variables that are not
// already set.
//
// Every missing or malformed value is reported in a single error.
func Load() (Config, error) {
	envFile := strings.TrimSpace(os.Getenv("WORKTRACK_ENV_FILE"))
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to read env file %s: %w", envFile, err)
	}

	cfg := Defaults()
	invalid := make([]string, 0, 2)
	missing := make([]string, 0, 1)

	if path := strings.TrimSpace(os.Getenv("WORKTRACK_CONFIG_FILE")); path != "" {
		var file fileConfig
		if _, err := toml.DecodeFile(path, &file); err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		invalid = append(invalid, file.apply(&cfg)...)
	}

	l := envLoader{invalid: invalid}
	l.positiveInt("WORKTRACK_HTTP_PORT", &cfg.HTTPPort)
	l.str("WORKTRACK_DATABASE_URL", &cfg.DatabaseURL)
	l.location("WORKTRACK_TIMEZONE", &cfg.Location)
	l.level("WORKTRACK_LOG_LEVEL", &cfg.LogLevel)
	l.positiveInt("WORKTRACK_EVENT_BUFFER", &cfg.EventBuffer)

	l.positiveInt("WORKTRACK_IDLE_WARNING_MINUTES", &cfg.Idle.WarningMinutes)
	l.positiveInt("WORKTRACK_IDLE_AUTO_STOP_MINUTES", &cfg.Idle.AutoStopMinutes)
	l.duration("WORKTRACK_IDLE_CHECK_INTERVAL", &cfg.Idle.Interval)
	l.duration("WORKTRACK_ACTIVITY_LOOKBACK", &cfg.Idle.Lookback)

	l.str("WORKTRACK_SMTP_HOST", &cfg.SMTP.Host)
	l.positiveInt("WORKTRACK_SMTP_PORT", &cfg.SMTP.Port)
	l.str("WORKTRACK_SMTP_USERNAME", &cfg.SMTP.Username)
	l.str("WORKTRACK_SMTP_PASSWORD", &cfg.SMTP.Password)
	l.str("WORKTRACK_SMTP_FROM", &cfg.SMTP.From)
	l.addresses("WORKTRACK_ADMIN_EMAILS", &cfg.SMTP.To)
	l.addresses("WORKTRACK_CC_EMAILS", &cfg.SMTP.CC)
	l.addresses("WORKTRACK_BCC_EMAILS", &cfg.SMTP.BCC)

	l.rate("WORKTRACK_RATE_LIMIT_RPS", &cfg.RateLimit.RPS)
	l.positiveInt("WORKTRACK_RATE_LIMIT_BURST", &cfg.RateLimit.Burst)
	invalid = l.invalid

	if cfg.DatabaseURL == "" {
		missing = append(missing, "WORKTRACK_DATABASE_URL")
	}
	if cfg.SMTP.Enabled() && len(cfg.SMTP.To) == 0 {
		missing = append(missing, "WORKTRACK_ADMIN_EMAILS")
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required configuration is not set: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid configuration values: %s", strings.Join(invalid, ", "))
	}
	if err := cfg.Idle.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid idle thresholds: %w", err)
	}

	return cfg, nil
}

// apply copies the non-zero file values onto cfg and returns the keys it
// could not parse.
func (f fileConfig) apply(cfg *Config) []string {
	var invalid []string

	if f.HTTPPort != 0 {
		cfg.HTTPPort = f.HTTPPort
	}
	if f.DatabaseURL != "" {
		cfg.DatabaseURL = f.DatabaseURL
	}
	if f.Timezone != "" {
		loc, err := time.LoadLocation(f.Timezone)
		if err != nil {
			invalid = append(invalid, "timezone")
		} else {
			cfg.Location = loc
		}
	}
	if f.LogLevel != "" {
		level, err := logging.ParseLevel(f.LogLevel)
		if err != nil {
			invalid = append(invalid, "log_level")
		} else {
			cfg.LogLevel = level
		}
	}
	if f.EventBuffer != 0 {
		cfg.EventBuffer = f.EventBuffer
	}

	if f.Idle.WarningMinutes != 0 {
		cfg.Idle.WarningMinutes = f.Idle.WarningMinutes
	}
	if f.Idle.AutoStopMinutes != 0 {
		cfg.Idle.AutoStopMinutes = f.Idle.AutoStopMinutes
	}
	invalid = fileDuration(invalid, "idle.check_interval", f.Idle.CheckInterval, &cfg.Idle.Interval)
	invalid = fileDuration(invalid, "idle.activity_lookback", f.Idle.ActivityLookback, &cfg.Idle.Lookback)

	if f.SMTP.Host != "" {
		cfg.SMTP.Host = f.SMTP.Host
	}
	if f.SMTP.Port != 0 {
		cfg.SMTP.Port = f.SMTP.Port
	}
	if f.SMTP.Username != "" {
		cfg.SMTP.Username = f.SMTP.Username
	}
	if f.SMTP.Password != "" {
		cfg.SMTP.Password = f.SMTP.Password
	}
	if f.SMTP.From != "" {
		cfg.SMTP.From = f.SMTP.From
	}
	if len(f.SMTP.Admins) > 0 {
		cfg.SMTP.To = f.SMTP.Admins
	}
	if len(f.SMTP.CC) > 0 {
		cfg.SMTP.CC = f.SMTP.CC
	}
	if len(f.SMTP.BCC) > 0 {
		cfg.SMTP.BCC = f.SMTP.BCC
	}

	if f.RateLimit.RPS != 0 {
		cfg.RateLimit.RPS = f.RateLimit.RPS
	}
	if f.RateLimit.Burst != 0 {
		cfg.RateLimit.Burst = f.RateLimit.Burst
	}
	return invalid
}

func fileDuration(invalid []string, key, value string, target *time.Duration) []string {
	if value == "" {
		return invalid
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return append(invalid, key)
	}
	*target = d
	return invalid
}

// envLoader applies environment overrides and collects the names of
// malformed variables.
type envLoader struct {
	invalid []string
}

func (l *envLoader) lookup(key string) (string, bool) {
	value := strings.TrimSpace(os.Getenv(key))
	return value, value != ""
}

func (l *envLoader) str(key string, target *string) {
	if value, ok := l.lookup(key); ok {
		*target = value
	}
}

func (l *envLoader) positiveInt(key string, target *int) {
	value, ok := l.lookup(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		l.invalid = append(l.invalid, key)
		return
	}
	*target = n
}

func (l *envLoader) rate(key string, target *float64) {
	value, ok := l.lookup(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f < 0 {
		l.invalid = append(l.invalid, key)
		return
	}
	*target = f
}

func (l *envLoader) duration(key string, target *time.Duration) {
	value, ok := l.lookup(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		l.invalid = append(l.invalid, key)
		return
	}
	*target = d
}

func (l *envLoader) location(key string, target **time.Location) {
	value, ok := l.lookup(key)
	if !ok {
		return
	}
	loc, err := time.LoadLocation(value)
	if err != nil {
		l.invalid = append(l.invalid, key)
		return
	}
	*target = loc
}

func (l *envLoader) level(key string, target *slog.Level) {
	value, ok := l.lookup(key)
	if !ok {
		return
	}
	level, err := logging.ParseLevel(value)
	if err != nil {
		l.invalid = append(l.invalid, key)
		return
	}
	*target = level
}

func (l *envLoader) addresses(key string, target *[]string) {
	if value, ok := l.lookup(key); ok {
		*target = notify.SplitAddresses(value)
	}
}

// Package daemon manages the mindcamp daemon lifecycle and configuration.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds all daemon configuration. Values come from defaults, then
// $MINDCAMP_HOME/config.toml, then MINDCAMP_* environment variables.
type Config struct {
	API       APIConfig       `toml:"api" envPrefix:"MINDCAMP_API_"`
	Mechanics MechanicsConfig `toml:"mechanics" envPrefix:"MINDCAMP_MECHANICS_"`
	Clock     ClockConfig     `toml:"clock" envPrefix:"MINDCAMP_CLOCK_"`
	Debug     DebugConfig     `toml:"debug" envPrefix:"MINDCAMP_DEBUG_"`
	Redis     RedisConfig     `toml:"redis" envPrefix:"MINDCAMP_REDIS_"`
	Logging   LoggingConfig   `toml:"logging" envPrefix:"MINDCAMP_LOG_"`
	Telemetry TelemetryConfig `toml:"telemetry" envPrefix:"MINDCAMP_TELEMETRY_"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host           string        `toml:"host" env:"HOST"`
	Port           int           `toml:"port" env:"PORT"`
	RequestTimeout time.Duration `toml:"request_timeout" env:"REQUEST_TIMEOUT"`
}

// MechanicsConfig tunes entry qualification and the activity window.
type MechanicsConfig struct {
	MinWords     int `toml:"min_words" env:"MIN_WORDS"`
	LookbackDays int `toml:"lookback_days" env:"LOOKBACK_DAYS"`
}

// ClockConfig controls virtual time. AllowVirtual lets any caller move the
// clock and must stay off in production; admins can always do so.
type ClockConfig struct {
	AllowVirtual bool `toml:"allow_virtual" env:"ALLOW_VIRTUAL"`
}

// DebugConfig controls the admin debug surface.
type DebugConfig struct {
	Enabled        bool          `toml:"enabled" env:"ENABLED"`
	AllowHeavy     bool          `toml:"allow_heavy" env:"ALLOW_HEAVY"`
	RequireConfirm bool          `toml:"require_confirm" env:"REQUIRE_CONFIRM"`
	ConfirmToken   string        `toml:"confirm_token" env:"CONFIRM_TOKEN"`
	RateLimit      int           `toml:"rate_limit" env:"RATE_LIMIT"`
	RateWindow     time.Duration `toml:"rate_window" env:"RATE_WINDOW"`
	AuditToDB      bool          `toml:"audit_db" env:"AUDIT_DB"`
	AuditToLog     bool          `toml:"audit_log" env:"AUDIT_LOG"`
}

// RedisConfig enables the snapshot cache and shared rate limiting.
// An empty Addr runs without Redis.
type RedisConfig struct {
	Addr        string        `toml:"addr" env:"ADDR"`
	Password    string        `toml:"password" env:"PASSWORD"`
	DB          int           `toml:"db" env:"DB"`
	SnapshotTTL time.Duration `toml:"snapshot_ttl" env:"SNAPSHOT_TTL"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `toml:"level" env:"LEVEL"`
	Format string `toml:"format" env:"FORMAT"` // text | json
}

// TelemetryConfig controls the Prometheus endpoint.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus" env:"PROMETHEUS"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host:           "127.0.0.1",
			Port:           7410,
			RequestTimeout: 30 * time.Second,
		},
		Mechanics: MechanicsConfig{
			MinWords:     1,
			LookbackDays: 365,
		},
		Debug: DebugConfig{
			RequireConfirm: true,
			ConfirmToken:   "CONFIRM",
			RateLimit:      5,
			RateWindow:     time.Minute,
			AuditToDB:      true,
			AuditToLog:     true,
		},
		Redis: RedisConfig{
			SnapshotTTL: 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			Prometheus: true,
		},
	}
}

// LoadConfig reads .env, config.toml and the environment, in that order of
// increasing precedence.
func LoadConfig() (Config, error) {
	home := mindcampHome()
	// Existing environment variables win over .env entries.
	for _, p := range []string{".env", filepath.Join(home, ".env")} {
		if err := godotenv.Load(p); err == nil {
			logrus.WithField("path", p).Debug("loaded .env")
		}
	}
	return loadConfig(filepath.Join(mindcampHome(), "config.toml"))
}

func loadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks ranges that would otherwise fail at first use.
func (c Config) Validate() error {
	if c.API.Port < 1 || c.API.Port > 65535 {
		return fmt.Errorf("invalid api.port: %d (must be 1-65535)", c.API.Port)
	}
	if c.Mechanics.MinWords < 1 {
		return fmt.Errorf("invalid mechanics.min_words: %d (must be >= 1)", c.Mechanics.MinWords)
	}
	if c.Mechanics.LookbackDays < 1 {
		return fmt.Errorf("invalid mechanics.lookback_days: %d (must be >= 1)", c.Mechanics.LookbackDays)
	}
	if c.Debug.RateWindow < 0 {
		return fmt.Errorf("invalid debug.rate_window: %s", c.Debug.RateWindow)
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging.level: %w", err)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid logging.format: %q (text or json)", c.Logging.Format)
	}
	return nil
}

// SaveConfig writes the config to $MINDCAMP_HOME/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(mindcampHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// ConfigureLogging applies level and format to the standard logrus logger.
func ConfigureLogging(cfg LoggingConfig) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	logrus.SetLevel(level)
	if strings.EqualFold(cfg.Format, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

// mindcampHome returns the mindcamp data directory.
func mindcampHome() string {
	if env := os.Getenv("MINDCAMP_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".mindcamp")
}

// Home is exported for use by other packages.
func Home() string {
	return mindcampHome()
}

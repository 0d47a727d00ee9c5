// Package daemon manages the ghostxp daemon lifecycle and configuration.
package daemon

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment overrides. Nested keys are joined
// with a double underscore: GHOSTXP_SERVER__PORT sets server.port.
const EnvPrefix = "GHOSTXP_"

// Config holds all daemon configuration.
type Config struct {
	Server        ServerConfig        `toml:"server"`
	Storage       StorageConfig       `toml:"storage"`
	Logging       LoggingConfig       `toml:"logging"`
	Engine        EngineConfig        `toml:"engine"`
	Leaderboard   LeaderboardConfig   `toml:"leaderboard"`
	Quests        QuestsConfig        `toml:"quests"`
	Notifications NotificationsConfig `toml:"notifications"`
	Telemetry     TelemetryConfig     `toml:"telemetry"`
}

// ServerConfig controls the HTTP API server.
type ServerConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	RequestTimeout string `toml:"request_timeout"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver       string `toml:"driver"` // sqlite | postgres
	Dir          string `toml:"dir"`
	DSN          string `toml:"dsn"`
	MaxOpenConns int    `toml:"max_open_conns"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // json | console
}

// EngineConfig tunes the progression engine.
type EngineConfig struct {
	MaxAttempts      int    `toml:"max_attempts"`
	RetryBaseDelay   string `toml:"retry_base_delay"`
	RetryMaxDelay    string `toml:"retry_max_delay"`
	Timezone         string `toml:"timezone"`
	DailyQuestCount  int    `toml:"daily_quest_count"`
	WeeklyQuestCount int    `toml:"weekly_quest_count"`
}

// LeaderboardConfig controls the ranking schedule.
type LeaderboardConfig struct {
	Interval string `toml:"interval"` // "0" disables the schedule
	MaxLimit int    `toml:"max_limit"`
}

// QuestsConfig controls the expiry sweep.
type QuestsConfig struct {
	SweepInterval string `toml:"sweep_interval"`
}

// NotificationsConfig sizes the dispatcher queue.
type NotificationsConfig struct {
	Buffer int `toml:"buffer"`
}

// TelemetryConfig toggles the metrics endpoint.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// DefaultConfig returns the configuration used when no file or override is present.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           8420,
			RequestTimeout: "15s",
		},
		Storage: StorageConfig{
			Driver:       "sqlite",
			Dir:          ghostxpHome(),
			MaxOpenConns: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Engine: EngineConfig{
			MaxAttempts:      5,
			RetryBaseDelay:   "10ms",
			RetryMaxDelay:    "250ms",
			Timezone:         "UTC",
			DailyQuestCount:  3,
			WeeklyQuestCount: 3,
		},
		Leaderboard: LeaderboardConfig{
			Interval: "5m",
			MaxLimit: 100,
		},
		Quests: QuestsConfig{
			SweepInterval: "1m",
		},
		Notifications: NotificationsConfig{
			Buffer: 256,
		},
		Telemetry: TelemetryConfig{
			Prometheus: true,
		},
	}
}

// LoadConfig reads $GHOSTXP_HOME/config.toml over the defaults and then
// applies GHOSTXP_* environment overrides.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := ConfigPath()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("stat config: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overlays GHOSTXP_* environment variables onto cfg. Keys without a
// section, like GHOSTXP_HOME, are skipped.
func applyEnv(cfg *Config) error {
	k := koanf.New(".")
	p := env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, interface{}) {
		key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
		key = strings.ReplaceAll(key, "__", ".")
		if !strings.Contains(key, ".") {
			return "", nil
		}
		return key, value
	})
	if err := k.Load(p, nil); err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	if len(k.Keys()) == 0 {
		return nil
	}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "toml"}); err != nil {
		return fmt.Errorf("apply env: %w", err)
	}
	return nil
}

// Validate rejects settings the daemon cannot start with.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case "", "sqlite":
		if c.Storage.Dir == "" {
			return fmt.Errorf("storage.dir must not be empty")
		}
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn must be set for postgres")
		}
	default:
		return fmt.Errorf("storage.driver %q: want sqlite or postgres", c.Storage.Driver)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if _, err := time.LoadLocation(c.Engine.Timezone); err != nil {
		return fmt.Errorf("engine.timezone: %w", err)
	}
	if c.Engine.MaxAttempts < 1 {
		return fmt.Errorf("engine.max_attempts must be at least 1")
	}
	return nil
}

// Encode renders the config as TOML.
func (c Config) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SaveConfig writes the config to $GHOSTXP_HOME/config.toml.
func SaveConfig(cfg Config) error {
	path := ConfigPath()
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

// ConfigPath is the location LoadConfig reads.
func ConfigPath() string {
	return filepath.Join(ghostxpHome(), "config.toml")
}

// ghostxpHome returns the ghostxp data directory.
func ghostxpHome() string {
	if dir := os.Getenv("GHOSTXP_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".ghostxp")
}

// Home is exported for use by other packages.
func Home() string {
	return ghostxpHome()
}

// parseDuration parses a duration string, returning a fallback on error.
// "0" is a valid zero duration.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

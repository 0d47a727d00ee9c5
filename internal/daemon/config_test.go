package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("GHOSTXP_HOME", "/tmp/ghostxp-home")
	cfg := DefaultConfig()

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 8420, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "/tmp/ghostxp-home", cfg.Storage.Dir)
	assert.Equal(t, 5, cfg.Engine.MaxAttempts)
	assert.Equal(t, "10ms", cfg.Engine.RetryBaseDelay)
	assert.Equal(t, "250ms", cfg.Engine.RetryMaxDelay)
	assert.Equal(t, "UTC", cfg.Engine.Timezone)
	assert.Equal(t, 3, cfg.Engine.DailyQuestCount)
	assert.Equal(t, 3, cfg.Engine.WeeklyQuestCount)
	assert.Equal(t, "5m", cfg.Leaderboard.Interval)
	assert.Equal(t, 100, cfg.Leaderboard.MaxLimit)
	assert.Equal(t, "1m", cfg.Quests.SweepInterval)
	assert.Equal(t, 256, cfg.Notifications.Buffer)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_NoFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("GHOSTXP_HOME", home)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, filepath.Join(home, "config.toml"), ConfigPath())
}

func TestLoadConfig_File(t *testing.T) {
	home := t.TempDir()
	t.Setenv("GHOSTXP_HOME", home)

	data := `
[server]
port = 9100

[engine]
timezone = "Europe/Berlin"
daily_quest_count = 4

[leaderboard]
interval = "0"
`
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.toml"), []byte(data), 0600))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host, "unset keys keep defaults")
	assert.Equal(t, "Europe/Berlin", cfg.Engine.Timezone)
	assert.Equal(t, 4, cfg.Engine.DailyQuestCount)
	assert.Equal(t, time.Duration(0), parseDuration(cfg.Leaderboard.Interval, 5*time.Minute))
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("GHOSTXP_HOME", home)
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.toml"),
		[]byte("[server]\nport = 9100\n"), 0600))

	t.Setenv("GHOSTXP_SERVER__PORT", "9000")
	t.Setenv("GHOSTXP_ENGINE__TIMEZONE", "Asia/Tokyo")
	t.Setenv("GHOSTXP_ENGINE__MAX_ATTEMPTS", "7")
	t.Setenv("GHOSTXP_TELEMETRY__PROMETHEUS", "false")
	t.Setenv("GHOSTXP_LEADERBOARD__INTERVAL", "30s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "Asia/Tokyo", cfg.Engine.Timezone)
	assert.Equal(t, 7, cfg.Engine.MaxAttempts)
	assert.False(t, cfg.Telemetry.Prometheus)
	assert.Equal(t, "30s", cfg.Leaderboard.Interval)
	assert.Equal(t, 256, cfg.Notifications.Buffer, "untouched sections survive the overlay")
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown driver", map[string]string{"GHOSTXP_STORAGE__DRIVER": "mongo"}},
		{"postgres without dsn", map[string]string{"GHOSTXP_STORAGE__DRIVER": "postgres"}},
		{"bad timezone", map[string]string{"GHOSTXP_ENGINE__TIMEZONE": "Mars/Olympus"}},
		{"port out of range", map[string]string{"GHOSTXP_SERVER__PORT": "70000"}},
		{"no attempts", map[string]string{"GHOSTXP_ENGINE__MAX_ATTEMPTS": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GHOSTXP_HOME", t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_BadTOML(t *testing.T) {
	home := t.TempDir()
	t.Setenv("GHOSTXP_HOME", home)
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.toml"), []byte("[server\nport="), 0600))

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "parse config")
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	t.Setenv("GHOSTXP_HOME", filepath.Join(t.TempDir(), "nested"))

	cfg := DefaultConfig()
	cfg.Storage.Driver = "postgres"
	cfg.Storage.DSN = "postgres://ghost@localhost/ghostxp"
	cfg.Logging.Format = "console"
	require.NoError(t, SaveConfig(cfg))

	got, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestConfig_Encode(t *testing.T) {
	out, err := DefaultConfig().Encode()
	require.NoError(t, err)

	var back Config
	_, err = toml.Decode(string(out), &back)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), back)
	assert.Contains(t, string(out), "[leaderboard]")
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"10ms", 10 * time.Millisecond},
		{"5m", 5 * time.Minute},
		{"0", 0},
		{"", time.Second},     // fallback
		{"soon", time.Second}, // fallback
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseDuration(tt.input, time.Second))
		})
	}
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger(LoggingConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	l, err = NewLogger(LoggingConfig{Level: "warn"})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))

	_, err = NewLogger(LoggingConfig{Level: "loud"})
	assert.Error(t, err)
	_, err = NewLogger(LoggingConfig{Level: "info", Format: "xml"})
	assert.Error(t, err)
}

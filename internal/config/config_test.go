package config

import (
	"os"
	"path/filepath"
	"testing"

	"wapool/internal/constants"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, `{"database": {"path": "pool.db"}}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "pool.db", cfg.Database.Path)
	assert.Equal(t, constants.DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, constants.DefaultGraphAPIBaseURL, cfg.WhatsApp.APIBaseURL)
	assert.Equal(t, "v21.0", cfg.WhatsApp.APIVersion)
	assert.Equal(t, 15, cfg.WhatsApp.TimeoutSec)
	assert.Equal(t, 3, cfg.HealthCheck.MaxFailedChecks)
	assert.Equal(t, "*/15 * * * *", cfg.HealthCheck.Schedule)
	assert.Equal(t, TerminalActionDisable, cfg.HealthCheck.TerminalAction)
	assert.Equal(t, MethodWABAStatus, cfg.HealthCheck.VerificationMethod)
	assert.True(t, cfg.HealthCheck.StartupRunEnabled())
	assert.Equal(t, 5, cfg.Notifications.TimeoutSec)
	assert.Equal(t, 1000, cfg.Audit.Retention)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfig_ExplicitValues(t *testing.T) {
	path := writeConfig(t, `{
		"database": {"path": "pool.db"},
		"health_check": {
			"schedule": "@every 5m",
			"max_failed_checks": 5,
			"terminal_action": "REMOVE",
			"verification_method": "message_send",
			"run_on_startup": false,
			"concurrency": 2
		},
		"notifications": {"webhook_url": "https://hooks.example.com/wa"}
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.HealthCheck.MaxFailedChecks)
	assert.Equal(t, TerminalActionRemove, cfg.HealthCheck.TerminalAction)
	assert.Equal(t, MethodMessageSend, cfg.HealthCheck.VerificationMethod)
	assert.False(t, cfg.HealthCheck.StartupRunEnabled())
	assert.Equal(t, 2, cfg.HealthCheck.Concurrency)
	assert.Equal(t, "https://hooks.example.com/wa", cfg.Notifications.WebhookURL)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{`},
		{"bad terminal action", `{"health_check": {"terminal_action": "explode"}}`},
		{"bad method", `{"health_check": {"verification_method": "ping"}}`},
		{"bad schedule", `{"health_check": {"schedule": "every now and then"}}`},
		{"bad webhook", `{"notifications": {"webhook_url": "ftp://x"}}`},
		{"traversal db path", `{"database": {"path": "../../etc/pool.db"}}`},
		{"bad port", `{"server": {"port": 70000}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_RejectsTraversalPath(t *testing.T) {
	_, err := LoadConfig("../config.json")
	assert.Error(t, err)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("WEBHOOK_URL", "https://env.example.com/hook")
	t.Setenv("DB_PATH", "env.db")
	t.Setenv("PORT", "4100")
	t.Setenv("WAPOOL_API_KEY", "from-env")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := LoadConfig(writeConfig(t, `{"database": {"path": "file.db"}}`))
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.com/hook", cfg.Notifications.WebhookURL)
	assert.Equal(t, "env.db", cfg.Database.Path)
	assert.Equal(t, 4100, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.Server.APIKey)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
}

func TestLoadConfig_ProductionRequiresAPIKey(t *testing.T) {
	t.Setenv("WAPOOL_ENV", "production")

	_, err := LoadConfig(writeConfig(t, `{}`))
	assert.Error(t, err)

	t.Setenv("WAPOOL_API_KEY", "a-sufficiently-long-api-key-value")
	_, err = LoadConfig(writeConfig(t, `{}`))
	assert.NoError(t, err)

	_, err = LoadConfig(writeConfig(t, `{"log_level": "debug"}`))
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("WAPOOL_DOTENV_PROBE=loaded\n"), 0o600))
	t.Setenv("WAPOOL_DOTENV_PROBE", "")
	require.NoError(t, os.Unsetenv("WAPOOL_DOTENV_PROBE"))

	require.NoError(t, LoadDotEnv(envPath))
	assert.Equal(t, "loaded", os.Getenv("WAPOOL_DOTENV_PROBE"))

	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))
}

func TestDefault(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)
	assert.Equal(t, constants.DefaultDatabasePath, cfg.Database.Path)
	assert.Equal(t, constants.DefaultMaxFailedChecks, cfg.HealthCheck.MaxFailedChecks)
}

func TestLoadOrDefault(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file falls back to defaults", func(t *testing.T) {
		t.Setenv("WAPOOL_ENV", "")
		cfg, err := LoadOrDefault(filepath.Join(dir, "absent.json"))
		require.NoError(t, err)
		assert.Equal(t, constants.DefaultHealthCheckSchedule, cfg.HealthCheck.Schedule)
	})

	t.Run("production without key is rejected", func(t *testing.T) {
		t.Setenv("WAPOOL_ENV", "production")
		t.Setenv("WAPOOL_API_KEY", "")
		_, err := LoadOrDefault(filepath.Join(dir, "absent.json"))
		assert.Error(t, err)
	})

	t.Run("invalid environment override is rejected", func(t *testing.T) {
		t.Setenv("WAPOOL_ENV", "")
		t.Setenv("PORT", "70000")
		cfg, err := LoadOrDefault(filepath.Join(dir, "absent.json"))
		require.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid server port")
	})
}

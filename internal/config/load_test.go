package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("STORYFAB_DATABASE_URL", "postgres://localhost:5432/storyfab_test")
	t.Setenv("STORYFAB_AUTH_JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("STORYFAB_LLM_GEMINI_API_KEY", "test-api-key")
}

func TestLoad(t *testing.T) {
	t.Run("defaults applied", func(t *testing.T) {
		setRequiredEnv(t)

		cfg, err := Load()

		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, "info", cfg.Server.LogLevel)
		assert.Equal(t, 3, cfg.Task.MaxAttempts)
		assert.Equal(t, 4, cfg.Task.ImageFanOut)
		assert.Equal(t, 24, cfg.Task.FailedRetentionHours)
	})

	t.Run("environment overrides defaults", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("STORYFAB_SERVER_PORT", "9090")
		t.Setenv("STORYFAB_SERVER_LOG_LEVEL", "debug")
		t.Setenv("STORYFAB_TASK_WORKER_COUNT", "8")

		cfg, err := Load()

		require.NoError(t, err)
		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, "debug", cfg.Server.LogLevel)
		assert.Equal(t, 8, cfg.Task.WorkerCount)
	})

	t.Run("missing required values rejected", func(t *testing.T) {
		t.Setenv("STORYFAB_DATABASE_URL", "")
		t.Setenv("STORYFAB_AUTH_JWT_SECRET", "")
		t.Setenv("STORYFAB_LLM_GEMINI_API_KEY", "")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("short jwt secret rejected", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("STORYFAB_AUTH_JWT_SECRET", "too-short")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("invalid log level rejected", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("STORYFAB_SERVER_LOG_LEVEL", "verbose")

		_, err := Load()
		assert.Error(t, err)
	})
}

package logger

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/storyfab/storyfab-api/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		logger, err := Setup(config.ServerConfig{Port: 8080, LogLevel: level})
		require.NoError(t, err, "level %s", level)
		assert.NotNil(t, logger)
	}

	// Unknown levels fall back to info instead of failing.
	logger, err := Setup(config.ServerConfig{Port: 8080, LogLevel: "loud"})
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()

	base := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := WithContext(context.Background(), base)

	assert.Same(t, base, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()), "missing logger falls back to default")
}

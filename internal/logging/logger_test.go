package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_Production_JSONHandler(t *testing.T) {
	logger := NewLogger("production", "info")
	require.NotNil(t, logger)

	handler := logger.Handler()
	_, ok := handler.(*slog.JSONHandler)
	assert.True(t, ok, "production logger should use JSONHandler, got %T", handler)
}

func TestNewLogger_Development_TextHandler(t *testing.T) {
	for _, env := range []string{"development", "", "staging"} {
		logger := NewLogger(env, "info")
		_, ok := logger.Handler().(*slog.TextHandler)
		assert.True(t, ok, "env %q should use TextHandler, got %T", env, logger.Handler())
	}
}

func TestNewLogger_RespectsLevel(t *testing.T) {
	ctx := context.Background()

	logger := NewLogger("production", "warn")
	assert.False(t, logger.Handler().Enabled(ctx, slog.LevelInfo))
	assert.True(t, logger.Handler().Enabled(ctx, slog.LevelWarn))

	logger = NewLogger("development", "debug")
	assert.True(t, logger.Handler().Enabled(ctx, slog.LevelDebug))
}

func TestNewLogger_WritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "production", "info")

	logger.Info("csrf token refreshed", slog.String("endpoint", "/api/auth/csrf-token"))

	assert.Contains(t, buf.String(), `"msg":"csrf token refreshed"`)
	assert.Contains(t, buf.String(), `"endpoint":"/api/auth/csrf-token"`)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), "level %q", tt.in)
	}
}

func TestDiscard(t *testing.T) {
	assert.False(t, Discard().Handler().Enabled(context.Background(), slog.LevelError))
}

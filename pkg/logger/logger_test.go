package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/koopa0/system-design/14-realtime-pong/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}

	for in, want := range tests {
		assert.Equal(t, want, logger.ParseLevel(in), in)
	}
}

// TestContextAttrs 上下文中的 session/room 應出現在日誌中
func TestContextAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, "info", "json").With("component", "test")

	ctx := logger.WithSessionID(context.Background(), "sess-1")
	ctx = logger.WithRoomID(ctx, "a1b2c3")
	log.InfoContext(ctx, "room created")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "sess-1", entry["session_id"])
	assert.Equal(t, "a1b2c3", entry["room_id"])
	assert.Equal(t, "test", entry["component"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, "warn", "text")

	log.Info("hidden")
	assert.Empty(t, buf.String())

	log.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

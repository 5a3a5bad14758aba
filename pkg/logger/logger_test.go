package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"invalid", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestSetupWriter(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   io.Writer
	}{
		{"stdout output", Config{Output: "stdout"}, os.Stdout},
		{"stderr output", Config{Output: "stderr"}, os.Stderr},
		{"default output", Config{Output: ""}, os.Stdout},
		{"file output without filename", Config{Output: "file"}, os.Stdout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SetupWriter(tt.config))
		})
	}
}

func TestNewLogger(t *testing.T) {
	cfg := Config{Level: "info", Format: "json", Output: "stdout"}

	l := NewLogger(cfg)
	require.NotNil(t, l)
	l.Info("test message", "key", "value")
}

func TestNewRunID(t *testing.T) {
	id1 := NewRunID()
	id2 := NewRunID()

	assert.NotEqual(t, id1, id2)
	assert.True(t, strings.HasPrefix(id1, "run_"))
}

func TestWithRunIDAndRunIDFrom(t *testing.T) {
	ctx := context.Background()
	ctx = WithRunID(ctx, "test-run-id")

	assert.Equal(t, "test-run-id", RunIDFrom(ctx))
}

func TestRunIDFromEmpty(t *testing.T) {
	assert.Equal(t, "", RunIDFrom(context.Background()))
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx := WithRunID(context.Background(), "test-id")
	FromContext(ctx, base).Info("test message")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "test-id", entry["run_id"])

	buf.Reset()
	FromContext(context.Background(), base).Info("test message")
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	_, exists := entry["run_id"]
	assert.False(t, exists)
}

func TestElapsed(t *testing.T) {
	assert.Equal(t, "1500.000ms", Elapsed(1500*time.Millisecond))
}

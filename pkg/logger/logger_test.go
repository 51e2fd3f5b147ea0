package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

func readLog(t *testing.T, l Logger, path string) string {
	t.Helper()
	_ = l.Sync()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestNew(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name   string
		config *Config
	}{
		{name: "nil config", config: nil},
		{name: "console", config: &Config{Level: InfoLevel, Console: true}},
		{name: "file", config: &Config{File: filepath.Join(dir, "plain.log")}},
		{name: "rotate", config: &Config{Rotate: &RotateConfig{Filename: filepath.Join(dir, "rotate.log")}}},
		{name: "sampling", config: &Config{Console: true, Sampling: &SamplingConfig{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.config)
			require.NoError(t, err)
			require.NotNil(t, l)
			l.Info("hello")
		})
	}
}

func TestFileOutputJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	l, err := NewWithOptions(WithFileOutput(path), WithFormat(JSONFormat))
	require.NoError(t, err)

	l.With(zap.String("room_id", "quick-call-42")).Info("user joined", zap.String("user_id", "user_a"))

	out := readLog(t, l, path)
	assert.Contains(t, out, `"msg":"user joined"`)
	assert.Contains(t, out, `"room_id":"quick-call-42"`)
	assert.Contains(t, out, `"user_id":"user_a"`)
}

func TestSetLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "level.log")
	l, err := NewWithOptions(WithFileOutput(path), WithLevel(WarnLevel))
	require.NoError(t, err)
	assert.Equal(t, WarnLevel, l.Level())

	l.Info("dropped")
	l.SetLevel(DebugLevel)
	assert.Equal(t, DebugLevel, l.Level())
	l.Debug("kept")

	out := readLog(t, l, path)
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "kept")
}

func TestContextFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctx.log")
	l, err := NewWithOptions(WithFileOutput(path))
	require.NoError(t, err)

	ctx := WithUserID(WithTraceID(context.Background(), "abc123"), "user_b")
	l.InfoContext(ctx, "plain trace")

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	l.WarnContext(trace.ContextWithSpanContext(context.Background(), sc), "otel trace")

	out := readLog(t, l, path)
	assert.Contains(t, out, `"trace_id":"abc123"`)
	assert.Contains(t, out, `"user_id":"user_b"`)
	assert.Contains(t, out, `"trace_id":"4bf92f3577b34da6a3ce929d0e0e4736"`)
	assert.Contains(t, out, `"span_id":"00f067aa0ba902b7"`)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"", InfoLevel, false},
		{"warning", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"verbose", InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.want.String(), got.String())
	}
}

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerTo_Levels(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  zerolog.Level
	}{
		{name: "debug", level: "debug", want: zerolog.DebugLevel},
		{name: "upper case", level: "WARN", want: zerolog.WarnLevel},
		{name: "empty falls back to info", level: "", want: zerolog.InfoLevel},
		{name: "garbage falls back to info", level: "loud", want: zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := NewLoggerTo(Config{Level: tt.level, Format: FormatJSON}, &buf)
			assert.Equal(t, tt.want, l.GetLevel())
		})
	}
}

func TestNewLoggerTo_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := ComponentLogger(NewLoggerTo(Config{Level: "info", Format: FormatJSON}, &buf), "packager")
	l.Info().Str("archive", "a.zip").Msg("archive written")

	var event map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	assert.Equal(t, "packager", event["component"])
	assert.Equal(t, "a.zip", event["archive"])
	assert.Equal(t, "archive written", event["message"])
	assert.Contains(t, event, "time")
}

func TestNewLoggerTo_Console(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(Config{Level: "info", Format: FormatConsole}, &buf)
	l.Info().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.NotContains(t, buf.String(), `"message"`)
}

func TestTraceIDContext(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(Config{Level: "info", Format: FormatJSON}, &buf)
	ctx := l.WithContext(context.Background())

	assert.Empty(t, TraceIDFromContext(ctx))
	generated := GetOrGenerateTraceID(ctx)
	assert.Len(t, generated, 26, "ULIDs are 26 characters")

	ctx = ContextWithTraceID(ctx, generated)
	assert.Equal(t, generated, TraceIDFromContext(ctx))
	assert.Equal(t, generated, GetOrGenerateTraceID(ctx))

	FromContext(ctx).Info().Msg("traced")
	assert.Contains(t, buf.String(), generated)
}

func TestFromContext_NoLogger(t *testing.T) {
	l := FromContext(context.Background())
	require.NotNil(t, l)
	l.Info().Msg("dropped")
}

//go:build unit

package log

import (
	"bytes"
	"context"
	"errors"
	stdlog "log"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var stdLoggerOutputMu sync.Mutex

func withStdLoggerOutput(t *testing.T, buf *bytes.Buffer) {
	t.Helper()

	stdLoggerOutputMu.Lock()

	originalOutput := stdlog.Writer()
	originalFlags := stdlog.Flags()

	stdlog.SetOutput(buf)
	stdlog.SetFlags(0)

	t.Cleanup(func() {
		stdlog.SetOutput(originalOutput)
		stdlog.SetFlags(originalFlags)
		stdLoggerOutputMu.Unlock()
	})
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		input       string
		expected    Level
		expectError bool
	}{
		{name: "error", input: "error", expected: LevelError},
		{name: "warn", input: "warn", expected: LevelWarn},
		{name: "warning alias", input: "warning", expected: LevelWarn},
		{name: "info", input: "info", expected: LevelInfo},
		{name: "debug", input: "debug", expected: LevelDebug},
		{name: "mixed case with spaces", input: " DeBuG ", expected: LevelDebug},
		{name: "invalid", input: "verbose", expectError: true},
		{name: "empty", input: "", expectError: true},
		{name: "numeric", input: "2", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			level, err := ParseLevel(tt.input)
			if tt.expectError {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestLevelString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "error", LevelError.String())
	assert.Equal(t, "warn", LevelWarn.String())
	assert.Equal(t, "info", LevelInfo.String())
	assert.Equal(t, "debug", LevelDebug.String())
	assert.Equal(t, "unknown", Level(42).String())
}

func TestFieldConstructors(t *testing.T) {
	t.Parallel()

	err := errors.New("boom")

	assert.Equal(t, Field{Key: "channel", Value: "tag"}, String("channel", "tag"))
	assert.Equal(t, Field{Key: "attempt", Value: 2}, Int("attempt", 2))
	assert.Equal(t, Field{Key: "ts", Value: int64(7)}, Int64("ts", 7))
	assert.Equal(t, Field{Key: "queued", Value: true}, Bool("queued", true))
	assert.Equal(t, Field{Key: "error", Value: err}, Err(err))
	assert.Equal(t, Field{Key: "event_name", Value: "Lead"}, EventName("Lead"))
	assert.Equal(t, Field{Key: "channel", Value: "conversions_api"}, Channel("conversions_api"))
	assert.Equal(t, Field{Key: "upstream", Value: "measurement"}, Upstream("measurement"))
}

func TestNopLogger(t *testing.T) {
	t.Parallel()

	logger := NewNop()

	assert.NotPanics(t, func() {
		logger.Log(context.Background(), LevelError, "dropped")
	})
	assert.False(t, logger.Enabled(LevelError))
	assert.Same(t, logger, logger.With(String("k", "v")))
	assert.Same(t, logger, logger.WithGroup("g"))
	assert.NoError(t, logger.Sync(context.Background()))
	assert.NotNil(t, OrNop(nil))
	assert.Same(t, logger, OrNop(logger))
}

func TestGoLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	withStdLoggerOutput(t, &buf)

	logger := NewGoLogger(LevelWarn)

	logger.Log(context.Background(), LevelInfo, "suppressed")
	logger.Log(context.Background(), LevelWarn, "emitted", String("channel", "analytics_tag"))

	out := buf.String()
	assert.NotContains(t, out, "suppressed")
	assert.Contains(t, out, "WARN emitted channel=analytics_tag")
}

func TestGoLogger_SanitizesControlCharacters(t *testing.T) {
	var buf bytes.Buffer
	withStdLoggerOutput(t, &buf)

	logger := NewGoLogger(LevelDebug)
	logger.Log(context.Background(), LevelInfo, "line1\nFAKE ENTRY", String("event", "Lead\r\n"))

	out := strings.TrimSuffix(buf.String(), "\n")
	assert.NotContains(t, out, "\n")
	assert.Contains(t, out, `line1\nFAKE ENTRY`)
	assert.Contains(t, out, `event=Lead\r\n`)
}

func TestGoLogger_WithAndGroup(t *testing.T) {
	var buf bytes.Buffer
	withStdLoggerOutput(t, &buf)

	logger := NewGoLogger(LevelDebug).With(String("component", "queue")).WithGroup("drain")
	logger.Log(context.Background(), LevelDebug, "flushed", Int("items", 3))

	assert.Contains(t, buf.String(), "drain.component=queue drain.items=3")
}

func TestGoLogger_NilReceiver(t *testing.T) {
	t.Parallel()

	var logger *GoLogger

	assert.False(t, logger.Enabled(LevelError))
	assert.NotPanics(t, func() {
		logger.Log(context.Background(), LevelError, "nothing")
	})
	assert.IsType(t, &NopLogger{}, logger.With())
}

func TestBody(t *testing.T) {
	t.Parallel()

	assert.Equal(t, String("body", `{"error":"bad"}`), Body([]byte(`{"error":"bad"}`)))
	assert.Equal(t, String("body", `line\nforged`), Body([]byte("line\nforged")))

	long := Body([]byte(strings.Repeat("a", MaxBodyBytes+10)))
	assert.Len(t, long.Value, MaxBodyBytes+3)

	// A multi-byte rune straddling the limit is dropped whole.
	straddling := Body([]byte(strings.Repeat("a", MaxBodyBytes-1) + "é" + "tail"))
	value, ok := straddling.Value.(string)
	require.True(t, ok)
	assert.Equal(t, strings.Repeat("a", MaxBodyBytes-1)+"...", value)
}

func TestOrNop_TypedNil(t *testing.T) {
	t.Parallel()

	var typed *GoLogger

	assert.IsType(t, &NopLogger{}, OrNop(typed))
}

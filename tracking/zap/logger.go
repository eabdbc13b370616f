package zap

import (
	"context"
	"strings"
	"time"

	logpkg "github.com/LerianStudio/lib-tracking/tracking/log"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger writes log.Logger entries through zap.
type Logger struct {
	logger *zap.Logger
	level  zap.AtomicLevel
}

var _ logpkg.Logger = (*Logger)(nil)

var zapLevels = [...]zapcore.Level{
	logpkg.LevelError: zapcore.ErrorLevel,
	logpkg.LevelWarn:  zapcore.WarnLevel,
	logpkg.LevelInfo:  zapcore.InfoLevel,
	logpkg.LevelDebug: zapcore.DebugLevel,
}

// Event names, page urls and intercepted tag arguments come from the browser
// and reach messages verbatim.
var controlChars = strings.NewReplacer("\n", `\n`, "\r", `\r`, "\t", `\t`)

// NewFromCore wraps core, typically an observer core in tests.
func NewFromCore(core zapcore.Core) *Logger {
	return &Logger{logger: zap.New(core)}
}

func (l *Logger) underlying() *zap.Logger {
	if l == nil || l.logger == nil {
		return zap.NewNop()
	}

	return l.logger
}

// Log writes one entry. Entries logged under an active span carry its
// trace_id and span_id.
func (l *Logger) Log(ctx context.Context, level logpkg.Level, msg string, fields ...logpkg.Field) {
	entry := l.underlying().Check(toZapLevel(level), controlChars.Replace(msg))
	if entry == nil {
		return
	}

	zapFields := toZapFields(fields)

	if ctx != nil {
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			zapFields = append(zapFields,
				zap.String("trace_id", sc.TraceID().String()),
				zap.String("span_id", sc.SpanID().String()))
		}
	}

	entry.Write(zapFields...)
}

//nolint:ireturn
func (l *Logger) With(fields ...logpkg.Field) logpkg.Logger {
	return &Logger{logger: l.underlying().With(toZapFields(fields)...), level: l.Level()}
}

// WithGroup nests the fields of later entries under name.
//
//nolint:ireturn
func (l *Logger) WithGroup(name string) logpkg.Logger {
	return &Logger{logger: l.underlying().With(zap.Namespace(name)), level: l.Level()}
}

func (l *Logger) Enabled(level logpkg.Level) bool {
	return l.underlying().Core().Enabled(toZapLevel(level))
}

// Sync flushes buffered entries, giving up when ctx is done first.
func (l *Logger) Sync(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)

	go func() { done <- l.underlying().Sync() }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// Raw exposes the zap logger for libraries that take one directly.
func (l *Logger) Raw() *zap.Logger {
	return l.underlying()
}

// Level is the handle that changes the level at runtime. It is the zero
// AtomicLevel for loggers built with NewFromCore.
func (l *Logger) Level() zap.AtomicLevel {
	if l == nil {
		return zap.AtomicLevel{}
	}

	return l.level
}

func toZapLevel(level logpkg.Level) zapcore.Level {
	if int(level) < len(zapLevels) {
		return zapLevels[level]
	}

	return zapcore.InfoLevel
}

func toZapFields(fields []logpkg.Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields))

	for _, f := range fields {
		switch v := f.Value.(type) {
		case string:
			out = append(out, zap.String(f.Key, controlChars.Replace(v)))
		case error:
			if f.Key == "error" {
				out = append(out, zap.Error(v))
			} else {
				out = append(out, zap.NamedError(f.Key, v))
			}
		case time.Duration:
			out = append(out, zap.Duration(f.Key, v))
		default:
			out = append(out, zap.Any(f.Key, v))
		}
	}

	return out
}

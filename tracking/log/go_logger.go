package log

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// logControlCharReplacer escapes control characters that can be used for log injection (CWE-117).
var logControlCharReplacer = strings.NewReplacer(
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

func sanitizeLogString(s string) string {
	return logControlCharReplacer.Replace(s)
}

// GoLogger is the Go built-in (log) implementation of Logger.
//
// It is the fallback used by command-line tools and tests when zap is not wired.
// All string values are sanitized to prevent log injection (CWE-117).
type GoLogger struct {
	Level  Level
	fields []Field
	group  string
}

// Compile-time assertion: *GoLogger implements Logger.
var _ Logger = (*GoLogger)(nil)

// NewGoLogger creates a GoLogger emitting entries up to level.
func NewGoLogger(level Level) *GoLogger {
	return &GoLogger{Level: level}
}

// Enabled reports whether level would be emitted.
func (l *GoLogger) Enabled(level Level) bool {
	if l == nil {
		return false
	}

	return l.Level >= level
}

// Log writes a single line: LEVEL msg key=value...
func (l *GoLogger) Log(_ context.Context, level Level, msg string, fields ...Field) {
	if !l.Enabled(level) {
		return
	}

	log.Print(l.format(level, msg, fields))
}

// With returns a child logger carrying fields on every entry.
//
//nolint:ireturn
func (l *GoLogger) With(fields ...Field) Logger {
	if l == nil {
		return &NopLogger{}
	}

	merged := make([]Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)

	return &GoLogger{Level: l.Level, fields: merged, group: l.group}
}

// WithGroup returns a child logger whose subsequent field keys are prefixed with name.
//
//nolint:ireturn
func (l *GoLogger) WithGroup(name string) Logger {
	if l == nil {
		return &NopLogger{}
	}

	group := name
	if l.group != "" {
		group = l.group + "." + name
	}

	return &GoLogger{Level: l.Level, fields: l.fields, group: group}
}

// Sync is a no-op: the standard logger writes synchronously.
func (l *GoLogger) Sync(_ context.Context) error { return nil }

func (l *GoLogger) format(level Level, msg string, fields []Field) string {
	var b strings.Builder

	b.WriteString(strings.ToUpper(level.String()))
	b.WriteByte(' ')
	b.WriteString(sanitizeLogString(msg))

	for _, f := range append(append([]Field{}, l.fields...), fields...) {
		key := f.Key
		if l.group != "" {
			key = l.group + "." + key
		}

		b.WriteByte(' ')
		b.WriteString(sanitizeLogString(key))
		b.WriteByte('=')
		b.WriteString(sanitizeLogString(fmt.Sprint(f.Value)))
	}

	return b.String()
}

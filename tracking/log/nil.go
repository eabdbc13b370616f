package log

import (
	"context"

	"github.com/LerianStudio/lib-tracking/tracking/internal/nilcheck"
)

// NopLogger discards every entry.
type NopLogger struct{}

var _ Logger = (*NopLogger)(nil)

// NewNop returns a Logger that discards every entry.
//
//nolint:ireturn
func NewNop() Logger { return &NopLogger{} }

func (*NopLogger) Log(context.Context, Level, string, ...Field) {}

func (*NopLogger) Enabled(Level) bool { return false }

func (*NopLogger) Sync(context.Context) error { return nil }

//nolint:ireturn
func (l *NopLogger) With(...Field) Logger { return l }

//nolint:ireturn
func (l *NopLogger) WithGroup(string) Logger { return l }

// OrNop returns logger unless it is nil or a typed nil, in which case a
// NopLogger stands in.
//
//nolint:ireturn
func OrNop(logger Logger) Logger {
	if nilcheck.Interface(logger) {
		return &NopLogger{}
	}

	return logger
}

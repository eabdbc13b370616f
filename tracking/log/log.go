package log

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Logger is implemented by every logging backend the tracking components
// write through.
type Logger interface {
	Log(ctx context.Context, level Level, msg string, fields ...Field)
	With(fields ...Field) Logger
	WithGroup(name string) Logger
	Enabled(level Level) bool
	Sync(ctx context.Context) error
}

// Level is the severity of an entry. A logger set to a level emits it and
// every more severe one, so LevelError (the zero value) is the quietest.
type Level uint8

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

var levelNames = [...]string{
	LevelError: "error",
	LevelWarn:  "warn",
	LevelInfo:  "info",
	LevelDebug: "debug",
}

func (level Level) String() string {
	if int(level) < len(levelNames) {
		return levelNames[level]
	}

	return "unknown"
}

// ParseLevel reads LOG_LEVEL style names. "warning" is accepted for warn.
func ParseLevel(name string) (Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "warning" {
		return LevelWarn, nil
	}

	for level, known := range levelNames {
		if known == name {
			return Level(level), nil
		}
	}

	return LevelError, fmt.Errorf("unknown log level %q", name)
}

// Field is one key/value pair of an entry.
type Field struct {
	Key   string
	Value any
}

// Any attaches an arbitrary value. Event payloads carry user data and must be
// passed through security.RedactParams first.
func Any(key string, value any) Field { return Field{Key: key, Value: value} }

func String(key, value string) Field { return Field{Key: key, Value: value} }

func Int(key string, value int) Field { return Field{Key: key, Value: value} }

func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

func Duration(key string, value time.Duration) Field { return Field{Key: key, Value: value} }

// Err attaches err under the "error" key.
func Err(err error) Field { return Field{Key: "error", Value: err} }

// Keys shared by the tracking pipeline so every backend indexes the same names.
const (
	KeyEventName = "event_name"
	KeyChannel   = "channel"
	KeyUpstream  = "upstream"
)

// EventName tags an entry with the event it concerns.
func EventName(name string) Field { return String(KeyEventName, name) }

// Channel tags an entry with the delivery channel.
func Channel(name string) Field { return String(KeyChannel, name) }

// Upstream tags an entry with the relay upstream.
func Upstream(name string) Field { return String(KeyUpstream, name) }

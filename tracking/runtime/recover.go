package runtime

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/LerianStudio/lib-tracking/tracking/log"
)

// Logger is the part of log.Logger the recovery helpers need.
type Logger interface {
	Log(ctx context.Context, level log.Level, msg string, fields ...log.Field)
}

const maxStackLen = 4096

// RecoverWithPolicyAndContext logs, counts and reports a panic of the
// deferring goroutine, then re-panics when policy is CrashProcess:
//
//	defer runtime.RecoverWithPolicyAndContext(ctx, logger, "pending", "drain", runtime.KeepRunning)
func RecoverWithPolicyAndContext(ctx context.Context, logger Logger, component, name string, policy PanicPolicy) {
	if r := recover(); r != nil {
		handle(ctx, logger, component, name, r)

		if policy == CrashProcess {
			panic(r)
		}
	}
}

// HandlePanicValue handles a value some other mechanism already recovered,
// such as the errgroup or the server start wrapper. Nil values are ignored.
func HandlePanicValue(ctx context.Context, logger Logger, panicValue any, component, name string) {
	if panicValue != nil {
		handle(ctx, logger, component, name, panicValue)
	}
}

func handle(ctx context.Context, logger Logger, component, name string, value any) {
	if ctx == nil {
		ctx = context.Background()
	}

	stack := trimStack(debug.Stack())

	logPanic(ctx, logger, name, value, stack)
	recordPanicMetric(ctx, component, name)
	reportPanic(ctx, component, name, value, stack)
}

func logPanic(ctx context.Context, logger Logger, name string, value any, stack string) {
	if logger == nil {
		return
	}

	logger.Log(ctx, log.LevelError, "panic recovered",
		log.String("source", name),
		log.String("panic_value", fmt.Sprint(value)),
		log.String("stack_trace", stack))
}

func trimStack(stack []byte) string {
	if len(stack) > maxStackLen {
		return string(stack[:maxStackLen]) + "\n...[truncated]"
	}

	return string(stack)
}

package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrPanic wraps every panic handed to a PanicReporter.
var ErrPanic = errors.New("panic recovered")

// PanicReport describes one recovered panic.
type PanicReport struct {
	// Component is the tracking subsystem ("pending", "gateway", ...) and
	// Goroutine the task within it.
	Component string
	Goroutine string
	Err       error
	Stack     string
}

// PanicReporter forwards recovered panics to an error tracking sink.
type PanicReporter interface {
	ReportPanic(ctx context.Context, report PanicReport)
}

type reporterHolder struct{ reporter PanicReporter }

var panicReporter atomic.Pointer[reporterHolder]

// SetPanicReporter installs the process wide reporter. Nil disables reporting.
func SetPanicReporter(reporter PanicReporter) {
	if reporter == nil {
		panicReporter.Store(nil)
		return
	}

	panicReporter.Store(&reporterHolder{reporter: reporter})
}

// CurrentPanicReporter returns the installed reporter, or nil.
func CurrentPanicReporter() PanicReporter {
	if holder := panicReporter.Load(); holder != nil {
		return holder.reporter
	}

	return nil
}

func reportPanic(ctx context.Context, component, goroutine string, value any, stack string) {
	reporter := CurrentPanicReporter()
	if reporter == nil {
		return
	}

	reporter.ReportPanic(ctx, PanicReport{
		Component: component,
		Goroutine: goroutine,
		Err:       fmt.Errorf("%w: %v", ErrPanic, value),
		Stack:     stack,
	})
}

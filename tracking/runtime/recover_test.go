//go:build unit

package runtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/LerianStudio/lib-tracking/tracking/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type testLogger struct {
	mu       sync.Mutex
	messages []string
	fields   [][]log.Field
}

func (logger *testLogger) Log(_ context.Context, _ log.Level, msg string, fields ...log.Field) {
	logger.mu.Lock()
	defer logger.mu.Unlock()

	logger.messages = append(logger.messages, msg)
	logger.fields = append(logger.fields, fields)
}

func (logger *testLogger) panicCount() int {
	logger.mu.Lock()
	defer logger.mu.Unlock()

	count := 0

	for _, msg := range logger.messages {
		if msg == "panic recovered" {
			count++
		}
	}

	return count
}

type captureReporter struct {
	mu      sync.Mutex
	reports []PanicReport
}

func (r *captureReporter) ReportPanic(_ context.Context, report PanicReport) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.reports = append(r.reports, report)
}

func TestRecoverWithPolicyAndContext_KeepRunning(t *testing.T) {
	t.Parallel()

	logger := &testLogger{}

	assert.NotPanics(t, func() {
		defer RecoverWithPolicyAndContext(context.Background(), logger, "channel", "tag.dispatch", KeepRunning)

		panic("third party exploded")
	})

	require.Equal(t, 1, logger.panicCount())
	assert.Contains(t, logger.fields[0], log.String("source", "tag.dispatch"))
	assert.Contains(t, logger.fields[0], log.String("panic_value", "third party exploded"))
}

func TestRecoverWithPolicyAndContext_NilLogger(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() {
		defer RecoverWithPolicyAndContext(context.Background(), nil, "tracking", "nil-logger", KeepRunning)

		panic("boom")
	})
}

func TestRecoverWithPolicyAndContext_CrashRePanics(t *testing.T) {
	t.Parallel()

	logger := &testLogger{}

	assert.PanicsWithValue(t, "fatal", func() {
		defer RecoverWithPolicyAndContext(context.Background(), logger, "tracking", "critical", CrashProcess)

		panic("fatal")
	})
	assert.Equal(t, 1, logger.panicCount())
}

func TestRecoverFunctions_NoPanic(t *testing.T) {
	t.Parallel()

	logger := &testLogger{}

	func() {
		defer RecoverWithPolicyAndContext(context.Background(), logger, "tracking", "quiet", CrashProcess)
	}()

	assert.Equal(t, 0, logger.panicCount())
}

func TestSafeGo_RecoversPanic(t *testing.T) {
	t.Parallel()

	logger := &testLogger{}

	SafeGo(logger, "mirror", KeepRunning, func() {
		panic("mirror failed")
	})

	assert.Eventually(t, func() bool { return logger.panicCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSafeGoWithContextAndComponent_PassesContext(t *testing.T) {
	t.Parallel()

	type ctxKey struct{}

	ctx := context.WithValue(context.Background(), ctxKey{}, "value")
	got := make(chan any, 1)

	SafeGoWithContextAndComponent(ctx, &testLogger{}, "pending", "drain", KeepRunning, func(inner context.Context) {
		got <- inner.Value(ctxKey{})
	})

	select {
	case v := <-got:
		assert.Equal(t, "value", v)
	case <-time.After(time.Second):
		t.Fatal("goroutine did not run")
	}
}

func TestHandlePanicValue(t *testing.T) {
	t.Parallel()

	logger := &testLogger{}

	HandlePanicValue(context.Background(), logger, nil, "tracking", "noop")
	assert.Equal(t, 0, logger.panicCount())

	HandlePanicValue(context.Background(), logger, "recovered elsewhere", "tracking", "errgroup")
	assert.Equal(t, 1, logger.panicCount())

	assert.NotPanics(t, func() {
		HandlePanicValue(context.Background(), nil, "no logger", "tracking", "errgroup")
	})
}

func TestPanicPolicyString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "keep_running", KeepRunning.String())
	assert.Equal(t, "crash_process", CrashProcess.String())
	assert.Equal(t, "unknown", PanicPolicy(7).String())
}

// The tests below mutate package globals and must not run in parallel.

func TestPanicReporterReceivesPanic(t *testing.T) {
	reporter := &captureReporter{}
	SetPanicReporter(reporter)
	t.Cleanup(func() { SetPanicReporter(nil) })

	assert.Same(t, reporter, CurrentPanicReporter())

	HandlePanicValue(context.Background(), &testLogger{}, "reported", "gateway", "mirror")

	require.Len(t, reporter.reports, 1)

	report := reporter.reports[0]
	assert.ErrorIs(t, report.Err, ErrPanic)
	assert.Contains(t, report.Err.Error(), "reported")
	assert.Equal(t, "gateway", report.Component)
	assert.Equal(t, "mirror", report.Goroutine)
	assert.NotEmpty(t, report.Stack)

	SetPanicReporter(nil)
	assert.Nil(t, CurrentPanicReporter())

	HandlePanicValue(context.Background(), &testLogger{}, "unreported", "gateway", "mirror")
	assert.Len(t, reporter.reports, 1)
}

func TestTrimStack(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", trimStack([]byte("short")))

	long := trimStack(make([]byte, maxStackLen+100))
	assert.Len(t, long, maxStackLen+len("\n...[truncated]"))
}

func TestPanicMetricIsRecorded(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	require.NoError(t, InitPanicMetrics(provider))
	t.Cleanup(ResetPanicMetrics)

	HandlePanicValue(context.Background(), &testLogger{}, "counted", "pending", "drain")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	require.Len(t, rm.ScopeMetrics, 1)
	require.Len(t, rm.ScopeMetrics[0].Metrics, 1)

	sum, ok := rm.ScopeMetrics[0].Metrics[0].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(1), sum.DataPoints[0].Value)
}

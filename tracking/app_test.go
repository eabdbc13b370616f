//go:build unit

package tracking

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/LerianStudio/lib-tracking/tracking/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubApp struct {
	err  error
	runs atomic.Int32
}

func (s *stubApp) Run(_ *Launcher) error {
	s.runs.Add(1)

	return s.err
}

func TestLauncher_Add(t *testing.T) {
	t.Parallel()

	t.Run("nil_receiver", func(t *testing.T) {
		t.Parallel()

		var l *Launcher
		assert.ErrorIs(t, l.Add("app", &stubApp{}), ErrNilLauncher)
	})

	t.Run("nil_app", func(t *testing.T) {
		t.Parallel()

		assert.ErrorIs(t, NewLauncher().Add("app", nil), ErrNilApp)
	})

	t.Run("typed_nil_app", func(t *testing.T) {
		t.Parallel()

		var app *stubApp
		assert.ErrorIs(t, NewLauncher().Add("app", app), ErrNilApp)
	})

	t.Run("whitespace_name", func(t *testing.T) {
		t.Parallel()

		assert.ErrorIs(t, NewLauncher().Add("  ", &stubApp{}), ErrEmptyApp)
	})

	t.Run("success", func(t *testing.T) {
		t.Parallel()

		assert.NoError(t, NewLauncher().Add("relay", &stubApp{}))
	})
}

func TestRunAppOption(t *testing.T) {
	t.Parallel()

	l := NewLauncher(RunApp("relay", &stubApp{}))
	assert.Empty(t, l.configErrors)

	l = NewLauncher(WithLauncherLogger(log.NewNop()), RunApp("relay", nil))
	require.Len(t, l.configErrors, 1)
	assert.ErrorIs(t, l.RunWithError(), ErrConfigFailed)
}

func TestRunWithError(t *testing.T) {
	t.Parallel()

	t.Run("nil_logger", func(t *testing.T) {
		t.Parallel()

		assert.ErrorIs(t, NewLauncher().RunWithError(), ErrLoggerNil)
	})

	t.Run("no_apps", func(t *testing.T) {
		t.Parallel()

		assert.NoError(t, NewLauncher(WithLauncherLogger(log.NewNop())).RunWithError())
	})

	t.Run("runs_every_app_and_joins_errors", func(t *testing.T) {
		t.Parallel()

		sentinel := errors.New("listen failed")
		ok := &stubApp{}
		failing := &stubApp{err: sentinel}

		l := NewLauncher(WithLauncherLogger(log.NewNop()), RunApp("ok", ok), RunApp("failing", failing))

		err := l.RunWithError()
		require.ErrorIs(t, err, sentinel)
		assert.Contains(t, err.Error(), `app "failing"`)
		assert.Equal(t, int32(1), ok.runs.Load())
		assert.Equal(t, int32(1), failing.runs.Load())
	})

	t.Run("panicking_app_does_not_block", func(t *testing.T) {
		t.Parallel()

		l := NewLauncher(WithLauncherLogger(log.NewNop()),
			RunApp("panics", AppFunc(func(*Launcher) error { panic("boom") })))

		assert.NoError(t, l.RunWithError())
	})
}

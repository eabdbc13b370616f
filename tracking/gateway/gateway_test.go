//go:build unit

package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/LerianStudio/lib-tracking/tracking/channel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMirror struct {
	mu      sync.Mutex
	calls   []Call
	release chan struct{}
	result  bool
}

func (m *recordingMirror) Mirror(_ context.Context, call Call) bool {
	if m.release != nil {
		<-m.release
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, call)

	return m.result
}

func (m *recordingMirror) snapshot() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Call(nil), m.calls...)
}

type originalTag struct {
	mu    sync.Mutex
	calls [][]any
}

func (o *originalTag) fn(args ...any) any {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.calls = append(o.calls, args)

	return "original-result"
}

func (o *originalTag) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	return len(o.calls)
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Attempts = 5
	cfg.Interval = 5 * time.Millisecond

	return cfg
}

func installedGateway(t *testing.T, mirror Mirror) (*Gateway, *channel.Registry, *originalTag) {
	t.Helper()

	registry := channel.NewRegistry()
	original := &originalTag{}
	require.NoError(t, registry.Install(channel.ChannelTag, original.fn))

	g, err := New(registry, mirror, fastConfig())
	require.NoError(t, err)
	require.NoError(t, g.Install(context.Background()))
	t.Cleanup(func() { _ = g.Teardown() })

	return g, registry, original
}

func call(t *testing.T, registry *channel.Registry, args ...any) any {
	t.Helper()

	fn, ok := registry.Lookup(channel.ChannelTag)
	require.True(t, ok)

	return fn(args...)
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, &recordingMirror{}, DefaultConfig())
	require.ErrorIs(t, err, ErrRegistryRequired)

	_, err = New(channel.NewRegistry(), nil, DefaultConfig())
	require.ErrorIs(t, err, ErrMirrorRequired)

	var nilFunc MirrorFunc

	_, err = New(channel.NewRegistry(), nilFunc, DefaultConfig())
	require.ErrorIs(t, err, ErrMirrorRequired)
}

func TestInstall_WaitsForSourceChannel(t *testing.T) {
	t.Parallel()

	registry := channel.NewRegistry()
	original := &originalTag{}

	cfg := fastConfig()
	cfg.Attempts = 200

	g, err := New(registry, &recordingMirror{result: true}, cfg)
	require.NoError(t, err)

	done := make(chan error, 1)

	go func() { done <- g.Install(context.Background()) }()

	require.Eventually(t, func() bool { return g.State() == StateInstalling }, time.Second, time.Millisecond)
	require.NoError(t, registry.Install(channel.ChannelTag, original.fn))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("install did not finish")
	}

	assert.Equal(t, StateInstalled, g.State())
	assert.True(t, registry.Wrapped(channel.ChannelTag))
	require.NoError(t, g.Install(context.Background()))
}

func TestInstall_ExhaustedIsPermanent(t *testing.T) {
	t.Parallel()

	registry := channel.NewRegistry()

	g, err := New(registry, &recordingMirror{}, fastConfig())
	require.NoError(t, err)

	err = g.Install(context.Background())
	require.ErrorIs(t, err, ErrReadinessExhausted)
	assert.Equal(t, StateUninstalled, g.State())

	require.NoError(t, registry.Install(channel.ChannelTag, (&originalTag{}).fn))

	err = g.Install(context.Background())
	require.ErrorIs(t, err, ErrReadinessExhausted)
	assert.False(t, registry.Wrapped(channel.ChannelTag))
}

func TestInstall_ContextCancelledIsNotPermanent(t *testing.T) {
	t.Parallel()

	registry := channel.NewRegistry()

	cfg := fastConfig()
	cfg.Attempts = 1000

	g, err := New(registry, &recordingMirror{}, cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = g.Install(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateUninstalled, g.State())

	require.NoError(t, registry.Install(channel.ChannelTag, (&originalTag{}).fn))
	require.NoError(t, g.Install(context.Background()))
	assert.Equal(t, StateInstalled, g.State())
}

func TestInstall_FailsWhenAlreadyWrapped(t *testing.T) {
	t.Parallel()

	registry := channel.NewRegistry()
	require.NoError(t, registry.Install(channel.ChannelTag, (&originalTag{}).fn))

	_, err := registry.Wrap(channel.ChannelTag, func(original channel.DispatchFunc) channel.DispatchFunc { return original })
	require.NoError(t, err)

	g, err := New(registry, &recordingMirror{}, fastConfig())
	require.NoError(t, err)

	err = g.Install(context.Background())
	require.ErrorIs(t, err, channel.ErrAlreadyWrapped)
	assert.Equal(t, StateUninstalled, g.State())
}

func TestWrapper_MirrorsWithoutBlocking(t *testing.T) {
	t.Parallel()

	mirror := &recordingMirror{release: make(chan struct{}), result: false}
	_, registry, original := installedGateway(t, mirror)

	returned := make(chan any, 1)

	go func() {
		fn, _ := registry.Lookup(channel.ChannelTag)
		returned <- fn(channel.CommandTrack, "Lead", map[string]any{"value": 150})
	}()

	select {
	case result := <-returned:
		assert.Equal(t, "original-result", result)
	case <-time.After(time.Second):
		t.Fatal("tag call blocked on the mirror")
	}

	assert.Equal(t, 1, original.count())
	assert.Empty(t, mirror.snapshot())

	close(mirror.release)

	require.Eventually(t, func() bool { return len(mirror.snapshot()) == 1 }, time.Second, time.Millisecond)

	mirrored := mirror.snapshot()[0]
	assert.Equal(t, "generate_lead", mirrored.EventName)
	assert.Equal(t, "Lead", mirrored.SourceName)
	assert.Equal(t, map[string]any{"value": 150}, mirrored.Params)
}

func TestWrapper_TranslatesNamesAndEventID(t *testing.T) {
	t.Parallel()

	mirror := &recordingMirror{result: true}
	_, registry, _ := installedGateway(t, mirror)

	call(t, registry, channel.CommandTrack, "PageView", nil, map[string]any{"eventID": "evt-1"})
	call(t, registry, channel.CommandTrackCustom, "WhatsAppClick", map[string]any{"cta": "hero"},
		&channel.CallOptions{EventID: "evt-2"})

	require.Eventually(t, func() bool { return len(mirror.snapshot()) == 2 }, time.Second, time.Millisecond)

	byName := map[string]Call{}
	for _, c := range mirror.snapshot() {
		byName[c.EventName] = c
	}

	require.Contains(t, byName, "page_view")
	assert.Equal(t, "evt-1", byName["page_view"].EventID)
	assert.Empty(t, byName["page_view"].Params)

	require.Contains(t, byName, "WhatsAppClick")
	assert.Equal(t, "evt-2", byName["WhatsAppClick"].EventID)
	assert.Equal(t, channel.CommandTrackCustom, byName["WhatsAppClick"].Command)
}

func TestWrapper_SkipsSelfOriginatedAndMalformedCalls(t *testing.T) {
	t.Parallel()

	mirror := &recordingMirror{result: true}
	_, registry, original := installedGateway(t, mirror)

	assert.Equal(t, "original-result", call(t, registry, channel.CommandTrack, "Lead", map[string]any{},
		channel.CallOptions{EventID: "evt-1", Origin: channel.OriginTracker}))
	assert.Equal(t, "original-result", call(t, registry, "init", "123456"))
	assert.Equal(t, "original-result", call(t, registry, channel.CommandTrack))
	assert.Equal(t, "original-result", call(t, registry, channel.CommandTrack, 42))
	assert.Equal(t, "original-result", call(t, registry, channel.CommandTrack, "Lead", "not-a-map"))
	assert.Equal(t, "original-result", call(t, registry, channel.CommandTrack, "Lead", nil, 7))

	assert.Equal(t, 6, original.count())

	call(t, registry, channel.CommandTrack, "Contact")
	require.Eventually(t, func() bool { return len(mirror.snapshot()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, "contact", mirror.snapshot()[0].EventName)
}

func TestTeardown_RestoresOriginal(t *testing.T) {
	t.Parallel()

	mirror := &recordingMirror{result: true}
	g, registry, original := installedGateway(t, mirror)

	require.NoError(t, g.Teardown())
	assert.Equal(t, StateUninstalled, g.State())
	assert.False(t, registry.Wrapped(channel.ChannelTag))

	call(t, registry, channel.CommandTrack, "Lead")
	assert.Equal(t, 1, original.count())

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, mirror.snapshot())

	require.NoError(t, g.Teardown())
	require.NoError(t, g.Install(context.Background()))
	assert.True(t, registry.Wrapped(channel.ChannelTag))
}

func TestTeardown_AfterRegistryTeardown(t *testing.T) {
	t.Parallel()

	g, registry, _ := installedGateway(t, &recordingMirror{})

	assert.True(t, registry.Teardown(channel.ChannelTag))
	require.NoError(t, g.Teardown())
	assert.Equal(t, StateUninstalled, g.State())
}

func TestParseCall(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []any
		outcome parseOutcome
		wantErr bool
	}{
		{name: "standard", args: []any{"track", "Lead"}, outcome: outcomeMirror},
		{name: "custom with params", args: []any{"trackCustom", "Click", map[string]any{"a": 1}}, outcome: outcomeMirror},
		{name: "other command", args: []any{"init", "123"}, outcome: outcomeIgnored},
		{name: "too few args", args: []any{"track"}, wantErr: true},
		{name: "command not string", args: []any{1, "Lead"}, wantErr: true},
		{name: "empty name", args: []any{"track", ""}, wantErr: true},
		{name: "bad options", args: []any{"track", "Lead", nil, "x"}, wantErr: true},
		{name: "tracker origin", args: []any{"track", "Lead", nil, channel.CallOptions{Origin: channel.OriginTracker}}, outcome: outcomeSelfOriginated},
		{name: "nil options pointer", args: []any{"track", "Lead", nil, (*channel.CallOptions)(nil)}, outcome: outcomeMirror},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, outcome, err := parseCall(tt.args)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrMalformedCall)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.outcome, outcome)
		})
	}
}

func TestParseCall_ParamsAreCopied(t *testing.T) {
	t.Parallel()

	params := map[string]any{"value": 1}

	parsed, _, err := parseCall([]any{"track", "Lead", params})
	require.NoError(t, err)

	params["value"] = 2
	assert.Equal(t, 1, parsed.Params["value"])
}

func TestState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "uninstalled", StateUninstalled.String())
	assert.Equal(t, "installing", StateInstalling.String())
	assert.Equal(t, "installed", StateInstalled.String())
	assert.Equal(t, "unknown", State(9).String())
}

func TestGateway_NilReceiver(t *testing.T) {
	t.Parallel()

	var g *Gateway

	assert.Equal(t, StateUninstalled, g.State())
	assert.ErrorIs(t, g.Install(context.Background()), ErrGatewayRequired)
	assert.ErrorIs(t, g.Teardown(), ErrGatewayRequired)
}

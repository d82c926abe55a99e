package diag

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/danielpatrickdp/liveweb-controlplane/internal/config"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/controlplane"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/gate"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/preset"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/signals"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// #region mock
type mockBackend struct {
	status   controlplane.Status
	report   preset.SwitchReport
	events   Events
	err      error
	lastReq  preset.Request
	lastOver Override
}

func (m *mockBackend) Status(context.Context) (controlplane.Status, error) {
	return m.status, m.err
}

func (m *mockBackend) RequestPreset(_ context.Context, req preset.Request) (preset.SwitchReport, error) {
	m.lastReq = req
	return m.report, m.err
}

func (m *mockBackend) SetTestOverride(_ context.Context, o Override) (controlplane.Status, error) {
	m.lastOver = o
	return m.status, m.err
}

func (m *mockBackend) RecentEvents(context.Context) (Events, error) {
	return m.events, m.err
}

// #endregion mock

func dial(t *testing.T, backend Backend) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewServer(backend, zerolog.Nop())
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	c, err := NewClient("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// #region client-tests
func TestStatusRoundTrip(t *testing.T) {
	m := &mockBackend{status: controlplane.Status{
		At:         t0,
		Enabled:    true,
		Gates:      gate.State{AudioValid: true},
		Section:    signals.SectionGroove,
		ScaleIndex: 2,
		Scale:      0.75,
		Foreground: "a",
		Strikes:    1,
	}}
	c := dial(t, m)

	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Enabled)
	assert.True(t, st.Gates.AudioValid)
	assert.Equal(t, signals.SectionGroove, st.Section)
	assert.Equal(t, 2, st.ScaleIndex)
	assert.InDelta(t, 0.75, st.Scale, 1e-9)
	assert.Equal(t, "a", st.Foreground)
	assert.True(t, st.At.Equal(t0))
}

func TestRequestPresetDefaultsToManual(t *testing.T) {
	m := &mockBackend{report: preset.SwitchReport{PresetID: "b", Outcome: preset.OutcomeStarted}}
	c := dial(t, m)

	rep, err := c.RequestPreset(context.Background(), preset.Request{Scope: preset.Background, PresetID: "b"})
	require.NoError(t, err)
	assert.Equal(t, preset.OutcomeStarted, rep.Outcome)
	assert.Equal(t, preset.Manual, m.lastReq.Origin)
	assert.Equal(t, preset.Background, m.lastReq.Scope)
}

func TestRequestPresetRejectsUnknownScope(t *testing.T) {
	c := dial(t, &mockBackend{})

	_, err := c.RequestPreset(context.Background(), preset.Request{Scope: "sideways"})
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(errors.Unwrap(err)))
}

func TestSetTestOverridePassesOnlySetFields(t *testing.T) {
	m := &mockBackend{}
	c := dial(t, m)

	on := true
	_, err := c.SetTestOverride(context.Background(), Override{Override: &on})
	require.NoError(t, err)
	require.NotNil(t, m.lastOver.Override)
	assert.True(t, *m.lastOver.Override)
	assert.Nil(t, m.lastOver.Enabled)
	assert.Nil(t, m.lastOver.Section)
}

func TestBackendErrorMapsToUnavailable(t *testing.T) {
	c := dial(t, &mockBackend{err: controlplane.ErrInboxFull})

	_, err := c.RecentEvents(context.Background())
	require.Error(t, err)
	assert.Equal(t, codes.Unavailable, status.Code(errors.Unwrap(err)))
}

// #endregion client-tests

// #region runner-backend-tests
func TestRunnerBackendAgainstScheduler(t *testing.T) {
	cfg := config.Default()
	cfg.AutoCycle = 0
	cfg.Catalog = []preset.Descriptor{{ID: "a", URL: "https://presets.test/a.milk"}}
	sched := controlplane.NewScheduler(cfg, controlplane.Deps{
		Catalog: preset.NewStaticCatalog(cfg.Catalog),
		Logger:  zerolog.Nop(),
	})
	t.Cleanup(sched.Close)
	runner := controlplane.NewRunner(sched, 0, 8, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go runner.Run(ctx)

	c := dial(t, RunnerBackend{Runner: runner, Now: func() time.Time { return t0 }})

	off := false
	st, err := c.SetTestOverride(ctx, Override{Enabled: &off})
	require.NoError(t, err)
	assert.False(t, st.Enabled)

	rep, err := c.RequestPreset(ctx, preset.Request{Scope: preset.Foreground, PresetID: "a"})
	require.NoError(t, err)
	assert.Equal(t, preset.OutcomeRejected, rep.Outcome)

	ev, err := c.RecentEvents(ctx)
	require.NoError(t, err)
	assert.Empty(t, ev.Gates)
}

func TestRunnerBackendTimeoutReturnsZeroValue(t *testing.T) {
	cfg := config.Default()
	cfg.AutoCycle = 0
	sched := controlplane.NewScheduler(cfg, controlplane.Deps{
		Catalog: preset.NewStaticCatalog(cfg.Catalog),
		Logger:  zerolog.Nop(),
	})
	t.Cleanup(sched.Close)
	// Not running yet: the call is queued but nobody executes it.
	runner := controlplane.NewRunner(sched, 0, 8, zerolog.Nop())
	b := RunnerBackend{Runner: runner, Now: func() time.Time { return t0 }}

	short, cancelShort := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelShort()
	st, err := b.Status(short)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, controlplane.Status{}, st)

	// The stale closure now runs concurrently with the next call.
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go runner.Run(ctx)

	st, err = b.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Enabled)
}

// #endregion runner-backend-tests

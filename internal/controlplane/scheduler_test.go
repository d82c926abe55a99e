package controlplane

import (
	"context"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/danielpatrickdp/liveweb-controlplane/internal/arbiter"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/config"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/gate"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/logging"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/preset"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/regulator"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/signals"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/state"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

const frameStep = 20 * time.Millisecond

// #region helpers
type instantFetcher struct{}

func (instantFetcher) Fetch(ctx context.Context, url string) (string, error) {
	return "preset:" + url, nil
}

type recordingLoader struct {
	mu      sync.Mutex
	applied []string
}

func (l *recordingLoader) Apply(ctx context.Context, scope preset.Scope, desc preset.Descriptor, content string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.applied = append(l.applied, string(scope)+":"+desc.ID)
	return nil
}

type rig struct {
	s      *Scheduler
	store  *state.Store
	loader *recordingLoader
	cfg    config.Config
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Preset.ForegroundPhase = gate.PhaseWindow{HalfWidth: 0.5}
	cfg.Preset.BackgroundPhase = gate.PhaseWindow{HalfWidth: 0.5}
	cfg.Preset.SwitchCooldown = 0
	cfg.Preset.CrossScopeBlock = 0
	cfg.Preset.PrefetchDepth = 0
	cfg.Preset.Quality.WatchDelay = time.Second
	cfg.Preset.Quality.MinSamples = 5
	cfg.AutoCycle = 0
	cfg.Catalog = []preset.Descriptor{
		{ID: "a", URL: "https://presets.test/a.milk"},
		{ID: "b", URL: "https://presets.test/b.milk"},
		{ID: "c", URL: "https://presets.test/c.milk"},
	}
	return cfg
}

func newRigWithStore(t *testing.T, cfg config.Config, store *state.Store) *rig {
	t.Helper()
	r := &rig{store: store, loader: &recordingLoader{}, cfg: cfg}
	r.s = NewScheduler(cfg, Deps{
		Catalog: preset.NewStaticCatalog(cfg.Catalog),
		Fetcher: instantFetcher{},
		Loader:  r.loader,
		Store:   store,
		DB:      store.DB(),
		Logger:  zerolog.Nop(),
	})
	t.Cleanup(r.s.Close)
	require.NoError(t, r.s.Restore(t0))
	r.s.ForceSection(signals.SectionGroove)
	return r
}

func newRig(t *testing.T, cfg config.Config) *rig {
	t.Helper()
	store, err := state.NewStore(filepath.Join(t.TempDir(), "cp.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return newRigWithStore(t, cfg, store)
}

func goodFrame() signals.AudioFrame {
	return signals.AudioFrame{Energy: 0.4, RMS: 0.05, Mid: 0.4, Flux: 0.2}
}

// warm runs good frames until audio is valid and returns the next timestamp.
func (r *rig) warm(t *testing.T, now time.Time) time.Time {
	t.Helper()
	for i := 0; i < 20; i++ {
		r.s.OnAudioFrame(goodFrame(), now)
		now = now.Add(frameStep)
	}
	require.True(t, r.s.Status(now).Gates.AudioValid)
	return now
}

// untilCommitted steps frames until a load finishes.
func (r *rig) untilCommitted(t *testing.T, now time.Time) (preset.SwitchReport, time.Time) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		fx := r.s.OnAudioFrame(goodFrame(), now)
		now = now.Add(frameStep)
		for _, rep := range fx.Switches {
			if rep.Outcome == preset.OutcomeCommitted || rep.Outcome == preset.OutcomeFailed {
				return rep, now
			}
		}
		time.Sleep(time.Millisecond)
	}
	require.FailNow(t, "load did not finish")
	return preset.SwitchReport{}, now
}

// #endregion helpers

// #region gate-tests
func TestAudioValidOnlyAfterNthGoodFrame(t *testing.T) {
	r := newRig(t, testConfig())
	now := t0
	for i := 0; i < 100; i++ {
		fx := r.s.OnAudioFrame(signals.AudioFrame{RMS: 0}, now)
		require.False(t, fx.Gates.AudioValid)
		now = now.Add(frameStep)
	}
	n := r.cfg.Gate.AudioGoodFrames
	for i := 1; i <= n; i++ {
		fx := r.s.OnAudioFrame(signals.AudioFrame{RMS: 0.05, Energy: 0.3}, now)
		assert.Equal(t, i == n, fx.Gates.AudioValid, "frame %d", i)
		now = now.Add(frameStep)
	}
}

func TestNonFiniteEnergyDropsAudioButKeepsFiltersFinite(t *testing.T) {
	r := newRig(t, testConfig())
	now := r.warm(t, t0)

	f := goodFrame()
	f.Energy = math.NaN()
	fx := r.s.OnAudioFrame(f, now)
	assert.False(t, fx.Gates.AudioValid)
	require.NotEmpty(t, fx.GateEvents)
	assert.Equal(t, gate.AudioValid, fx.GateEvents[0].Gate)

	fx = r.s.OnAudioFrame(goodFrame(), now.Add(frameStep))
	assert.False(t, math.IsNaN(fx.Intensity))
}

// #endregion gate-tests

// #region switch-tests
func TestManualSwitchCommitsAndDampens(t *testing.T) {
	r := newRig(t, testConfig())
	now := r.warm(t, t0)

	rep := r.s.Request(preset.Request{Scope: preset.Foreground, Origin: preset.Manual, PresetID: "b"}, now)
	require.Equal(t, preset.OutcomeStarted, rep.Outcome)

	done, now := r.untilCommitted(t, now)
	assert.Equal(t, preset.OutcomeCommitted, done.Outcome)
	assert.Equal(t, "b", r.s.Status(now).Foreground)
	assert.Equal(t, []string{"foreground:b"}, r.loader.applied)

	fx := r.s.OnAudioFrame(goodFrame(), now)
	assert.Equal(t, r.cfg.Damper.SwitchDampenFactor, fx.Coupled.Multiplier)
	assert.Equal(t, arbiter.SourceAI, r.s.State().Arbiter.Owner(now), "AI morph follows a foreground commit")

	logged, err := logging.ListSwitchReports(r.store.DB(), 10)
	require.NoError(t, err)
	require.Len(t, logged, 1, "started and committed share one row")
	assert.Equal(t, preset.OutcomeCommitted, logged[0].Outcome)
}

func TestKillSwitchRejectsAndFreezesRegulation(t *testing.T) {
	r := newRig(t, testConfig())
	now := r.warm(t, t0)
	r.s.SetEnabled(false)

	rep := r.s.Request(preset.Request{Scope: preset.Foreground, Origin: preset.Manual, PresetID: "a"}, now)
	assert.Equal(t, preset.OutcomeRejected, rep.Outcome)
	assert.False(t, r.s.Status(now).InFlight)

	fx := r.s.OnAudioFrame(goodFrame(), now)
	assert.Equal(t, regulator.Mode(""), fx.Opacity.Mode)
	assert.Equal(t, "switch rejected: control plane disabled", fx.Status)
}

func TestTickAutoCycleAlternatesScopes(t *testing.T) {
	cfg := testConfig()
	cfg.AutoCycle = 10 * time.Second
	r := newRig(t, cfg)
	now := r.warm(t, t0)

	assert.Nil(t, r.s.Tick(now), "first tick arms the timer")
	assert.Nil(t, r.s.Tick(now.Add(5*time.Second)))

	reps := r.s.Tick(now.Add(10 * time.Second))
	require.Len(t, reps, 1)
	assert.Equal(t, preset.Foreground, reps[0].Scope)
	assert.Equal(t, preset.Auto, reps[0].Origin)

	reps = r.s.Tick(now.Add(20 * time.Second))
	require.Len(t, reps, 1)
	assert.Equal(t, preset.Background, reps[0].Scope)
}

func TestAutoCycleToggleIsPersisted(t *testing.T) {
	cfg := testConfig()
	cfg.AutoCycle = 10 * time.Second
	r := newRig(t, cfg)
	r.s.SetAutoCycle(false)

	again := newRigWithStore(t, cfg, r.store)
	assert.False(t, again.s.Status(t0).AutoCycle)
}

func TestQualityFailureFromFeedback(t *testing.T) {
	r := newRig(t, testConfig())
	now := r.warm(t, t0)
	r.s.Request(preset.Request{Scope: preset.Foreground, Origin: preset.Manual, PresetID: "a"}, now)
	_, now = r.untilCommitted(t, now)

	fb := signals.RenderFeedback{Valid: true, Foreground: signals.LayerFeedback{Luma: 0.5}, Background: signals.LayerFeedback{Luma: 0.4}}
	var failed []preset.SwitchReport
	for i := 0; i < 15 && len(failed) == 0; i++ {
		now = now.Add(100 * time.Millisecond)
		failed = r.s.OnFeedback(fb, now)
	}
	require.Len(t, failed, 1)
	assert.Equal(t, preset.OutcomeQualityFailed, failed[0].Outcome)
	assert.Equal(t, "a", failed[0].PresetID)
	assert.Equal(t, preset.FailureAesthetic, r.s.State().Presets.Blacklisted("a", now))
}

type queuedWriter struct {
	names []string
	jobs  []func() error
}

func (w *queuedWriter) Enqueue(name string, fn func() error) error {
	w.names = append(w.names, name)
	w.jobs = append(w.jobs, fn)
	return nil
}

func TestReportLoggingIsHandedToWriter(t *testing.T) {
	cfg := testConfig()
	store, err := state.NewStore(filepath.Join(t.TempDir(), "cp.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	w := &queuedWriter{}
	loader := &recordingLoader{}
	s := NewScheduler(cfg, Deps{
		Catalog: preset.NewStaticCatalog(cfg.Catalog),
		Fetcher: instantFetcher{},
		Loader:  loader,
		Store:   store,
		DB:      store.DB(),
		Writer:  w,
		Logger:  zerolog.Nop(),
	})
	t.Cleanup(s.Close)
	s.ForceSection(signals.SectionGroove)
	r := &rig{s: s, store: store, loader: loader, cfg: cfg}
	now := r.warm(t, t0)

	rep := s.Request(preset.Request{Scope: preset.Foreground, Origin: preset.Manual, PresetID: "a"}, now)
	require.Equal(t, preset.OutcomeStarted, rep.Outcome)
	require.NotEmpty(t, w.names)
	assert.Equal(t, "switch report "+rep.ID, w.names[0])

	logged, err := logging.ListSwitchReports(store.DB(), 10)
	require.NoError(t, err)
	assert.Empty(t, logged, "nothing hits the database on the scheduler goroutine")

	for _, job := range w.jobs {
		require.NoError(t, job())
	}
	logged, err = logging.ListSwitchReports(store.DB(), 10)
	require.NoError(t, err)
	assert.Len(t, logged, 1)
}

// #endregion switch-tests

// #region resolution-tests
func TestSustainedOverloadCommitsOneDownscale(t *testing.T) {
	r := newRig(t, testConfig())
	slow := make([]float64, 60)
	for i := range slow {
		slow[i] = 40
	}
	r.s.OnRenderMetrics(signals.RenderMetrics{FrameTimesMs: slow})

	commits := 0
	now := t0
	for i := 0; i < 100; i++ {
		fx := r.s.OnAudioFrame(goodFrame(), now)
		if fx.Resolution.Action == "commit" {
			commits++
			assert.Equal(t, 1, fx.Resolution.To)
		}
		now = now.Add(frameStep)
	}
	assert.Equal(t, 1, commits)

	idx, err := r.store.GetInt(state.KeyResolutionIndex)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	restored := newRigWithStore(t, testConfig(), r.store)
	assert.Equal(t, 1, restored.s.Status(now).ScaleIndex)
}

// #endregion resolution-tests

// #region arbitration-tests
func TestHumanEditHoldsRegulatorsAndPersists(t *testing.T) {
	r := newRig(t, testConfig())
	now := r.warm(t, t0)
	fb := signals.RenderFeedback{Valid: true, Foreground: signals.LayerFeedback{Luma: 0.2}, Background: signals.LayerFeedback{Luma: 0.3}}
	r.s.OnFeedback(fb, now)

	r.s.HumanEdit("energy", 0.9, now)
	fx := r.s.OnAudioFrame(goodFrame(), now.Add(frameStep))
	assert.Equal(t, regulator.ModeDisabled, fx.Opacity.Mode)
	assert.Equal(t, 0.9, fx.Macros["energy"])
	assert.Equal(t, arbiter.SourceHuman, r.s.State().Arbiter.Owner(now.Add(frameStep)))

	var saved map[string]float64
	require.NoError(t, r.store.GetJSON(state.KeyMacros, &saved))
	assert.Equal(t, 0.9, saved["energy"])

	later := now.Add(r.cfg.VisibilityHold + time.Second)
	fx = r.s.OnAudioFrame(goodFrame(), later)
	assert.NotEqual(t, regulator.ModeDisabled, fx.Opacity.Mode)
}

func TestNonOpacityEditDoesNotHoldRegulators(t *testing.T) {
	r := newRig(t, testConfig())
	now := r.warm(t, t0)
	fb := signals.RenderFeedback{Valid: true, Foreground: signals.LayerFeedback{Luma: 0.2}, Background: signals.LayerFeedback{Luma: 0.3}}
	r.s.OnFeedback(fb, now)

	r.s.HumanEdit("warmth", 0.9, now)
	fx := r.s.OnAudioFrame(goodFrame(), now.Add(frameStep))
	assert.NotEqual(t, regulator.ModeDisabled, fx.Opacity.Mode)
	assert.Equal(t, 0.9, fx.Macros["warmth"])
	assert.Equal(t, arbiter.SourceHuman, r.s.State().Arbiter.Owner(now.Add(frameStep)))
}

// #endregion arbitration-tests

// #region runner-tests
func TestRunnerSerializesCalls(t *testing.T) {
	r := newRig(t, testConfig())
	runner := NewRunner(r.s, 0, 4, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runner.Run(ctx)

	var seen time.Time
	require.NoError(t, runner.Call(ctx, func(s *Scheduler) {
		s.OnAudioFrame(goodFrame(), t0)
		seen = s.LastFrameAt()
	}))
	assert.Equal(t, t0, seen)
}

func TestRunnerPostFailsWhenFull(t *testing.T) {
	r := newRig(t, testConfig())
	runner := NewRunner(r.s, 0, 1, zerolog.Nop())
	require.NoError(t, runner.Post(func(*Scheduler) {}))
	assert.ErrorIs(t, runner.Post(func(*Scheduler) {}), ErrInboxFull)
}

func TestRunnerSurvivesPanics(t *testing.T) {
	r := newRig(t, testConfig())
	runner := NewRunner(r.s, 0, 4, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runner.Run(ctx)

	require.NoError(t, runner.Post(func(*Scheduler) { panic("boom") }))
	ran := false
	require.NoError(t, runner.Call(ctx, func(*Scheduler) { ran = true }))
	assert.True(t, ran)
}

// #endregion runner-tests

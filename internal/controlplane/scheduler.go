package controlplane

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/danielpatrickdp/liveweb-controlplane/internal/arbiter"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/config"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/gate"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/logging"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/metrics"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/preset"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/regulator"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/resolution"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/signals"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/state"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/timing"
	"github.com/rs/zerolog"
)

const (
	frameTimeHistory = 120
	fluxHistory      = 64
	morphDuration    = 4 * time.Second
	morphHold        = 2 * time.Second
)

var allSections = []string{string(signals.SectionCalm), string(signals.SectionGroove), string(signals.SectionPeak)}

// sectionMorphs are the macro targets the AI writer morphs toward after a
// foreground preset commits.
var sectionMorphs = map[signals.Section]map[string]float64{
	signals.SectionCalm:   {"energy": 0.25, "motion": 0.3, "density": 0.35},
	signals.SectionGroove: {"energy": 0.55, "motion": 0.55, "density": 0.5},
	signals.SectionPeak:   {"energy": 0.85, "motion": 0.8, "density": 0.7},
}

// #region scheduler
// Scheduler composes the control plane. Every method must be called from a
// single goroutine (see Runner); nothing here blocks.
type Scheduler struct {
	cfg    config.Config
	st     *ControlPlaneState
	store  Store
	deps   Deps
	logger zerolog.Logger

	frameTimes *timing.Window
	flux       *timing.Window
	render     signals.RenderMetrics
	feedback   signals.RenderFeedback

	enabled   bool
	override  bool
	autoCycle bool
	lastAuto  time.Time
	autoScope preset.Scope

	lastEdit  time.Time
	lastFrame time.Time
	gates     gate.State
	phase     float64
	section   signals.Section
	status    string
}

// NewScheduler builds the control plane. Call Restore before the first frame
// to reload persisted state.
func NewScheduler(cfg config.Config, deps Deps) *Scheduler {
	return &Scheduler{
		cfg:        cfg,
		st:         NewState(cfg, deps),
		store:      deps.Store,
		deps:       deps,
		logger:     deps.Logger.With().Str("component", "scheduler").Logger(),
		frameTimes: timing.NewWindow(frameTimeHistory),
		flux:       timing.NewWindow(fluxHistory),
		enabled:    cfg.Enabled,
		autoCycle:  cfg.AutoCycle > 0,
		autoScope:  preset.Foreground,
		section:    signals.SectionGroove,
		status:     "idle",
	}
}

// State exposes the components for diagnostics and tests.
func (s *Scheduler) State() *ControlPlaneState {
	return s.st
}

// Close stops helper goroutines.
func (s *Scheduler) Close() {
	s.st.Presets.Close()
}

// #endregion scheduler

// #region restore
// Restore reloads the resolution index, auto-cycle flag, macro values and
// preset blacklists. Missing keys are not errors.
func (s *Scheduler) Restore(now time.Time) error {
	if s.store == nil {
		return nil
	}
	if idx, err := s.store.GetInt(state.KeyResolutionIndex); err == nil {
		s.st.Resolution.Restore(idx)
	} else if !errors.Is(err, state.ErrNotFound) {
		return fmt.Errorf("restore resolution: %w", err)
	}
	if on, err := s.store.GetBool(state.KeyAutoCycle); err == nil {
		s.autoCycle = on && s.cfg.AutoCycle > 0
	} else if !errors.Is(err, state.ErrNotFound) {
		return fmt.Errorf("restore auto cycle: %w", err)
	}
	var macros map[string]float64
	if err := s.store.GetJSON(state.KeyMacros, &macros); err == nil {
		s.st.Macros.Restore(macros)
	} else if !errors.Is(err, state.ErrNotFound) {
		return fmt.Errorf("restore macros: %w", err)
	}
	if err := s.st.Presets.Restore(now); err != nil {
		return err
	}
	metrics.SetResolution(s.st.Resolution.Scale())
	s.logger.Info().
		Int("scale_index", s.st.Resolution.State().ScaleIndex).
		Bool("auto_cycle", s.autoCycle).
		Msg("control plane restored")
	return nil
}

// #endregion restore

// #region on-audio-frame
// OnAudioFrame runs one full control pass: gates, section, resolution,
// preset scheduling, macro arbitration and regulation.
func (s *Scheduler) OnAudioFrame(frame signals.AudioFrame, now time.Time) Effects {
	s.lastFrame = now
	metrics.RecordFrame(now)

	produced := s.st.Producer.Produce(sanitize(frame))
	sec := s.st.Section.Observe(produced, now)
	scale := signals.SectionScale(sec.Section)
	s.section = sec.Section

	// Gates judge the raw levels so non-finite input still counts as a violation.
	gateFrame := produced
	gateFrame.Energy = frame.Energy
	gateFrame.RMS = frame.RMS
	render := s.renderInputs()
	s.st.Gates.SetSectionScale(scale)
	gates, flips := s.st.Gates.Observe(gateFrame, render, now)
	s.gates = gates
	s.phase = produced.BeatPhase

	fx := Effects{
		At:         now,
		Gates:      gates,
		GateEvents: flips,
		Section:    sec.Section,
		Intensity:  sec.Intensity,
	}

	pressure := s.st.Presets.UnderPressure(now)
	dec := s.st.Resolution.Step(resolution.Inputs{
		FrameTimeP95Ms: render.FrameTimeP95Ms,
		AudioValid:     gates.AudioValid,
		RenderStable:   gates.RenderStable,
		Rebuilding:     render.Rebuilding,
		LoadInFlight:   s.st.Presets.InFlight(),
		UnderPressure:  pressure,
		CooldownScale:  scale.Cooldown,
	}, now)
	fx.Resolution = dec
	fx.Scale = s.st.Resolution.Scale()
	if dec.Action == resolution.ActionCommit {
		s.onResolutionCommit(dec, now)
	}

	fx.Switches = s.handleReports(s.st.Presets.Poll(s.conditions(now), now), now)

	if s.enabled {
		s.st.Macros.Write(arbiter.SourceRuntime, "energy", sec.Intensity, now)
	}
	s.st.Macros.StepAI(now)
	fx.Ownership = s.st.Arbiter.DrainEvents()
	fx.Macros = s.st.Macros.Values()

	if s.enabled {
		fx.Opacity, fx.Color, fx.Coupled = s.regulate(produced, sec, scale, render, pressure, now)
	}
	fx.Status = s.status

	s.record(fx)
	return fx
}

func (s *Scheduler) renderInputs() gate.RenderInputs {
	last := s.render.LastResolutionCommit
	if c := s.st.Resolution.State().LastCommit; c.After(last) {
		last = c
	}
	return gate.RenderInputs{
		Rebuilding:           s.render.Rebuilding,
		LastResolutionCommit: last,
		FrameTimeP95Ms:       s.frameTimes.Percentile(0.95),
	}
}

func (s *Scheduler) conditions(now time.Time) preset.Conditions {
	return preset.Conditions{
		Gates:              s.gates,
		BeatPhase:          s.phase,
		ResolutionCooldown: s.st.Resolution.CooldownActive(now),
		Override:           s.override,
		CooldownScale:      signals.SectionScale(s.section).Cooldown,
	}
}

func (s *Scheduler) onResolutionCommit(dec resolution.Decision, now time.Time) {
	s.st.Damper.NotifySwitch(now)
	metrics.RecordResolutionCommit(string(dec.Direction))
	metrics.SetResolution(dec.Scale)
	if s.store != nil {
		if err := s.store.SetInt(state.KeyResolutionIndex, dec.To); err != nil {
			s.logger.Error().Err(err).Msg("persist resolution index")
		}
	}
	if db := s.deps.DB; db != nil {
		s.persist("resolution commit", func() error { return logging.LogResolutionCommit(db, dec) })
	}
}

// persist hands fn to the writer, or runs it inline when there is none.
func (s *Scheduler) persist(name string, fn func() error) {
	var err error
	if s.deps.Writer != nil {
		err = s.deps.Writer.Enqueue(name, fn)
	} else {
		err = fn()
	}
	if err != nil {
		s.logger.Error().Err(err).Str("job", name).Msg("persist")
	}
}

// #endregion on-audio-frame

// #region regulate
func (s *Scheduler) regulate(frame signals.AudioFrame, sec signals.SectionState, scale signals.Scale,
	render gate.RenderInputs, pressure bool, now time.Time) (regulator.Output, regulator.Output, regulator.Coupled) {
	fb := s.feedback
	in := regulator.Inputs{
		AudioValid:     s.gates.AudioValid && fb.Valid,
		VisibilityHold: !s.lastEdit.IsZero() && now.Sub(s.lastEdit) < s.cfg.VisibilityHold,
		RenderHold:     render.Rebuilding || s.st.Resolution.CooldownActive(now),
		CapScale:       scale.Cap,
		SlowCadence:    pressure,
	}
	luma := (fb.Foreground.Luma + fb.Background.Luma) / 2
	op := s.st.Opacity.Step(luma, in, now)
	col := s.st.Color.Step(fb.Foreground, in, now)

	s.flux.Add(frame.Flux)
	drives := regulator.Drives{
		Edge:       frame.Flux - s.flux.Mean(),
		Audio:      frame.Energy - sec.Intensity,
		PI:         op.Value,
		PresetBias: s.cfg.PresetBias[s.st.Presets.Current(preset.Foreground)],
	}
	if fb.Valid {
		drives.LumaDiff = fb.Background.Luma - fb.Foreground.Luma
	}
	coupled := s.st.Damper.Step(drives, scale.Threshold, now)
	return op, col, coupled
}

// #endregion regulate

// #region inputs
// OnRenderMetrics records renderer timing. Frame times feed the rolling P95.
func (s *Scheduler) OnRenderMetrics(m signals.RenderMetrics) {
	for _, ft := range m.FrameTimesMs {
		if !math.IsNaN(ft) && !math.IsInf(ft, 0) && ft >= 0 {
			s.frameTimes.Add(ft)
		}
	}
	s.render = m
	s.render.FrameTimesMs = nil
}

// OnFeedback stores the latest luma/color readback and feeds the quality
// watches. It returns any quality failures.
func (s *Scheduler) OnFeedback(fb signals.RenderFeedback, now time.Time) []preset.SwitchReport {
	s.feedback = fb
	if !fb.Valid {
		return nil
	}
	var reps []preset.SwitchReport
	if r := s.st.Presets.ObserveFeedback(preset.Foreground, fb.Foreground.Luma, now); r != nil {
		reps = append(reps, *r)
	}
	if r := s.st.Presets.ObserveFeedback(preset.Background, fb.Background.Luma, now); r != nil {
		reps = append(reps, *r)
	}
	return s.handleReports(reps, now)
}

// Request submits a switch on behalf of a caller. It never blocks.
func (s *Scheduler) Request(req preset.Request, now time.Time) preset.SwitchReport {
	if !s.enabled {
		rep := preset.SwitchReport{
			Scope:       req.Scope,
			Origin:      req.Origin,
			PresetID:    req.PresetID,
			Outcome:     preset.OutcomeRejected,
			Error:       "control plane disabled",
			RequestedAt: now,
			FinishedAt:  now,
		}
		s.status = "switch rejected: control plane disabled"
		return rep
	}
	reps := s.handleReports([]preset.SwitchReport{s.st.Presets.Request(req, s.conditions(now), now)}, now)
	return reps[0]
}

// HumanEdit applies a direct user macro edit. It preempts every other
// writer. Edits to opacity macros also pause the regulators for the
// visibility hold.
func (s *Scheduler) HumanEdit(name string, value float64, now time.Time) {
	s.st.Macros.HumanEdit(name, value, now)
	if slices.Contains(s.cfg.OpacityMacros, name) {
		s.lastEdit = now
	}
	if s.store != nil {
		if err := s.store.SetJSON(state.KeyMacros, s.st.Macros.Values()); err != nil {
			s.logger.Error().Err(err).Msg("persist macros")
		}
	}
}

// Tick runs the low-frequency timers: auto-cycle and blacklist pruning.
func (s *Scheduler) Tick(now time.Time) []preset.SwitchReport {
	s.st.Presets.Maintain(now)
	if !s.enabled || !s.autoCycle || s.cfg.AutoCycle <= 0 {
		return nil
	}
	if s.lastAuto.IsZero() {
		s.lastAuto = now
		return nil
	}
	interval := time.Duration(float64(s.cfg.AutoCycle) * signals.SectionScale(s.section).Cooldown)
	if now.Sub(s.lastAuto) < interval {
		return nil
	}
	s.lastAuto = now
	scope := s.autoScope
	s.autoScope = scope.Other()
	return []preset.SwitchReport{s.Request(preset.Request{Scope: scope, Origin: preset.Auto, RequestedAt: now}, now)}
}

// #endregion inputs

// #region reports
// handleReports logs, counts and reacts to switch reports.
func (s *Scheduler) handleReports(reps []preset.SwitchReport, now time.Time) []preset.SwitchReport {
	for _, rep := range reps {
		reasons := make([]string, len(rep.Reasons))
		for i, r := range rep.Reasons {
			reasons[i] = string(r)
		}
		metrics.RecordSwitch(string(rep.Scope), string(rep.Origin), string(rep.Outcome), reasons, rep.CacheHit, rep.Total)

		if db := s.deps.DB; db != nil {
			rep := rep
			s.persist("switch report "+rep.ID, func() error { return logging.LogSwitchReport(db, rep) })
		}
		if rep.Outcome == preset.OutcomeCommitted {
			s.st.Damper.NotifySwitch(now)
			if rep.Scope == preset.Foreground {
				if target, ok := sectionMorphs[s.section]; ok {
					s.st.Macros.StartMorph(target, morphDuration, morphHold, now)
				}
			}
		}
	}
	if len(reps) > 0 {
		s.status = s.st.Presets.Status()
	}
	return reps
}

func (s *Scheduler) record(fx Effects) {
	metrics.SetGate(string(gate.AudioValid), fx.Gates.AudioValid)
	metrics.SetGate(string(gate.BeatTrusted), fx.Gates.BeatTrusted)
	metrics.SetGate(string(gate.RenderStable), fx.Gates.RenderStable)
	for _, ev := range fx.GateEvents {
		metrics.RecordGateFlip(string(ev.Gate), ev.Value)
	}
	metrics.SetSection(string(fx.Section), allSections)
	for _, ev := range fx.Ownership {
		metrics.RecordOwnershipChange(string(ev.To), ev.Reason)
	}
	metrics.SetRegulator("opacity", fx.Opacity.Value)
	metrics.SetRegulator("color", fx.Color.Value)
	metrics.SetRegulator("fg", fx.Coupled.Foreground)
	metrics.SetRegulator("bg", fx.Coupled.Background)
	metrics.SetDamperMultiplier(fx.Coupled.Multiplier)
}

// #endregion reports

// #region status
// Status snapshots the control plane.
func (s *Scheduler) Status(now time.Time) Status {
	st := Status{
		At:           now,
		Enabled:      s.enabled,
		Override:     s.override,
		AutoCycle:    s.autoCycle,
		Gates:        s.gates,
		Section:      s.section,
		ScaleIndex:   s.st.Resolution.State().ScaleIndex,
		Scale:        s.st.Resolution.Scale(),
		Foreground:   s.st.Presets.Current(preset.Foreground),
		Background:   s.st.Presets.Current(preset.Background),
		InFlight:     s.st.Presets.InFlight(),
		Owner:        s.st.Arbiter.Owner(now),
		Strikes:      s.st.Presets.Strikes(),
		BackoffUntil: s.st.Presets.BackoffUntil(),
		Message:      s.status,
		LastSwitch:   s.st.Presets.LastReport(),
		Macros:       s.st.Macros.Values(),
		LastFrameAt:  s.lastFrame,
	}
	for _, scope := range []preset.Scope{preset.Foreground, preset.Background} {
		if p, ok := s.st.Presets.Pending(scope); ok {
			st.Pending = append(st.Pending, p)
		}
	}
	return st
}

// RecentGateEvents returns buffered gate flips, oldest first.
func (s *Scheduler) RecentGateEvents() []gate.Event {
	return s.st.Gates.RecentEvents()
}

// RecentSwitches returns recent switch reports, oldest first.
func (s *Scheduler) RecentSwitches() []preset.SwitchReport {
	return s.st.Presets.RecentReports()
}

// #endregion status

// #region test-control
// SetOverride bypasses the three trust gates for switch requests.
func (s *Scheduler) SetOverride(on bool) {
	s.override = on
	s.logger.Warn().Bool("override", on).Msg("test override changed")
}

// ForceSection pins the section classifier. Empty clears the pin.
func (s *Scheduler) ForceSection(sec signals.Section) {
	s.st.Section.Force(sec)
}

// SetEnabled flips the kill switch.
func (s *Scheduler) SetEnabled(on bool) {
	s.enabled = on
	s.logger.Warn().Bool("enabled", on).Msg("control plane kill switch")
}

// SetAutoCycle turns auto rotation on or off and persists the choice.
func (s *Scheduler) SetAutoCycle(on bool) {
	s.autoCycle = on
	s.lastAuto = time.Time{}
	if s.store != nil {
		if err := s.store.SetBool(state.KeyAutoCycle, on); err != nil {
			s.logger.Error().Err(err).Msg("persist auto cycle")
		}
	}
}

// LastFrameAt returns the timestamp of the last processed audio frame.
func (s *Scheduler) LastFrameAt() time.Time {
	return s.lastFrame
}

// #endregion test-control

// #region helpers
// sanitize zeroes non-finite feature values so smoothing filters never
// absorb a NaN.
func sanitize(f signals.AudioFrame) signals.AudioFrame {
	fields := []*float64{&f.Energy, &f.RMS, &f.Peak, &f.Bass, &f.Mid, &f.High, &f.Flux, &f.Tempo,
		&f.BeatPhase, &f.BeatConfidence, &f.BeatStability}
	for _, p := range fields {
		if math.IsNaN(*p) || math.IsInf(*p, 0) {
			*p = 0
		}
	}
	return f
}

// #endregion helpers

var _ TestControl = (*Scheduler)(nil)

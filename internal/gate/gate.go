package gate

import (
	"math"
	"time"

	"github.com/danielpatrickdp/liveweb-controlplane/internal/signals"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/timing"
	"github.com/rs/zerolog"
)

// #region engine
// Engine turns noisy audio/render signals into three trusted booleans.
// Every gate drops instantly on a violation and re-asserts only after its
// trust condition holds and its cooldown has elapsed.
type Engine struct {
	config Config
	logger zerolog.Logger

	audio     bool
	goodCount int
	audioCD   timing.Cooldown

	beat      bool
	beatAbove timing.Since
	beatCD    timing.Cooldown

	render   bool
	renderCD timing.Cooldown

	scale signals.Scale

	events []Event
	head   int
	full   bool
}

// NewEngine creates a gate engine with all gates false.
func NewEngine(config Config, logger zerolog.Logger) *Engine {
	size := config.EventBufferSize
	if size < 1 {
		size = 1
	}
	return &Engine{
		config: config,
		logger: logger.With().Str("component", "gate").Logger(),
		scale:  signals.SectionScale(""),
		events: make([]Event, size),
	}
}

// SetSectionScale applies the section's multipliers to the beat thresholds
// and to every gate cooldown armed from now on.
func (e *Engine) SetSectionScale(scale signals.Scale) {
	e.scale = scale
}

// #endregion engine

// #region observe
// Observe advances all gates by one frame and returns the new state plus the
// flips that happened during this step.
func (e *Engine) Observe(frame signals.AudioFrame, render RenderInputs, now time.Time) (State, []Event) {
	var flips []Event
	if ev, ok := e.stepAudio(frame, now); ok {
		flips = append(flips, ev)
	}
	if ev, ok := e.stepBeat(frame, now); ok {
		flips = append(flips, ev)
	}
	if ev, ok := e.stepRender(render, now); ok {
		flips = append(flips, ev)
	}
	for _, ev := range flips {
		e.record(ev)
		e.logger.Info().Str("gate", string(ev.Gate)).Bool("value", ev.Value).Str("reason", ev.Reason).Msg("gate flip")
	}
	return e.State(), flips
}

func (e *Engine) stepAudio(frame signals.AudioFrame, now time.Time) (Event, bool) {
	good, why := e.goodAudio(frame)
	if !good {
		e.goodCount = 0
		if e.audio {
			e.audio = false
			e.audioCD.Arm(now, e.cooldown(e.config.AudioCooldown))
			return Event{Gate: AudioValid, Value: false, At: now, Reason: why}, true
		}
		return Event{}, false
	}
	e.goodCount++
	if !e.audio && e.goodCount >= e.config.AudioGoodFrames && !e.audioCD.Active(now) {
		e.audio = true
		return Event{Gate: AudioValid, Value: true, At: now, Reason: "good_frames"}, true
	}
	return Event{}, false
}

func (e *Engine) goodAudio(frame signals.AudioFrame) (bool, string) {
	switch {
	case frame.Silent:
		return false, "silent"
	case math.IsNaN(frame.Energy) || math.IsInf(frame.Energy, 0) || frame.Energy < 0:
		return false, "energy_invalid"
	case !(frame.RMS >= e.config.AudioRMSFloor):
		return false, "rms_below_floor"
	}
	return true, ""
}

func (e *Engine) stepBeat(frame signals.AudioFrame, now time.Time) (Event, bool) {
	above := e.audio &&
		frame.BeatConfidence >= e.threshold(e.config.BeatConfidenceMin) &&
		frame.BeatStability >= e.threshold(e.config.BeatStabilityMin)
	held := e.beatAbove.Observe(above, now)
	if !above {
		if e.beat {
			e.beat = false
			e.beatCD.Arm(now, e.cooldown(e.config.BeatCooldown))
			return Event{Gate: BeatTrusted, Value: false, At: now, Reason: "below_threshold"}, true
		}
		return Event{}, false
	}
	if !e.beat && held >= e.config.BeatTrustWindow && !e.beatCD.Active(now) {
		e.beat = true
		return Event{Gate: BeatTrusted, Value: true, At: now, Reason: "trust_window"}, true
	}
	return Event{}, false
}

func (e *Engine) stepRender(render RenderInputs, now time.Time) (Event, bool) {
	why := ""
	switch {
	case render.Rebuilding:
		why = "rebuilding"
	case !render.LastResolutionCommit.IsZero() && now.Sub(render.LastResolutionCommit) < e.config.RenderResolutionCooldown:
		why = "resolution_commit"
	case render.FrameTimeP95Ms > e.config.RenderP95CeilingMs:
		why = "frame_time_p95"
	}
	if why != "" {
		e.renderCD.Arm(now, e.cooldown(e.config.RenderCooldown))
		if e.render {
			e.render = false
			return Event{Gate: RenderStable, Value: false, At: now, Reason: why}, true
		}
		return Event{}, false
	}
	if !e.render && !e.renderCD.Active(now) {
		e.render = true
		return Event{Gate: RenderStable, Value: true, At: now, Reason: "clear"}, true
	}
	return Event{}, false
}

func (e *Engine) threshold(v float64) float64 {
	if e.scale.Threshold <= 0 {
		return v
	}
	return math.Min(1, v*e.scale.Threshold)
}

func (e *Engine) cooldown(d time.Duration) time.Duration {
	if e.scale.Cooldown <= 0 {
		return d
	}
	return time.Duration(float64(d) * e.scale.Cooldown)
}

// #endregion observe

// #region accessors
// State returns the current gate snapshot.
func (e *Engine) State() State {
	return State{
		AudioValid:   e.audio,
		BeatTrusted:  e.beat,
		RenderStable: e.render,
		AudioUntil:   e.audioCD.Until(),
		BeatUntil:    e.beatCD.Until(),
		RenderUntil:  e.renderCD.Until(),
	}
}

// RecentEvents returns the buffered flips, oldest first.
func (e *Engine) RecentEvents() []Event {
	var out []Event
	if e.full {
		out = append(out, e.events[e.head:]...)
	}
	return append(out, e.events[:e.head]...)
}

func (e *Engine) record(ev Event) {
	e.events[e.head] = ev
	e.head++
	if e.head == len(e.events) {
		e.head = 0
		e.full = true
	}
}

// #endregion accessors

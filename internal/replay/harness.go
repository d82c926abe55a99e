package replay

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/danielpatrickdp/liveweb-controlplane/internal/config"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/controlplane"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/preset"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/resolution"
	"github.com/rs/zerolog"
)

const settleTimeout = 5 * time.Second

// Epoch is the virtual start time of every replay.
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// #region types
// Event is one observable outcome during a replay.
type Event struct {
	AtMs      int64  `json:"at_ms"`
	Kind      string `json:"kind"`
	Scope     string `json:"scope,omitempty"`
	Origin    string `json:"origin,omitempty"`
	PresetID  string `json:"preset_id,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
	Class     string `json:"class,omitempty"`
	Anchor    bool   `json:"anchor,omitempty"`
	Reasons   string `json:"reasons,omitempty"`
	Gate      string `json:"gate,omitempty"`
	Value     bool   `json:"value,omitempty"`
	Direction string `json:"direction,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// Check is the verdict for one expectation.
type Check struct {
	Expectation Expectation `json:"expectation"`
	Matched     int         `json:"matched"`
	OK          bool        `json:"ok"`
}

// Summary aggregates a replay run.
type Summary struct {
	Frames            int     `json:"frames"`
	Commits           int     `json:"commits"`
	Failures          int     `json:"failures"`
	Denials           int     `json:"denials"`
	QualityFailures   int     `json:"quality_failures"`
	ResolutionCommits int     `json:"resolution_commits"`
	GateFlips         int     `json:"gate_flips"`
	FinalScale        float64 `json:"final_scale"`
	Foreground        string  `json:"foreground"`
	Background        string  `json:"background"`
}

// Result is the full output of Run.
type Result struct {
	Events  []Event `json:"events"`
	Checks  []Check `json:"checks"`
	Summary Summary `json:"summary"`
}

// Mismatches counts failed checks.
func (r *Result) Mismatches() int {
	n := 0
	for _, c := range r.Checks {
		if !c.OK {
			n++
		}
	}
	return n
}

// #endregion types

// #region run
// Run replays f through a fresh scheduler built from cfg. Loads complete on
// the first frame at or after their scripted latency, so a fixture always
// produces the same events.
func Run(f *Fixture, cfg config.Config, logger zerolog.Logger) (*Result, error) {
	interval := time.Duration(f.FrameIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	cfg.Catalog = f.Catalog
	cfg.AutoCycle = time.Duration(f.AutoCycleMs) * time.Millisecond
	cfg.Enabled = true

	sim := newSimRenderer(f.Loads)
	sched := controlplane.NewScheduler(cfg, controlplane.Deps{
		Catalog: preset.NewStaticCatalog(f.Catalog),
		Fetcher: sim,
		Loader:  sim,
		Logger:  logger,
	})
	defer sched.Close()
	sched.SetOverride(f.Override)
	if f.Section != "" {
		sched.ForceSection(f.Section)
	}

	h := &harness{sched: sched, sim: sim, result: &Result{}}
	for _, step := range expand(f.Steps, interval) {
		if err := h.step(step); err != nil {
			return nil, err
		}
	}

	h.result.Checks = evaluate(f.Expected, h.result.Events)
	end := Epoch
	if n := len(f.Steps); n > 0 {
		end = Epoch.Add(time.Duration(f.Steps[n-1].AtMs) * time.Millisecond)
	}
	st := sched.Status(end)
	h.result.Summary.FinalScale = st.Scale
	h.result.Summary.Foreground = st.Foreground
	h.result.Summary.Background = st.Background
	return h.result, nil
}

// expand unrolls repeated steps and orders everything by time. Steps at the
// same instant keep their fixture order.
func expand(steps []FixtureStep, interval time.Duration) []FixtureStep {
	var out []FixtureStep
	for _, s := range steps {
		n := s.Repeat
		if n < 1 {
			n = 1
		}
		for i := 0; i < n; i++ {
			c := s
			c.Repeat = 1
			c.AtMs = s.AtMs + int64(i)*interval.Milliseconds()
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AtMs < out[j].AtMs })
	return out
}

// #endregion run

// #region harness
type harness struct {
	sched  *controlplane.Scheduler
	sim    *simRenderer
	result *Result

	pending  *simLoad
	deadline time.Time
	captured string
}

func (h *harness) step(s FixtureStep) error {
	now := Epoch.Add(time.Duration(s.AtMs) * time.Millisecond)
	if err := h.settle(now); err != nil {
		return err
	}

	if s.Render != nil {
		h.sched.OnRenderMetrics(*s.Render)
	}
	if s.Feedback != nil {
		h.switches(now, h.sched.OnFeedback(*s.Feedback, now))
	}
	if s.Edit != nil {
		h.sched.HumanEdit(s.Edit.Name, s.Edit.Value, now)
	}
	if s.Request != nil {
		h.switches(now, []preset.SwitchReport{h.sched.Request(s.Request.ToRequest(), now)})
	}
	if s.Tick {
		h.switches(now, h.sched.Tick(now))
	}
	if s.Frame != nil {
		before, _, _ := h.sched.State().Presets.InFlightTask()
		fx := h.sched.OnAudioFrame(*s.Frame, now)
		h.result.Summary.Frames++
		for _, ev := range fx.GateEvents {
			h.emit(now, Event{Kind: "gate", Gate: string(ev.Gate), Value: ev.Value, Detail: ev.Reason})
			h.result.Summary.GateFlips++
		}
		if fx.Resolution.Action == resolution.ActionCommit {
			h.emit(now, Event{Kind: "resolution", Direction: string(fx.Resolution.Direction),
				Detail: fmt.Sprintf("%d->%d", fx.Resolution.From, fx.Resolution.To)})
			h.result.Summary.ResolutionCommits++
		}
		h.switches(now, fx.Switches)
		if err := h.capture(before); err != nil {
			return err
		}
	}
	return nil
}

// settle releases a load whose scripted latency has elapsed and waits until
// its result is parked, so the next Poll completes it at exactly now.
func (h *harness) settle(now time.Time) error {
	if h.pending == nil || now.Before(h.deadline) {
		return nil
	}
	close(h.pending.release)
	h.pending = nil
	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()
	if !h.sched.State().Presets.Await(ctx) {
		return errors.New("replay: load did not settle")
	}
	return nil
}

// capture waits for a load that the last Poll released to reach the renderer.
func (h *harness) capture(before string) error {
	id, started, ok := h.sched.State().Presets.InFlightTask()
	if !ok || id != before || id == h.captured {
		return nil
	}
	select {
	case l := <-h.sim.entered:
		h.pending = l
		h.deadline = started.Add(l.latency)
		h.captured = id
		return nil
	case <-time.After(settleTimeout):
		return fmt.Errorf("replay: load %s never reached the renderer", id)
	}
}

func (h *harness) switches(now time.Time, reps []preset.SwitchReport) {
	for _, rep := range reps {
		reasons := ""
		for i, r := range rep.Reasons {
			if i > 0 {
				reasons += ","
			}
			reasons += string(r)
		}
		h.emit(now, Event{
			Kind:     "switch",
			Scope:    string(rep.Scope),
			Origin:   string(rep.Origin),
			PresetID: rep.PresetID,
			Outcome:  string(rep.Outcome),
			Class:    string(rep.Class),
			Anchor:   rep.Anchor,
			Reasons:  reasons,
			Detail:   rep.Error,
		})
		switch rep.Outcome {
		case preset.OutcomeCommitted:
			h.result.Summary.Commits++
		case preset.OutcomeFailed:
			h.result.Summary.Failures++
		case preset.OutcomeDenied:
			h.result.Summary.Denials++
		case preset.OutcomeQualityFailed:
			h.result.Summary.QualityFailures++
		}
	}
}

func (h *harness) emit(now time.Time, ev Event) {
	ev.AtMs = now.Sub(Epoch).Milliseconds()
	h.result.Events = append(h.result.Events, ev)
}

// #endregion harness

// #region evaluate
func evaluate(expected []Expectation, events []Event) []Check {
	checks := make([]Check, 0, len(expected))
	for _, exp := range expected {
		n := 0
		for _, ev := range events {
			if matches(exp, ev) {
				n++
			}
		}
		ok := n > 0
		if exp.Count != nil {
			ok = n == *exp.Count
		}
		checks = append(checks, Check{Expectation: exp, Matched: n, OK: ok})
	}
	return checks
}

func matches(e Expectation, ev Event) bool {
	switch {
	case e.Kind != "" && e.Kind != ev.Kind,
		e.Scope != "" && e.Scope != ev.Scope,
		e.Outcome != "" && e.Outcome != ev.Outcome,
		e.PresetID != "" && e.PresetID != ev.PresetID,
		e.Class != "" && e.Class != ev.Class,
		e.Gate != "" && e.Gate != ev.Gate,
		e.Direction != "" && e.Direction != ev.Direction,
		e.Anchor != nil && *e.Anchor != ev.Anchor,
		e.Value != nil && *e.Value != ev.Value,
		e.AfterMs != nil && ev.AtMs < *e.AfterMs,
		e.BeforeMs != nil && ev.AtMs > *e.BeforeMs:
		return false
	}
	return true
}

// #endregion evaluate

package arbiter

import (
	"sort"
	"time"

	"github.com/danielpatrickdp/liveweb-controlplane/internal/timing"
)

// #region ai-state
// AIState is the AI writer's morph/hold bookkeeping.
type AIState struct {
	Baseline   map[string]float64
	Target     map[string]float64
	MorphStart time.Time
	MorphUntil time.Time
	HoldUntil  time.Time
}

// #endregion ai-state

// #region bank
// Bank is the shared macro parameter space. Every write goes through the
// arbiter; human edits also reset the AI so it resumes from the user's values.
type Bank struct {
	config Config
	arb    *Arbiter
	values map[string]float64
	ai     AIState
}

// NewBank creates a bank with the given initial macro values.
func NewBank(config Config, arb *Arbiter, initial map[string]float64) *Bank {
	values := make(map[string]float64, len(initial))
	for k, v := range initial {
		values[k] = timing.Clamp(v, 0, 1)
	}
	return &Bank{
		config: config,
		arb:    arb,
		values: values,
		ai:     AIState{Baseline: copyMap(values)},
	}
}

// #endregion bank

// #region writes
// Write sets a macro if src can acquire ownership. Returns whether it was applied.
func (b *Bank) Write(src Source, name string, value float64, now time.Time) bool {
	g := b.arb.Request(src, now, b.config.HoldFor(src))
	if !g.Granted {
		return false
	}
	b.values[name] = timing.Clamp(value, 0, 1)
	return true
}

// HumanEdit applies a direct user edit. It always wins, clears the AI's
// morph/hold timers and syncs the AI baseline to the current values.
func (b *Bank) HumanEdit(name string, value float64, now time.Time) {
	b.arb.Request(SourceHuman, now, b.config.HumanHold)
	b.values[name] = timing.Clamp(value, 0, 1)
	b.ai.MorphStart = time.Time{}
	b.ai.MorphUntil = time.Time{}
	b.ai.HoldUntil = time.Time{}
	b.ai.Target = nil
	b.ai.Baseline = copyMap(b.values)
}

// StartMorph schedules an AI morph from the current baseline to target over d.
func (b *Bank) StartMorph(target map[string]float64, d, hold time.Duration, now time.Time) bool {
	g := b.arb.Request(SourceAI, now, d+hold)
	if !g.Granted {
		return false
	}
	b.ai.Baseline = copyMap(b.values)
	b.ai.Target = copyMap(target)
	b.ai.MorphStart = now
	b.ai.MorphUntil = now.Add(d)
	b.ai.HoldUntil = now.Add(d + hold)
	return true
}

// StepAI advances an active morph. It writes only while the AI owns the space.
func (b *Bank) StepAI(now time.Time) bool {
	if b.ai.Target == nil || !b.arb.CanWrite(SourceAI, now) {
		return false
	}
	total := b.ai.MorphUntil.Sub(b.ai.MorphStart)
	k := 1.0
	if total > 0 {
		k = timing.Clamp(float64(now.Sub(b.ai.MorphStart))/float64(total), 0, 1)
	}
	for name, target := range b.ai.Target {
		base, ok := b.ai.Baseline[name]
		if !ok {
			base = target
		}
		b.values[name] = timing.Clamp(base+(target-base)*k, 0, 1)
	}
	if k >= 1 && !now.Before(b.ai.HoldUntil) {
		b.ai.Baseline = copyMap(b.values)
		b.ai.Target = nil
	}
	return true
}

// Restore loads persisted values without taking ownership. Unknown names
// are added; the AI baseline follows.
func (b *Bank) Restore(values map[string]float64) {
	for k, v := range values {
		b.values[k] = timing.Clamp(v, 0, 1)
	}
	b.ai.Baseline = copyMap(b.values)
}

// #endregion writes

// #region accessors
// Values returns a copy of the macro values.
func (b *Bank) Values() map[string]float64 {
	return copyMap(b.values)
}

// Names returns macro names in sorted order.
func (b *Bank) Names() []string {
	names := make([]string, 0, len(b.values))
	for k := range b.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// AI returns a copy of the AI bookkeeping.
func (b *Bank) AI() AIState {
	st := b.ai
	st.Baseline = copyMap(b.ai.Baseline)
	st.Target = copyMap(b.ai.Target)
	return st
}

func copyMap(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// #endregion accessors

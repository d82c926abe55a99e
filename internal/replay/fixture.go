package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/liveweb-controlplane/internal/preset"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/signals"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description     string                 `json:"description"`
	FrameIntervalMs int64                  `json:"frame_interval_ms"` // 0 = 20
	Override        bool                   `json:"override"`
	Section         signals.Section        `json:"section"` // pin the classifier, "" = free
	AutoCycleMs     int64                  `json:"auto_cycle_ms"`
	Catalog         []preset.Descriptor    `json:"catalog"`
	Loads           map[string]FixtureLoad `json:"loads"`
	Steps           []FixtureStep          `json:"steps"`
	Expected        []Expectation          `json:"expected"`
}

// FixtureLoad scripts how the simulated renderer handles one preset.
type FixtureLoad struct {
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error"`
}

// FixtureStep is one recorded input. Repeat > 1 replays the step once per
// frame interval, starting at AtMs.
type FixtureStep struct {
	AtMs     int64                   `json:"at_ms"`
	Repeat   int                     `json:"repeat"`
	Frame    *signals.AudioFrame     `json:"frame"`
	Render   *signals.RenderMetrics  `json:"render"`
	Feedback *signals.RenderFeedback `json:"feedback"`
	Request  *FixtureRequest         `json:"request"`
	Edit     *FixtureEdit            `json:"edit"`
	Tick     bool                    `json:"tick"`
}

// FixtureRequest mirrors preset.Request with JSON tags.
type FixtureRequest struct {
	Scope    preset.Scope  `json:"scope"`
	Origin   preset.Origin `json:"origin"`
	PresetID string        `json:"preset_id"`
}

// FixtureEdit is a direct human macro edit.
type FixtureEdit struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Expectation matches recorded events. Empty fields match anything. Count
// nil means "at least one".
type Expectation struct {
	Kind      string `json:"kind"` // "switch" | "gate" | "resolution"
	Scope     string `json:"scope,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
	PresetID  string `json:"preset_id,omitempty"`
	Class     string `json:"class,omitempty"`
	Anchor    *bool  `json:"anchor,omitempty"`
	Gate      string `json:"gate,omitempty"`
	Value     *bool  `json:"value,omitempty"`
	Direction string `json:"direction,omitempty"`
	AfterMs   *int64 `json:"after_ms,omitempty"`
	BeforeMs  *int64 `json:"before_ms,omitempty"`
	Count     *int   `json:"count,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	return ParseFixture(data)
}

// ParseFixture parses fixture JSON.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	if len(f.Catalog) == 0 {
		return nil, fmt.Errorf("parse fixture: empty catalog")
	}
	return &f, nil
}

// ToRequest converts a FixtureRequest to a domain Request.
func (r *FixtureRequest) ToRequest() preset.Request {
	origin := r.Origin
	if origin == "" {
		origin = preset.Manual
	}
	return preset.Request{Scope: r.Scope, Origin: origin, PresetID: r.PresetID}
}

// #endregion fixture-loader

// #region describe
// String renders the expectation compactly for tables.
func (e Expectation) String() string {
	s := e.Kind
	add := func(k, v string) {
		if v != "" {
			s += " " + k + "=" + v
		}
	}
	add("scope", e.Scope)
	add("outcome", e.Outcome)
	add("preset", e.PresetID)
	add("class", e.Class)
	add("gate", e.Gate)
	add("dir", e.Direction)
	if e.Anchor != nil {
		add("anchor", fmt.Sprint(*e.Anchor))
	}
	if e.Value != nil {
		add("value", fmt.Sprint(*e.Value))
	}
	if e.AfterMs != nil {
		add("after", fmt.Sprintf("%dms", *e.AfterMs))
	}
	if e.BeforeMs != nil {
		add("before", fmt.Sprintf("%dms", *e.BeforeMs))
	}
	return s
}

// #endregion describe

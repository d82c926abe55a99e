package arbiter

import "time"

// #region source
// Source identifies a writer of the macro parameter space.
type Source string

const (
	SourceNone    Source = "none"
	SourceRuntime Source = "runtime"
	SourceAI      Source = "ai"
	SourceHuman   Source = "human"
)

// Rank orders sources: human > ai > runtime > none.
func (s Source) Rank() int {
	switch s {
	case SourceHuman:
		return 3
	case SourceAI:
		return 2
	case SourceRuntime:
		return 1
	default:
		return 0
	}
}

// Compare returns -1, 0 or 1 as a ranks below, equal to, or above b.
func Compare(a, b Source) int {
	ra, rb := a.Rank(), b.Rank()
	switch {
	case ra < rb:
		return -1
	case ra > rb:
		return 1
	}
	return 0
}

// #endregion source

// #region config
// Config holds default hold durations per source.
type Config struct {
	HumanHold   time.Duration `yaml:"human_hold"`
	AIHold      time.Duration `yaml:"ai_hold"`
	RuntimeHold time.Duration `yaml:"runtime_hold"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HumanHold:   4 * time.Second,
		AIHold:      2 * time.Second,
		RuntimeHold: 500 * time.Millisecond,
	}
}

// HoldFor returns the configured hold for a source.
func (c Config) HoldFor(s Source) time.Duration {
	switch s {
	case SourceHuman:
		return c.HumanHold
	case SourceAI:
		return c.AIHold
	case SourceRuntime:
		return c.RuntimeHold
	}
	return 0
}

// #endregion config

// #region ownership
// Ownership is the single global lock over the macro space.
type Ownership struct {
	Owner Source    `json:"owner"`
	Until time.Time `json:"until"`
}

// Grant is the result of a Request.
type Grant struct {
	Granted bool
	Owner   Source
	Until   time.Time
	Reason  string // "granted" | "extended" | "preempted" | "denied"
}

// Event records an ownership change.
type Event struct {
	From   Source    `json:"from"`
	To     Source    `json:"to"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// #endregion ownership

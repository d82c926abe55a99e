package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Gates
	gateState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "liveweb_gate_state",
			Help: "Current trust gate value (1 = true)",
		},
		[]string{"gate"},
	)

	gateFlipsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liveweb_gate_flips_total",
			Help: "Total number of gate flips",
		},
		[]string{"gate", "value"},
	)

	sectionState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "liveweb_section_active",
			Help: "Active musical section (1 for the active one)",
		},
		[]string{"section"},
	)

	// Preset switching
	switchOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liveweb_switch_outcomes_total",
			Help: "Total number of preset switch outcomes",
		},
		[]string{"scope", "origin", "outcome"},
	)

	switchDenialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liveweb_switch_denials_total",
			Help: "Total number of switch denial reasons",
		},
		[]string{"reason"},
	)

	switchLoadSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "liveweb_switch_load_seconds",
			Help:    "Preset load duration from dispatch to completion",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	prefetchCacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "liveweb_prefetch_cache_hits_total",
			Help: "Total number of preset loads served from the prefetch cache",
		},
	)

	// Resolution
	resolutionScale = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "liveweb_resolution_scale",
			Help: "Current render resolution scale",
		},
	)

	resolutionCommitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liveweb_resolution_commits_total",
			Help: "Total number of resolution ladder commits",
		},
		[]string{"direction"},
	)

	// Regulation
	regulatorOutput = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "liveweb_regulator_output",
			Help: "Latest regulator output",
		},
		[]string{"loop"},
	)

	damperMultiplier = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "liveweb_damper_multiplier",
			Help: "Current coupling damper amplitude multiplier",
		},
	)

	ownershipChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liveweb_ownership_changes_total",
			Help: "Total number of macro ownership changes",
		},
		[]string{"to", "reason"},
	)

	framesProcessedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "liveweb_audio_frames_processed_total",
			Help: "Total number of audio frames processed by the scheduler",
		},
	)

	lastFrameTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "liveweb_last_frame_timestamp_seconds",
			Help: "Timestamp of the last processed audio frame",
		},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{})
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// SetGate records the current value of a gate.
func SetGate(name string, value bool) {
	gateState.WithLabelValues(name).Set(boolValue(value))
}

// RecordGateFlip counts a gate transition.
func RecordGateFlip(name string, value bool) {
	v := "false"
	if value {
		v = "true"
	}
	gateFlipsTotal.WithLabelValues(name, v).Inc()
}

// SetSection marks active as the only active section.
func SetSection(active string, all []string) {
	for _, s := range all {
		sectionState.WithLabelValues(s).Set(boolValue(s == active))
	}
}

// RecordSwitch counts an outcome and its denial reasons.
func RecordSwitch(scope, origin, outcome string, reasons []string, cacheHit bool, total time.Duration) {
	switchOutcomesTotal.WithLabelValues(scope, origin, outcome).Inc()
	for _, r := range reasons {
		switchDenialsTotal.WithLabelValues(r).Inc()
	}
	if cacheHit {
		prefetchCacheHitsTotal.Inc()
	}
	if total > 0 {
		switchLoadSeconds.Observe(total.Seconds())
	}
}

// SetResolution records the active scale.
func SetResolution(scale float64) {
	resolutionScale.Set(scale)
}

// RecordResolutionCommit counts a ladder move.
func RecordResolutionCommit(direction string) {
	resolutionCommitsTotal.WithLabelValues(direction).Inc()
}

// SetRegulator records a loop output ("opacity", "color", "fg", "bg").
func SetRegulator(loop string, value float64) {
	regulatorOutput.WithLabelValues(loop).Set(value)
}

// SetDamperMultiplier records the active dampening factor.
func SetDamperMultiplier(v float64) {
	damperMultiplier.Set(v)
}

// RecordOwnershipChange counts an arbiter handoff.
func RecordOwnershipChange(to, reason string) {
	ownershipChangesTotal.WithLabelValues(to, reason).Inc()
}

// RecordFrame counts a processed audio frame.
func RecordFrame(now time.Time) {
	framesProcessedTotal.Inc()
	lastFrameTimestamp.Set(float64(now.UnixNano()) / 1e9)
}

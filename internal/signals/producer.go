package signals

import (
	"math"

	"github.com/danielpatrickdp/liveweb-controlplane/internal/timing"
)

// #region producer

// Producer fills in derived beat signals for frames that lack them.
type Producer struct {
	config ProducerConfig
	tempo  *timing.Window
	flux   *timing.Window
}

// NewProducer creates a Producer.
func NewProducer(config ProducerConfig) *Producer {
	return &Producer{
		config: config,
		tempo:  timing.NewWindow(config.HistorySize),
		flux:   timing.NewWindow(config.HistorySize),
	}
}

// #endregion producer

// #region produce

// Produce returns the frame with BeatConfidence/BeatStability populated.
// Frames that already carry beat info pass through unchanged.
func (p *Producer) Produce(frame AudioFrame) AudioFrame {
	if frame.Tempo > 0 {
		p.tempo.Add(frame.Tempo)
	}
	p.flux.Add(frame.Flux)

	if frame.HasBeatInfo {
		return frame
	}
	frame.BeatStability = p.stability()
	frame.BeatConfidence = p.confidence(frame)
	frame.HasBeatInfo = true
	return frame
}

// #endregion produce

// #region stability

// stability maps tempo jitter (stddev) to [0, 1]. No tempo history → 0.
func (p *Producer) stability() float64 {
	vals := p.tempo.Values()
	if len(vals) < 4 {
		return 0
	}
	mean := 0.0
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))
	var variance float64
	for _, v := range vals {
		d := v - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(len(vals)))
	return timing.Clamp(1-std/p.config.TempoJitterMax, 0, 1)
}

// #endregion stability

// #region confidence

// confidence approximates beat confidence from how peaky the onset flux is
// relative to its recent mean: a steady pulse produces clear peaks.
func (p *Producer) confidence(frame AudioFrame) float64 {
	if frame.Silent || frame.Tempo <= 0 {
		return 0
	}
	mean := p.flux.Mean()
	peak := p.flux.Percentile(0.9)
	if peak <= 0 {
		return 0
	}
	contrast := (peak - mean) / peak
	return timing.Clamp(contrast*1.5, 0, 1)
}

// #endregion confidence

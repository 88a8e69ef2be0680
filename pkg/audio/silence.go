package audio

import (
	"context"
	"log/slog"
	"time"

	"github.com/sproutbotics/robin/pkg/logging"
)

// SilenceDetectorConfig tunes the end-of-speech detector.
type SilenceDetectorConfig struct {
	// Threshold is the normalized RMS below which a sample counts as
	// silent.
	Threshold float64
	// Duration is how long samples must stay below Threshold before the
	// detector fires.
	Duration time.Duration
	// RequireSpeech arms the countdown only after at least one sample
	// reached Threshold, so an open turn in a quiet room is not ended
	// before the student speaks.
	RequireSpeech bool
}

// SilenceDetector watches one listening period's energy samples and
// fires its callback exactly once when sustained silence is observed.
// A new detector is created for each listening period.
type SilenceDetector struct {
	threshold     float64
	duration      time.Duration
	requireSpeech bool
	onSilence     func()
	log           *slog.Logger
}

func NewSilenceDetector(cfg SilenceDetectorConfig, onSilence func(), log *slog.Logger) *SilenceDetector {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.015
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 2 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &SilenceDetector{
		threshold:     cfg.Threshold,
		duration:      cfg.Duration,
		requireSpeech: cfg.RequireSpeech,
		onSilence:     onSilence,
		log:           logging.NewComponentLogger(log, "silence_detector"),
	}
}

// Watch consumes samples until the stream closes, ctx is cancelled, or
// sustained silence fires the callback. Timing is taken from sample
// timestamps, not the wall clock. After firing the detector stops
// evaluating: at most one callback per Watch.
func (d *SilenceDetector) Watch(ctx context.Context, samples <-chan Sample) {
	hadSpeech := false
	var silentSince time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-samples:
			if !ok {
				return
			}
			if s.Energy >= d.threshold {
				hadSpeech = true
				silentSince = time.Time{}
				continue
			}
			if d.requireSpeech && !hadSpeech {
				continue
			}
			if silentSince.IsZero() {
				silentSince = s.At
				continue
			}
			if s.At.Sub(silentSince) >= d.duration {
				d.log.Debug("silence_threshold_reached",
					slog.Float64("threshold", d.threshold),
					slog.Duration("duration", d.duration))
				if d.onSilence != nil {
					d.onSilence()
				}
				return
			}
		}
	}
}

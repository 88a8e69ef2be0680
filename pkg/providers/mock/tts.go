package mock

import (
	"context"
	"time"

	"github.com/sproutbotics/robin/pkg/adapters/tts"
)

type TTSConfig struct {
	SampleRate int
	// MSPerChar sizes the silent audio buffer so playback time tracks
	// the length of the reply.
	MSPerChar int
	Delay     time.Duration
	Err       error
}

// Synthesizer renders silent PCM proportional to the reply length.
type Synthesizer struct {
	cfg TTSConfig
}

func NewSynthesizer(cfg TTSConfig) *Synthesizer {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.MSPerChar <= 0 {
		cfg.MSPerChar = 50
	}
	return &Synthesizer{cfg: cfg}
}

var _ tts.Synthesizer = (*Synthesizer)(nil)

func (s *Synthesizer) Name() string { return "mock_tts" }

func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if s.cfg.Delay > 0 {
		select {
		case <-time.After(s.cfg.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.cfg.Err != nil {
		return nil, s.cfg.Err
	}
	samples := s.cfg.SampleRate * s.cfg.MSPerChar * len(text) / 1000
	if samples == 0 {
		samples = s.cfg.SampleRate / 10
	}
	return make([]byte, samples*2), nil
}

package mock

import (
	"context"
	"time"

	"github.com/sproutbotics/robin/pkg/adapters/stt"
)

type STTConfig struct {
	Transcript string
	Delay      time.Duration
	Err        error
}

// Transcriber returns a canned transcript after an optional delay. It
// stands in for a speech provider when running without API keys.
type Transcriber struct {
	cfg STTConfig
}

func NewTranscriber(cfg STTConfig) *Transcriber {
	if cfg.Transcript == "" && cfg.Err == nil {
		cfg.Transcript = "mock transcript"
	}
	return &Transcriber{cfg: cfg}
}

var _ stt.Transcriber = (*Transcriber)(nil)

func (t *Transcriber) Name() string { return "mock_stt" }

func (t *Transcriber) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	if t.cfg.Delay > 0 {
		select {
		case <-time.After(t.cfg.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if t.cfg.Err != nil {
		return "", t.cfg.Err
	}
	return t.cfg.Transcript, nil
}

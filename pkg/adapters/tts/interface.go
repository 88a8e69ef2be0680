package tts

import "context"

// Synthesizer defines the contract for any TTS vendor implementation.
type Synthesizer interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Synthesize renders text as 16-bit little-endian mono PCM.
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

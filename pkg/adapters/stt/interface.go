package stt

import "context"

// Transcriber defines the contract for any STT vendor implementation.
// Implementations receive one buffered utterance and return the final
// transcript for it.
type Transcriber interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Transcribe converts 16-bit little-endian mono PCM into text.
	Transcribe(ctx context.Context, pcm []byte) (string, error)
}

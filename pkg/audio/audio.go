package audio

import (
	"context"
	"encoding/binary"
	"math"
	"time"
)

// Sample is one energy observation from capture: the RMS of a PCM chunk
// normalized to [0,1], stamped with the time the chunk was observed.
type Sample struct {
	Energy float64
	At     time.Time
}

// Capture acquires microphone audio while a turn is listening. Start
// begins accumulation, Samples yields energy observations for the
// silence detector, and Stop ends capture and returns the accumulated
// mono 16-bit little-endian PCM buffer. Stop must be prompt: it swaps
// out a buffer, it does not wait on the device.
type Capture interface {
	Start(ctx context.Context) error
	Samples() <-chan Sample
	Stop() ([]byte, error)
}

// Player renders synthesized PCM to the speaker. Play returns when
// playback finishes or ctx is cancelled.
type Player interface {
	Play(ctx context.Context, pcm []byte) error
}

// RMS computes the root-mean-square energy of 16-bit little-endian mono
// PCM, normalized to [0,1].
func RMS(pcm []byte) float64 {
	if len(pcm) < 2 {
		return 0
	}
	var sum float64
	n := 0
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int16(binary.LittleEndian.Uint16(pcm[i:]))
		f := float64(s) / 32768.0
		sum += f * f
		n++
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(n))
}

// Duration returns the play time of a mono 16-bit PCM buffer.
func Duration(pcm []byte, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := len(pcm) / 2
	return time.Duration(float64(samples) / float64(sampleRate) * float64(time.Second))
}

package mock

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/sproutbotics/robin/pkg/audio"
)

type CaptureConfig struct {
	SampleRate int
	ChunkMS    int
	// Script is the energy envelope played back one value per chunk.
	// After it runs out the capture emits silence, which lets the
	// silence detector end the turn on its own. Empty means the default
	// burst of speech followed by silence.
	Script []float64
}

// Capture synthesizes microphone input from a scripted energy envelope,
// pacing chunks in real time so a demo run behaves like a live device.
type Capture struct {
	cfg        CaptureConfig
	chunkBytes int

	mu      sync.Mutex
	active  bool
	gen     int
	buf     []byte
	samples chan audio.Sample
	cancel  context.CancelFunc
}

func NewCapture(cfg CaptureConfig) *Capture {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.ChunkMS <= 0 {
		cfg.ChunkMS = 100
	}
	if len(cfg.Script) == 0 {
		cfg.Script = defaultScript()
	}
	return &Capture{
		cfg:        cfg,
		chunkBytes: cfg.SampleRate * cfg.ChunkMS / 1000 * 2,
	}
}

// defaultScript is about a second of speech; trailing silence comes
// from the generator itself.
func defaultScript() []float64 {
	script := make([]float64, 10)
	for i := range script {
		script[i] = 0.3
	}
	return script
}

var _ audio.Capture = (*Capture)(nil)

func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return errors.New("capture already active")
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.buf = nil
	c.samples = make(chan audio.Sample, 64)
	c.active = true
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	go c.run(runCtx, gen)
	return nil
}

func (c *Capture) Samples() <-chan audio.Sample {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.samples
}

func (c *Capture) Stop() ([]byte, error) {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.active {
		c.active = false
		close(c.samples)
	}
	pcm := c.buf
	c.buf = nil
	c.mu.Unlock()
	return pcm, nil
}

func (c *Capture) run(ctx context.Context, gen int) {
	ticker := time.NewTicker(time.Duration(c.cfg.ChunkMS) * time.Millisecond)
	defer ticker.Stop()

	step := 0
	for {
		select {
		case <-ctx.Done():
			c.halt(gen)
			return
		case <-ticker.C:
			energy := 0.0
			if step < len(c.cfg.Script) {
				energy = c.cfg.Script[step]
			}
			step++
			if !c.emit(gen, energy) {
				return
			}
		}
	}
}

func (c *Capture) emit(gen int, energy float64) bool {
	chunk := make([]byte, c.chunkBytes)
	amplitude := uint16(energy * 32767)
	for i := 0; i+1 < len(chunk); i += 2 {
		binary.LittleEndian.PutUint16(chunk[i:], amplitude)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || !c.active {
		return false
	}
	c.buf = append(c.buf, chunk...)
	select {
	case c.samples <- audio.Sample{Energy: energy, At: time.Now()}:
	default:
	}
	return true
}

func (c *Capture) halt(gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || !c.active {
		return
	}
	c.active = false
	close(c.samples)
}

type PlayerConfig struct {
	SampleRate int
	// Realtime makes Play block for the audio's play time, matching a
	// physical speaker. Off, Play returns immediately.
	Realtime bool
	Err      error
}

type Player struct {
	cfg PlayerConfig

	mu     sync.Mutex
	played [][]byte
}

func NewPlayer(cfg PlayerConfig) *Player {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	return &Player{cfg: cfg}
}

var _ audio.Player = (*Player)(nil)

func (p *Player) Play(ctx context.Context, pcm []byte) error {
	if p.cfg.Err != nil {
		return p.cfg.Err
	}
	p.mu.Lock()
	p.played = append(p.played, pcm)
	p.mu.Unlock()

	if p.cfg.Realtime {
		select {
		case <-time.After(audio.Duration(pcm, p.cfg.SampleRate)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Played returns the buffers handed to the speaker so far.
func (p *Player) Played() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.played...)
}

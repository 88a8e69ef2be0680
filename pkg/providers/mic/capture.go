package mic

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/sproutbotics/robin/pkg/audio"
)

// Capture accumulates microphone PCM for one listening period and emits
// an energy sample per chunk of captured audio. The malgo device is
// created once and started per period; cancelling the period's context
// halts the device without waiting for Stop.
type Capture struct {
	cfg        Config
	logger     *slog.Logger
	chunkBytes int

	mu      sync.Mutex
	device  *malgo.Device
	active  bool
	gen     int
	buf     []byte
	chunk   []byte
	samples chan audio.Sample
}

func newCapture(allocated *malgo.AllocatedContext, cfg Config, logger *slog.Logger) (*Capture, error) {
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * cfg.Channels

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.Capture.Format = format
	deviceConfig.Capture.Channels = uint32(cfg.Channels)
	deviceConfig.Alsa.NoMMap = 1
	deviceConfig.PerformanceProfile = malgo.LowLatency

	c := &Capture{
		cfg:        cfg,
		logger:     logger,
		chunkBytes: cfg.SampleRate * cfg.ChunkMS / 1000 * bytesPerFrame,
	}

	device, err := malgo.InitDevice(allocated.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if n == 0 || len(pInput) < n {
				return
			}
			c.onData(pInput[:n])
		},
	})
	if err != nil {
		return nil, err
	}
	c.device = device
	return c, nil
}

var _ audio.Capture = (*Capture)(nil)

func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	device := c.device
	if device == nil {
		c.mu.Unlock()
		return errors.New("capture device released")
	}
	if c.active {
		c.mu.Unlock()
		return errors.New("capture already active")
	}
	c.buf = nil
	c.chunk = nil
	c.samples = make(chan audio.Sample, 64)
	c.active = true
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	if err := device.Start(); err != nil {
		c.mu.Lock()
		c.active = false
		close(c.samples)
		c.samples = nil
		c.mu.Unlock()
		return err
	}
	c.logger.Debug("capture_started",
		slog.Int("sample_rate", c.cfg.SampleRate))

	go func() {
		<-ctx.Done()
		c.halt(gen)
	}()
	return nil
}

func (c *Capture) Samples() <-chan audio.Sample {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.samples
}

// Stop halts the device and swaps out the accumulated buffer. It is
// safe after the period's context has already halted capture: whatever
// was buffered up to that point is returned.
func (c *Capture) Stop() ([]byte, error) {
	c.mu.Lock()
	device := c.device
	wasActive := c.active
	c.active = false
	if wasActive && c.samples != nil {
		close(c.samples)
	}
	pcm := c.buf
	c.buf = nil
	c.chunk = nil
	c.mu.Unlock()

	if device == nil {
		return nil, errors.New("capture device released")
	}
	if wasActive {
		if err := device.Stop(); err != nil {
			return nil, err
		}
	}
	c.logger.Debug("capture_stopped",
		slog.Int("audio_bytes", len(pcm)))
	return pcm, nil
}

// halt ends one listening period from its context watcher. The
// generation check keeps a stale watcher from touching a later period.
func (c *Capture) halt(gen int) {
	c.mu.Lock()
	if gen != c.gen || !c.active {
		c.mu.Unlock()
		return
	}
	device := c.device
	c.active = false
	if c.samples != nil {
		close(c.samples)
	}
	c.mu.Unlock()

	if device != nil {
		if err := device.Stop(); err != nil {
			c.logger.Warn("capture_device_stop_failed",
				slog.String("error", err.Error()))
		}
	}
}

func (c *Capture) onData(pcm []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return
	}
	c.buf = append(c.buf, pcm...)
	c.chunk = append(c.chunk, pcm...)
	for len(c.chunk) >= c.chunkBytes {
		part := c.chunk[:c.chunkBytes]
		select {
		case c.samples <- audio.Sample{Energy: audio.RMS(part), At: time.Now()}:
		default:
		}
		c.chunk = c.chunk[c.chunkBytes:]
	}
}

func (c *Capture) uninit() {
	c.mu.Lock()
	device := c.device
	c.device = nil
	if c.active {
		c.active = false
		if c.samples != nil {
			close(c.samples)
		}
	}
	c.mu.Unlock()
	if device != nil {
		device.Uninit()
	}
}

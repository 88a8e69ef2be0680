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

// Player renders one reply at a time through the speaker device. The
// device starts on first use and keeps running between replies; the
// data callback pulls from the pending buffer and malgo fills the gaps
// with silence.
type Player struct {
	cfg    Config
	logger *slog.Logger
	// tail covers audio already handed to the device when the pending
	// buffer empties.
	tail time.Duration

	mu      sync.Mutex
	device  *malgo.Device
	started bool
	pending []byte
	done    chan struct{}
}

func newPlayer(allocated *malgo.AllocatedContext, cfg Config, logger *slog.Logger) (*Player, error) {
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * cfg.Channels

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.Playback.Format = format
	deviceConfig.Playback.Channels = uint32(cfg.Channels)
	deviceConfig.Alsa.NoMMap = 1
	periodFrames := cfg.SampleRate / 10
	deviceConfig.PeriodSizeInFrames = uint32(periodFrames)
	deviceConfig.Periods = 4

	p := &Player{
		cfg:    cfg,
		logger: logger,
		tail:   time.Duration(4*periodFrames) * time.Second / time.Duration(cfg.SampleRate),
	}

	device, err := malgo.InitDevice(allocated.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, frameCount uint32) {
			p.onData(pOutput, int(frameCount)*bytesPerFrame)
		},
	})
	if err != nil {
		return nil, err
	}
	p.device = device
	return p, nil
}

var _ audio.Player = (*Player)(nil)

// Play blocks until the buffer has drained through the device or ctx is
// cancelled. Cancelling discards whatever has not been rendered yet.
func (p *Player) Play(ctx context.Context, pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}

	p.mu.Lock()
	device := p.device
	if device == nil {
		p.mu.Unlock()
		return errors.New("playback device released")
	}
	if p.done != nil {
		p.mu.Unlock()
		return errors.New("playback already in progress")
	}
	if !p.started {
		if err := device.Start(); err != nil {
			p.mu.Unlock()
			return err
		}
		p.started = true
	}
	done := make(chan struct{})
	p.pending = append([]byte(nil), pcm...)
	p.done = done
	p.mu.Unlock()

	p.logger.Debug("playback_started",
		slog.Int("audio_bytes", len(pcm)))

	select {
	case <-done:
		time.Sleep(p.tail)
		return nil
	case <-ctx.Done():
		p.mu.Lock()
		p.pending = nil
		if p.done == done {
			p.done = nil
		}
		p.mu.Unlock()
		return ctx.Err()
	}
}

func (p *Player) onData(pOutput []byte, need int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		return
	}
	if need > len(pOutput) {
		need = len(pOutput)
	}
	n := copy(pOutput[:need], p.pending)
	p.pending = p.pending[n:]
	if len(p.pending) == 0 && p.done != nil {
		close(p.done)
		p.done = nil
	}
}

func (p *Player) uninit() {
	p.mu.Lock()
	device := p.device
	p.device = nil
	p.pending = nil
	if p.done != nil {
		close(p.done)
		p.done = nil
	}
	p.mu.Unlock()
	if device != nil {
		device.Uninit()
	}
}

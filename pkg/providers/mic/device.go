package mic

import (
	"fmt"
	"log/slog"

	"github.com/gen2brain/malgo"

	"github.com/sproutbotics/robin/pkg/logging"
)

type Config struct {
	SampleRate int
	Channels   int
	// ChunkMS is the cadence of energy samples handed to the silence
	// detector, in milliseconds of audio per sample.
	ChunkMS int
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
	if c.ChunkMS <= 0 {
		c.ChunkMS = 100
	}
	return c
}

// Device owns the miniaudio context behind the robot's microphone and
// speaker. Capture and playback share the one context; Close releases
// both devices and the context itself.
type Device struct {
	cfg     Config
	context *malgo.AllocatedContext
	logger  *slog.Logger
	capture *Capture
	player  *Player
}

func Open(cfg Config) (*Device, error) {
	cfg = cfg.withDefaults()
	allocated, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {})
	if err != nil {
		return nil, fmt.Errorf("audio context init: %w", err)
	}

	d := &Device{
		cfg:     cfg,
		context: allocated,
		logger:  logging.NewComponentLogger(slog.Default(), "mic"),
	}
	d.capture, err = newCapture(allocated, cfg, d.logger)
	if err != nil {
		d.release()
		return nil, fmt.Errorf("capture device init: %w", err)
	}
	d.player, err = newPlayer(allocated, cfg, d.logger)
	if err != nil {
		d.release()
		return nil, fmt.Errorf("playback device init: %w", err)
	}
	return d, nil
}

func (d *Device) Capture() *Capture { return d.capture }

func (d *Device) Player() *Player { return d.player }

func (d *Device) Close() error {
	d.release()
	return nil
}

func (d *Device) release() {
	if d.capture != nil {
		d.capture.uninit()
		d.capture = nil
	}
	if d.player != nil {
		d.player.uninit()
		d.player = nil
	}
	if d.context != nil {
		_ = d.context.Uninit()
		d.context.Free()
		d.context = nil
	}
}

package playback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/eleven-am/voice-link/internal/audio"
)

// MalgoDevice plays S16 mono audio on the default system output.
type MalgoDevice struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	log    *slog.Logger

	mu      sync.Mutex
	pending []byte
	done    chan struct{}
}

// MalgoFactory returns a DeviceFactory for the default speaker.
func MalgoFactory(log *slog.Logger) DeviceFactory {
	return func(sampleRate int) (Device, error) {
		return NewMalgoDevice(sampleRate, log)
	}
}

func NewMalgoDevice(sampleRate int, log *slog.Logger) (*MalgoDevice, error) {
	if log == nil {
		log = slog.Default()
	}
	d := &MalgoDevice{log: log.With("component", "speaker")}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		d.log.Debug("miniaudio", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = 1
	cfg.SampleRate = uint32(sampleRate)
	cfg.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: d.onSamples,
	})
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("init playback device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("start playback device: %w", err)
	}

	d.ctx = ctx
	d.device = device
	return d, nil
}

func (d *MalgoDevice) onSamples(out, _ []byte, _ uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := copy(out, d.pending)
	d.pending = d.pending[n:]
	clear(out[n:])

	if len(d.pending) == 0 && d.done != nil {
		close(d.done)
		d.done = nil
	}
}

func (d *MalgoDevice) Play(ctx context.Context, samples []float32) error {
	pcm := audio.Int16ToPCMBytes(audio.Float32ToInt16(samples))
	done := make(chan struct{})

	d.mu.Lock()
	d.pending = pcm
	d.done = done
	d.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		d.mu.Lock()
		d.pending = nil
		d.done = nil
		d.mu.Unlock()
		return ctx.Err()
	}
}

func (d *MalgoDevice) Resume() error {
	return d.device.Start()
}

func (d *MalgoDevice) Suspended() bool {
	return !d.device.IsStarted()
}

func (d *MalgoDevice) Close() error {
	d.device.Uninit()
	err := d.ctx.Uninit()
	d.ctx.Free()
	return err
}

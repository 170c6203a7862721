package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/eleven-am/voice-link/internal/audio"
)

// MicSource captures the default input device as S16 mono at 24kHz.
type MicSource struct {
	logger *slog.Logger
	chunks chan []int16

	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	dropped int
}

func NewMicSource(logger *slog.Logger) *MicSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &MicSource{
		logger: logger.With("component", "capture", "source", "mic"),
		chunks: make(chan []int16, 64),
	}
}

func (m *MicSource) start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device != nil {
		return nil
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		m.logger.Debug("miniaudio", "message", message)
	})
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = 1
	cfg.SampleRate = audio.SampleRate
	cfg.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: m.onFrames,
	})
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("init capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("start capture device: %w", err)
	}

	m.ctx = ctx
	m.device = device
	return nil
}

func (m *MicSource) onFrames(_, input []byte, _ uint32) {
	samples := audio.PCMBytesToInt16(input)
	select {
	case m.chunks <- samples:
	default:
		m.mu.Lock()
		m.dropped++
		m.mu.Unlock()
	}
}

func (m *MicSource) Run(ctx context.Context, sink Sink) error {
	if err := m.start(); err != nil {
		return err
	}
	m.logger.Info("microphone capture started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case samples := <-m.chunks:
			if err := sink(ctx, samples); err != nil {
				return err
			}
		}
	}
}

func (m *MicSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device == nil {
		return nil
	}
	m.device.Uninit()
	err := m.ctx.Uninit()
	m.ctx.Free()
	m.device = nil
	m.ctx = nil
	if m.dropped > 0 {
		m.logger.Warn("microphone chunks dropped", "count", m.dropped)
	}
	return err
}

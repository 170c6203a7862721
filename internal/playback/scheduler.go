package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eleven-am/voice-link/internal/metrics"
)

const (
	DefaultQueueSize = 512
	DefaultGrace     = 50 * time.Millisecond
)

var (
	ErrQueueFull = errors.New("playback queue full")
	ErrClosed    = errors.New("playback scheduler closed")
)

type Config struct {
	SampleRate int
	QueueSize  int
	Grace      time.Duration
	AgentID    string
}

type buffer struct {
	gen       uint64
	utterance string
	samples   []float32
}

// Scheduler plays decoded buffers one at a time, in arrival order, on a
// single lazily created output device.
type Scheduler struct {
	cfg     Config
	factory DeviceFactory
	log     *slog.Logger
	metrics *metrics.Metrics

	queue  chan buffer
	gen    atomic.Uint64
	active atomic.Bool

	mu        sync.Mutex
	current   context.CancelFunc
	utterance string

	devMu  sync.Mutex
	device Device

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	closed    atomic.Bool
}

func NewScheduler(cfg Config, factory DeviceFactory, m *metrics.Metrics, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 24000
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultGrace
	}
	if factory == nil {
		factory = NewNullDevice
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cfg:     cfg,
		factory: factory,
		log:     log.With("component", "playback"),
		metrics: m,
		queue:   make(chan buffer, cfg.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	s.wg.Add(1)
	go s.run()
	return s
}

// Enqueue appends samples to the playback queue. A full queue drops the new
// buffer and returns ErrQueueFull.
func (s *Scheduler) Enqueue(utteranceID string, samples []float32) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if len(samples) == 0 {
		return nil
	}

	b := buffer{gen: s.gen.Load(), utterance: utteranceID, samples: samples}
	select {
	case s.queue <- b:
		return nil
	default:
		s.log.Warn("playback queue full, dropping buffer", "utterance", utteranceID, "samples", len(samples))
		s.metrics.BufferDropped(s.cfg.AgentID)
		return ErrQueueFull
	}
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case b := <-s.queue:
			if b.gen != s.gen.Load() {
				continue
			}
			s.play(b)

			if len(s.queue) > 0 {
				continue
			}
			select {
			case <-time.After(s.cfg.Grace):
			case <-s.ctx.Done():
				return
			}
			if len(s.queue) == 0 {
				s.active.Store(false)
			}
		}
	}
}

func (s *Scheduler) play(b buffer) {
	s.mu.Lock()
	if b.gen != s.gen.Load() {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.current = cancel
	s.utterance = b.utterance
	s.active.Store(true)
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		s.current = nil
		s.mu.Unlock()
	}()

	s.devMu.Lock()
	defer s.devMu.Unlock()
	if ctx.Err() != nil {
		return
	}

	device, err := s.ensureDevice()
	if err != nil {
		s.log.Error("failed to open output device", "error", err)
		return
	}

	if err := device.Play(ctx, b.samples); err != nil {
		if ctx.Err() == nil {
			s.log.Error("playback failed", "utterance", b.utterance, "error", err)
		}
		return
	}
	s.metrics.BufferPlayed(s.cfg.AgentID, bufferDuration(len(b.samples), s.cfg.SampleRate).Seconds())
}

// ensureDevice must be called with devMu held.
func (s *Scheduler) ensureDevice() (Device, error) {
	if s.device == nil {
		device, err := s.factory(s.cfg.SampleRate)
		if err != nil {
			return nil, err
		}
		s.device = device
		s.log.Debug("output device opened", "sample_rate", s.cfg.SampleRate)
	}
	if s.device.Suspended() {
		if err := s.device.Resume(); err != nil {
			return nil, err
		}
	}
	return s.device, nil
}

// Interrupt drops every pending buffer and stops the one currently rendering.
// It returns the number of pending buffers discarded.
func (s *Scheduler) Interrupt() int {
	s.mu.Lock()
	s.gen.Add(1)
	if s.current != nil {
		s.current()
	}
	s.utterance = ""
	s.mu.Unlock()

	dropped := 0
	for {
		select {
		case <-s.queue:
			dropped++
		default:
			s.active.Store(false)
			if dropped > 0 {
				s.log.Debug("playback interrupted", "dropped", dropped)
			}
			return dropped
		}
	}
}

// Cleanup interrupts playback and releases the output device. The device is
// recreated on the next enqueued buffer.
func (s *Scheduler) Cleanup() error {
	s.Interrupt()

	s.devMu.Lock()
	defer s.devMu.Unlock()
	if s.device == nil {
		return nil
	}
	err := s.device.Close()
	s.device = nil
	return err
}

func (s *Scheduler) IsPlaying() bool {
	return s.active.Load()
}

// Current returns the utterance whose buffer is rendering, if any.
func (s *Scheduler) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ""
	}
	return s.utterance
}

// Pending returns how many buffers wait behind the one rendering.
func (s *Scheduler) Pending() int {
	return len(s.queue)
}

// Close stops the consumer goroutine and releases the device.
func (s *Scheduler) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		err = s.Cleanup()
		s.cancel()
		s.wg.Wait()
	})
	return err
}

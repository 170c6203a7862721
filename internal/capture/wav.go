package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/youpy/go-wav"

	"github.com/eleven-am/voice-link/internal/audio"
)

const chunkDuration = 20 * time.Millisecond

var ErrUnsupportedFormat = errors.New("unsupported wav format")

type wavReader interface {
	io.Reader
	io.ReaderAt
}

// WAVSource streams a 16-bit PCM WAV file, downmixed to mono and resampled
// to 24kHz. With Realtime set it paces chunks at playback speed.
type WAVSource struct {
	r        wavReader
	closer   io.Closer
	realtime bool
	logger   *slog.Logger
}

func OpenWAV(path string, realtime bool, logger *slog.Logger) (*WAVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav: %w", err)
	}
	s := NewWAVSource(f, realtime, logger)
	s.closer = f
	return s, nil
}

func NewWAVSource(r wavReader, realtime bool, logger *slog.Logger) *WAVSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &WAVSource{
		r:        r,
		realtime: realtime,
		logger:   logger.With("component", "capture", "source", "wav"),
	}
}

func (s *WAVSource) Run(ctx context.Context, sink Sink) error {
	reader := wav.NewReader(s.r)
	format, err := reader.Format()
	if err != nil {
		return fmt.Errorf("read wav format: %w", err)
	}
	if format.AudioFormat != wav.AudioFormatPCM || format.BitsPerSample != 16 || format.NumChannels == 0 {
		return fmt.Errorf("%w: format=%d bits=%d channels=%d",
			ErrUnsupportedFormat, format.AudioFormat, format.BitsPerSample, format.NumChannels)
	}

	channels := int(format.NumChannels)
	rate := int(format.SampleRate)
	s.logger.Info("streaming wav", "sample_rate", rate, "channels", channels)

	frameBytes := 2 * channels
	chunkFrames := rate * int(chunkDuration/time.Millisecond) / 1000
	buf := make([]byte, chunkFrames*frameBytes)

	ticker := time.NewTicker(chunkDuration)
	defer ticker.Stop()

	for {
		n, err := io.ReadFull(reader, buf)
		if n > 0 {
			samples := audio.ResampleInt16(downmix(audio.PCMBytesToInt16(buf[:n-n%frameBytes]), channels), rate, audio.SampleRate)
			if err := sink(ctx, samples); err != nil {
				return err
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read wav: %w", err)
		}

		if s.realtime {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		} else if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (s *WAVSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func downmix(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	out := make([]int16, len(samples)/channels)
	for i := range out {
		sum := 0
		for c := 0; c < channels; c++ {
			sum += int(samples[i*channels+c])
		}
		out[i] = int16(sum / channels)
	}
	return out
}

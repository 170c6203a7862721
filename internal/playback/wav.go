package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/youpy/go-wav"

	"github.com/eleven-am/voice-link/internal/audio"
)

var ErrDeviceClosed = errors.New("output device closed")

// WAVRecorder renders audio in real time into memory and writes it out as a
// 16-bit mono WAV file when closed. A buffer interrupted mid-play keeps only
// the portion that had elapsed.
type WAVRecorder struct {
	w          io.WriteCloser
	sampleRate int

	mu      sync.Mutex
	samples []int16
	closed  bool
}

func NewWAVRecorder(w io.WriteCloser, sampleRate int) *WAVRecorder {
	return &WAVRecorder{w: w, sampleRate: sampleRate}
}

// WAVFileFactory records to path. Every device after the first gets a
// numbered suffix so a recreated device does not overwrite earlier output.
func WAVFileFactory(path string) DeviceFactory {
	var mu sync.Mutex
	opened := 0

	return func(sampleRate int) (Device, error) {
		mu.Lock()
		opened++
		name := path
		if opened > 1 {
			ext := filepath.Ext(path)
			name = fmt.Sprintf("%s-%d%s", strings.TrimSuffix(path, ext), opened, ext)
		}
		mu.Unlock()

		f, err := os.Create(name)
		if err != nil {
			return nil, fmt.Errorf("create recording: %w", err)
		}
		return NewWAVRecorder(f, sampleRate), nil
	}
}

func (r *WAVRecorder) Play(ctx context.Context, samples []float32) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrDeviceClosed
	}

	total := bufferDuration(len(samples), r.sampleRate)
	elapsed, err := pace(ctx, total)

	n := len(samples)
	if err != nil && total > 0 {
		n = int(int64(len(samples)) * int64(elapsed) / int64(total))
		n = min(max(n, 0), len(samples))
	}

	r.mu.Lock()
	r.samples = append(r.samples, audio.Float32ToInt16(samples[:n])...)
	r.mu.Unlock()
	return err
}

func (r *WAVRecorder) Resume() error   { return nil }
func (r *WAVRecorder) Suspended() bool { return false }

// Recorded returns the number of samples captured so far.
func (r *WAVRecorder) Recorded() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

func (r *WAVRecorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	samples := r.samples
	r.samples = nil
	r.mu.Unlock()

	out := make([]wav.Sample, len(samples))
	for i, s := range samples {
		out[i].Values[0] = int(s)
	}

	writer := wav.NewWriter(r.w, uint32(len(out)), 1, uint32(r.sampleRate), 16)
	writeErr := writer.WriteSamples(out)
	closeErr := r.w.Close()
	if writeErr != nil {
		return fmt.Errorf("write recording: %w", writeErr)
	}
	return closeErr
}

var (
	_ Device = (*WAVRecorder)(nil)
	_ Device = (*MalgoDevice)(nil)
	_ Device = (*NullDevice)(nil)
)

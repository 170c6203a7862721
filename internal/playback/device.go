package playback

import (
	"context"
	"time"
)

// Device renders mono float32 samples at a fixed rate. Play blocks until the
// buffer has finished rendering or ctx is cancelled.
type Device interface {
	Play(ctx context.Context, samples []float32) error
	Resume() error
	Suspended() bool
	Close() error
}

// DeviceFactory creates the output device for the given sample rate.
type DeviceFactory func(sampleRate int) (Device, error)

func bufferDuration(samples, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// pace waits for d or until ctx is done and returns how long it waited.
func pace(ctx context.Context, d time.Duration) (time.Duration, error) {
	start := time.Now()
	if d <= 0 {
		return 0, ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return d, nil
	case <-ctx.Done():
		return time.Since(start), ctx.Err()
	}
}

// NullDevice discards audio but takes as long as real playback would.
type NullDevice struct {
	sampleRate int
}

func NewNullDevice(sampleRate int) (Device, error) {
	return &NullDevice{sampleRate: sampleRate}, nil
}

func (d *NullDevice) Play(ctx context.Context, samples []float32) error {
	_, err := pace(ctx, bufferDuration(len(samples), d.sampleRate))
	return err
}

func (d *NullDevice) Resume() error   { return nil }
func (d *NullDevice) Suspended() bool { return false }
func (d *NullDevice) Close() error    { return nil }

package capture

import (
	"context"
)

// Sink receives captured PCM16 mono samples at 24kHz.
type Sink func(ctx context.Context, samples []int16) error

// Source produces audio until it is exhausted or ctx is cancelled.
type Source interface {
	Run(ctx context.Context, sink Sink) error
	Close() error
}

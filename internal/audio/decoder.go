package audio

import (
	"errors"
)

var ErrDuplicate = errors.New("duplicate audio chunk")

var ErrEmptyChunk = errors.New("empty audio chunk")

// Decoder turns base64 PCM16 deltas into normalized float32 buffers, skipping
// payloads already seen for the same utterance.
type Decoder struct {
	dedup *Deduplicator
}

func NewDecoder(dedup *Deduplicator) *Decoder {
	if dedup == nil {
		dedup = NewDeduplicator()
	}
	return &Decoder{dedup: dedup}
}

// Decode returns ErrDuplicate for a repeated payload, ErrEmptyChunk when the
// payload holds no samples, and ErrInvalidEncoding or ErrOddLength for a
// malformed one.
func (d *Decoder) Decode(utteranceID, delta string) ([]float32, error) {
	if !d.dedup.Observe(utteranceID, []byte(delta)) {
		return nil, ErrDuplicate
	}

	samples, err := DecodePCM16(delta)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, ErrEmptyChunk
	}
	return Int16ToFloat32(samples), nil
}

// Done forgets the dedup state of a finished utterance.
func (d *Decoder) Done(utteranceID string) {
	d.dedup.Forget(utteranceID)
}

func (d *Decoder) Dedup() *Deduplicator {
	return d.dedup
}

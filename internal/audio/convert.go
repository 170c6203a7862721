package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// SampleRate is the PCM16 mono rate used in both directions.
	SampleRate = 24000
	// FrameSamples is the outbound frame size: 80ms at 24kHz.
	FrameSamples = 1920
)

var (
	ErrInvalidSamples  = errors.New("invalid audio samples")
	ErrInvalidEncoding = errors.New("invalid audio encoding")
	ErrOddLength       = errors.New("pcm16 payload has odd byte length")
)

func Resample(input []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate || len(input) == 0 {
		return input
	}

	ratio := float64(toRate) / float64(fromRate)
	output := make([]float32, int(math.Ceil(float64(len(input))*ratio)))

	for i := range output {
		srcPos := float64(i) / ratio
		srcIdx := int(srcPos)
		frac := float32(srcPos - float64(srcIdx))

		if srcIdx+1 < len(input) {
			output[i] = input[srcIdx]*(1-frac) + input[srcIdx+1]*frac
		} else if srcIdx < len(input) {
			output[i] = input[srcIdx]
		}
	}
	return output
}

func ResampleInt16(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate {
		return samples
	}
	return Float32ToInt16(Resample(Int16ToFloat32(samples), fromRate, toRate))
}

// PCMBytesToInt16 reads little-endian PCM16. A trailing odd byte is ignored.
func PCMBytesToInt16(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples
}

func Int16ToPCMBytes(samples []int16) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	return pcm
}

// Int16ToFloat32 normalizes to [-1, 1) by dividing by 32768.
func Int16ToFloat32(samples []int16) []float32 {
	result := make([]float32, len(samples))
	for i, s := range samples {
		result[i] = float32(s) / 32768.0
	}
	return result
}

// Float32ToInt16 clips to [-1, 1] before scaling.
func Float32ToInt16(samples []float32) []int16 {
	result := make([]int16, len(samples))
	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		result[i] = int16(s * 32767.0)
	}
	return result
}

// ValidateFloat32 rejects NaN and infinite samples. Out-of-range finite
// values are accepted and clipped on conversion.
func ValidateFloat32(samples []float32) error {
	for i, s := range samples {
		f := float64(s)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: sample %d is %v", ErrInvalidSamples, i, s)
		}
	}
	return nil
}

// EncodePCM16 renders samples as base64 little-endian PCM16, the text form
// carried in input_audio_buffer.append.
func EncodePCM16(samples []int16) string {
	return base64.StdEncoding.EncodeToString(Int16ToPCMBytes(samples))
}

func DecodePCM16(encoded string) ([]int16, error) {
	pcm, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrOddLength, len(pcm))
	}
	return PCMBytesToInt16(pcm), nil
}

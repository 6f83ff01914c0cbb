package audio

import (
	"encoding/base64"
	"fmt"
	"math"
)

// EncodeFrame converts float32 samples to the wire representation:
// base64-encoded little-endian 16-bit signed PCM. Samples are clamped
// to [-1, 1] before scaling so clipped input cannot wrap around.
func EncodeFrame(samples []float32) string {
	return base64.StdEncoding.EncodeToString(FrameBytes(samples))
}

// FrameBytes converts float32 samples to raw little-endian s16le PCM.
func FrameBytes(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := SampleToInt16(s)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// SampleToInt16 clamps a float sample to [-1, 1] and scales it to int16.
func SampleToInt16(s float32) int16 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	if s < 0 {
		return int16(s * 0x8000)
	}
	return int16(s * 0x7FFF)
}

// DecodeSegment decodes a base64 s16le payload into float32 samples.
func DecodeSegment(b64 string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decode audio segment: %w", err)
	}
	return SamplesFromBytes(raw), nil
}

// SamplesFromBytes converts raw little-endian s16le PCM to float32 samples
// normalized to [-1, 1). A trailing odd byte is ignored.
func SamplesFromBytes(raw []byte) []float32 {
	n := len(raw) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(raw[i*2]) | int16(raw[i*2+1])<<8
		out[i] = float32(v) / 32768.0
	}
	return out
}

// RMS computes the root-mean-square loudness of a frame.
// Returns a value between 0.0 and 1.0.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Peak returns the maximum absolute amplitude in the frame.
func Peak(samples []float32) float64 {
	var max float64
	for _, s := range samples {
		abs := math.Abs(float64(s))
		if abs > max {
			max = abs
		}
	}
	return max
}

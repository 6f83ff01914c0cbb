package audio

import "time"

// Config specifies PCM format parameters for one direction of the link.
type Config struct {
	// SampleRate in Hz. The reference deployment uses 16000 upstream
	// and 24000 downstream.
	SampleRate int `json:"sample_rate"`

	// Channels: 1 for mono, 2 for stereo.
	Channels int `json:"channels"`

	// BitsPerSample: 16 for the wire format.
	BitsPerSample int `json:"bits_per_sample"`
}

// DefaultInput returns the capture-side format (mono s16le, 16 kHz).
func DefaultInput() Config {
	return Config{SampleRate: 16000, Channels: 1, BitsPerSample: 16}
}

// DefaultOutput returns the playback-side format (mono s16le, 24 kHz).
func DefaultOutput() Config {
	return Config{SampleRate: 24000, Channels: 1, BitsPerSample: 16}
}

// BytesPerSecond returns the raw PCM byte rate.
func (c Config) BytesPerSecond() int {
	return c.SampleRate * c.Channels * (c.BitsPerSample / 8)
}

// BytesPerSample returns the size of one interleaved sample frame.
func (c Config) BytesPerSample() int {
	return c.Channels * (c.BitsPerSample / 8)
}

// Duration returns the play time of sampleCount samples per channel.
func (c Config) Duration(sampleCount int) time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(sampleCount) * time.Second / time.Duration(c.SampleRate)
}

// DurationMS returns the play time in milliseconds of a raw PCM byte count.
func (c Config) DurationMS(bytes int) int {
	bps := c.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return (bytes * 1000) / bps
}

// BytesForDurationMS returns the raw PCM byte count for a duration in milliseconds.
func (c Config) BytesForDurationMS(ms int) int {
	return (c.BytesPerSecond() * ms) / 1000
}

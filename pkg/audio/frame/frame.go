// Package frame defines the fixed-duration audio frame type shared by
// capture, playback, and codec stages.
package frame

import "time"

// DurationMs is the fixed frame duration used throughout the pipeline.
const DurationMs = 60

// PCM is one 60ms chunk of signed 16-bit interleaved PCM at a given sample
// rate, stamped with its capture or synthesis time.
type PCM struct {
	SampleRate  int
	Channels    int
	Samples     []int16
	EpochMillis int64
}

// Opus is one Opus-encoded packet corresponding to a single 60ms PCM frame.
type Opus struct {
	Data        []byte
	EpochMillis int64
}

// Stamp returns the current time as epoch milliseconds, for tagging frames at
// capture or decode time.
func Stamp(t time.Time) int64 {
	return t.UnixMilli()
}

// SamplesPerFrame returns the number of samples a 60ms frame holds at the
// given sample rate for one channel.
func SamplesPerFrame(sampleRate int) int {
	return sampleRate * DurationMs / 1000
}

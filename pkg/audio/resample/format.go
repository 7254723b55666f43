package resample

// Format describes a PCM stream's sample rate and channel layout for the
// purposes of resampling. Only 16-bit signed integer samples are supported.
type Format struct {
	SampleRate int
	Stereo     bool
}

func (f Format) channels() int {
	if f.Stereo {
		return 2
	}
	return 1
}

func (f Format) sampleBytes() int {
	if f.Stereo {
		return 4
	}
	return 2
}

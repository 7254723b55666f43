package resample

import "testing"

func TestFormatChannels(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		want   int
	}{
		{name: "mono", format: Format{SampleRate: 16000, Stereo: false}, want: 1},
		{name: "stereo", format: Format{SampleRate: 48000, Stereo: true}, want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.format.channels(); got != tt.want {
				t.Errorf("channels() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFormatSampleBytes(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		want   int
	}{
		{name: "mono 16-bit", format: Format{SampleRate: 16000, Stereo: false}, want: 2},
		{name: "stereo 16-bit", format: Format{SampleRate: 48000, Stereo: true}, want: 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.format.sampleBytes(); got != tt.want {
				t.Errorf("sampleBytes() = %d, want %d", got, tt.want)
			}
		})
	}
}

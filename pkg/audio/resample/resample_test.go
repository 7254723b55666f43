package resample

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
)

func monoPCM(n int, amplitude int16) []byte {
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(amplitude))
	}
	return buf
}

func TestPassthroughSameFormat(t *testing.T) {
	src := monoPCM(480, 1000)
	fmtSpec := Format{SampleRate: 16000, Stereo: false}
	r, err := New(bytes.NewReader(src), fmtSpec, fmtSpec)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(out) != len(src) {
		t.Fatalf("expected %d bytes passthrough, got %d", len(src), len(out))
	}
}

func TestMonoToStereoUpmix(t *testing.T) {
	src := monoPCM(160, 500)
	r, err := New(bytes.NewReader(src), Format{SampleRate: 16000, Stereo: false}, Format{SampleRate: 16000, Stereo: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(out) != len(src)*2 {
		t.Fatalf("expected stereo output to be double mono input, got %d want %d", len(out), len(src)*2)
	}
}

func TestSampleRateConversionChangesLength(t *testing.T) {
	src := monoPCM(1600, 2000) // 100ms @ 16kHz
	r, err := New(bytes.NewReader(src), Format{SampleRate: 16000, Stereo: false}, Format{SampleRate: 24000, Stereo: false})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(out) == 0 {
		t.Fatalf("expected non-empty resampled output")
	}
}

func TestCloseWithErrorPropagates(t *testing.T) {
	r, err := New(bytes.NewReader(nil), Format{SampleRate: 16000}, Format{SampleRate: 16000})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.Close()
	buf := make([]byte, 4)
	if _, err := r.Read(buf); err == nil {
		t.Fatalf("expected error reading from closed resampler")
	}
}

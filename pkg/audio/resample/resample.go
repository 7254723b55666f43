// Package resample converts PCM streams between sample rates and mono/stereo
// layouts, on top of a pure-Go resampling engine (no cgo dependency).
package resample

import (
	"fmt"
	"io"
	"sync"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resampler wraps an io.Reader and resamples audio from srcFmt to dstFmt.
type Resampler interface {
	io.ReadCloser
	CloseWithError(error) error
}

type stream struct {
	srcFmt Format
	src    io.Reader

	dstFmt  Format
	readBuf []byte

	mu            sync.Mutex
	closeErr      error
	resampler     resampling.Resampler
	leftover      []byte
	needsResample bool
}

// New creates a Resampler that converts from srcFmt to dstFmt, handling both
// sample-rate conversion and mono/stereo conversion. Formats must use 16-bit
// signed integer samples.
func New(src io.Reader, srcFmt, dstFmt Format) (Resampler, error) {
	needsResample := srcFmt.SampleRate != dstFmt.SampleRate

	var r resampling.Resampler
	if needsResample {
		cfg := &resampling.Config{
			InputRate:  float64(srcFmt.SampleRate),
			OutputRate: float64(dstFmt.SampleRate),
			Channels:   dstFmt.channels(),
			Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
		}
		var err error
		r, err = resampling.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("resample: create resampler: %w", err)
		}
	}

	return &stream{
		srcFmt:        srcFmt,
		src:           newSampleReader(src, srcFmt.sampleBytes()),
		dstFmt:        dstFmt,
		resampler:     r,
		needsResample: needsResample,
	}, nil
}

func (s *stream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if len(p) < s.dstFmt.sampleBytes() {
		return 0, io.ErrShortBuffer
	}
	p = p[:len(p)/s.dstFmt.sampleBytes()*s.dstFmt.sampleBytes()]

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.leftover) > 0 {
		n := copy(p, s.leftover)
		s.leftover = s.leftover[n:]
		return n, nil
	}

	if s.closeErr != nil {
		return 0, s.closeErr
	}

	return s.readAndProcess(p)
}

func (s *stream) readAndProcess(p []byte) (int, error) {
	if !s.needsResample {
		return s.readPassthrough(p)
	}

	ratio := float64(s.srcFmt.SampleRate) / float64(s.dstFmt.SampleRate)
	srcBytesNeeded := int(float64(len(p))*ratio) + s.srcFmt.sampleBytes()*4

	if cap(s.readBuf) < srcBytesNeeded {
		s.readBuf = make([]byte, srcBytesNeeded)
	}

	bytesRead, readErr := s.readSourceWithChannelConv(srcBytesNeeded)
	if bytesRead == 0 {
		if readErr != nil {
			return 0, readErr
		}
		return 0, io.EOF
	}

	numChannels := s.dstFmt.channels()
	numFrames := bytesRead / (2 * numChannels)
	input := make([]float64, numFrames*numChannels)
	for i := 0; i < numFrames*numChannels; i++ {
		sample := int16(s.readBuf[i*2]) | int16(s.readBuf[i*2+1])<<8
		input[i] = float64(sample) / 32768.0
	}

	output, err := s.resampler.Process(input)
	if err != nil {
		return 0, fmt.Errorf("resample: process: %w", err)
	}
	if len(output) == 0 {
		if readErr != nil {
			return 0, readErr
		}
		return 0, nil
	}

	outputBytes := make([]byte, len(output)*2)
	for i, v := range output {
		sample := int16(v * 32767.0)
		if v > 1.0 {
			sample = 32767
		} else if v < -1.0 {
			sample = -32768
		}
		outputBytes[i*2] = byte(sample)
		outputBytes[i*2+1] = byte(sample >> 8)
	}

	outputLen := (len(outputBytes) / s.dstFmt.sampleBytes()) * s.dstFmt.sampleBytes()
	outputBytes = outputBytes[:outputLen]

	n := copy(p, outputBytes)
	if len(outputBytes) > n {
		s.leftover = append(s.leftover, outputBytes[n:]...)
	}
	return n, readErr
}

func (s *stream) readPassthrough(p []byte) (int, error) {
	n, err := s.readSourceWithChannelConv(len(p))
	if n == 0 {
		return 0, err
	}
	copy(p, s.readBuf[:n])
	return n, err
}

func (s *stream) readSourceWithChannelConv(dstLen int) (int, error) {
	if cap(s.readBuf) < dstLen {
		s.readBuf = make([]byte, dstLen)
	}

	if s.srcFmt.Stereo && !s.dstFmt.Stereo {
		srcLen := dstLen * 2
		if cap(s.readBuf) < srcLen {
			s.readBuf = make([]byte, srcLen)
		}
		rn, err := s.src.Read(s.readBuf[:srcLen])
		if rn == 0 {
			return 0, err
		}
		return stereoToMono(s.readBuf[:rn]), err
	}

	if s.srcFmt.Stereo == s.dstFmt.Stereo {
		return s.src.Read(s.readBuf[:dstLen])
	}

	rn, err := s.src.Read(s.readBuf[:dstLen/2])
	if rn == 0 {
		return 0, err
	}
	return monoToStereo(s.readBuf[:rn*2]), err
}

// Close releases resources; subsequent reads return io.ErrClosedPipe.
func (s *stream) Close() error {
	return s.CloseWithError(fmt.Errorf("resample: %w", io.ErrClosedPipe))
}

// CloseWithError releases resources with a custom terminal error.
func (s *stream) CloseWithError(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closeErr == nil {
		s.closeErr = err
	}
	s.resampler = nil
	return nil
}

func stereoToMono(b []byte) int {
	numFrames := len(b) / 4
	for i := range numFrames {
		j := i * 4
		k := i * 2
		l := int16(b[j]) | int16(b[j+1])<<8
		r := int16(b[j+2]) | int16(b[j+3])<<8
		m := int16((int32(l) + int32(r)) / 2)
		b[k] = byte(m)
		b[k+1] = byte(m >> 8)
	}
	return numFrames * 2
}

func monoToStereo(b []byte) int {
	stereoLen := len(b)
	numSamples := stereoLen / 4
	for i := numSamples - 1; i >= 0; i-- {
		s0, s1 := b[i*2], b[i*2+1]
		j := i * 4
		b[j], b[j+1] = s0, s1
		b[j+2], b[j+3] = s0, s1
	}
	return stereoLen
}

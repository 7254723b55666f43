// Package device provides cgo bindings to PortAudio for capture and playback
// device I/O. No repo in the retrieved pack wraps ALSA/PortAudio as a
// versioned go.mod dependency, so this boundary follows the teacher's own
// bare-cgo convention rather than a module (see DESIGN.md).
package device

/*
#cgo pkg-config: portaudio-2.0

#include <portaudio.h>
#include <stdlib.h>
#include <string.h>

static PaError pa_open_stream(void **stream,
                              const PaStreamParameters *inputParams,
                              const PaStreamParameters *outputParams,
                              double sampleRate,
                              unsigned long framesPerBuffer) {
    return Pa_OpenStream((PaStream**)stream, inputParams, outputParams, sampleRate,
                         framesPerBuffer, paClipOff, NULL, NULL);
}

static PaError pa_start_stream(void *stream)  { return Pa_StartStream((PaStream*)stream); }
static PaError pa_stop_stream(void *stream)   { return Pa_StopStream((PaStream*)stream); }
static PaError pa_close_stream(void *stream)  { return Pa_CloseStream((PaStream*)stream); }

static PaError pa_read_stream(void *stream, void *buffer, unsigned long frames) {
    return Pa_ReadStream((PaStream*)stream, buffer, frames);
}
static PaError pa_write_stream(void *stream, const void *buffer, unsigned long frames) {
    return Pa_WriteStream((PaStream*)stream, buffer, frames);
}
*/
import "C"

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"
)

var (
	initOnce sync.Once
	initErr  error
)

func paError(code C.PaError) error {
	if code == C.paNoError {
		return nil
	}
	return errors.New(C.GoString(C.Pa_GetErrorText(code)))
}

func initialize() error {
	initOnce.Do(func() {
		initErr = paError(C.Pa_Initialize())
	})
	return initErr
}

// Terminate shuts down the PortAudio library. Call once at process exit.
func Terminate() error {
	return paError(C.Pa_Terminate())
}

func findDeviceByName(name string, forInput bool) (C.PaDeviceIndex, error) {
	if name == "" || name == "default" {
		if forInput {
			idx := C.Pa_GetDefaultInputDevice()
			if idx == C.paNoDevice {
				return 0, errors.New("device: no default input device")
			}
			return idx, nil
		}
		idx := C.Pa_GetDefaultOutputDevice()
		if idx == C.paNoDevice {
			return 0, errors.New("device: no default output device")
		}
		return idx, nil
	}

	count := int(C.Pa_GetDeviceCount())
	for i := 0; i < count; i++ {
		info := C.Pa_GetDeviceInfo(C.PaDeviceIndex(i))
		if info == nil {
			continue
		}
		if C.GoString(info.name) == name {
			return C.PaDeviceIndex(i), nil
		}
	}
	return 0, fmt.Errorf("device: no device named %q", name)
}

// Stream is a single-direction (capture or playback) PortAudio stream of
// mono 16-bit PCM samples.
type Stream struct {
	stream     unsafe.Pointer
	buffer     unsafe.Pointer
	bufferSize int
	closed     bool
	mu         sync.Mutex
}

// OpenCapture opens an input stream on the named device (or the system
// default when name is "" or "default") at sampleRate with framesPerBuffer
// mono samples per read.
func OpenCapture(name string, sampleRate, framesPerBuffer int) (*Stream, error) {
	if err := initialize(); err != nil {
		return nil, err
	}
	idx, err := findDeviceByName(name, true)
	if err != nil {
		return nil, err
	}
	info := C.Pa_GetDeviceInfo(idx)
	params := C.PaStreamParameters{
		device:           idx,
		channelCount:     1,
		sampleFormat:     C.paInt16,
		suggestedLatency: info.defaultLowInputLatency,
	}
	return openStream(&params, nil, sampleRate, framesPerBuffer)
}

// OpenPlayback opens an output stream on the named device (or the system
// default) at sampleRate with framesPerBuffer mono samples per write.
func OpenPlayback(name string, sampleRate, framesPerBuffer int) (*Stream, error) {
	if err := initialize(); err != nil {
		return nil, err
	}
	idx, err := findDeviceByName(name, false)
	if err != nil {
		return nil, err
	}
	info := C.Pa_GetDeviceInfo(idx)
	params := C.PaStreamParameters{
		device:           idx,
		channelCount:     1,
		sampleFormat:     C.paInt16,
		suggestedLatency: info.defaultLowOutputLatency,
	}
	return openStream(nil, &params, sampleRate, framesPerBuffer)
}

func openStream(input, output *C.PaStreamParameters, sampleRate, framesPerBuffer int) (*Stream, error) {
	var paStream unsafe.Pointer
	if err := paError(C.pa_open_stream(&paStream, input, output, C.double(sampleRate), C.ulong(framesPerBuffer))); err != nil {
		return nil, fmt.Errorf("device: open stream: %w", err)
	}
	bufferSize := framesPerBuffer * 2 // mono int16
	s := &Stream{
		stream:     paStream,
		buffer:     C.malloc(C.size_t(bufferSize)),
		bufferSize: bufferSize,
	}
	if err := paError(C.pa_start_stream(paStream)); err != nil {
		s.Close()
		return nil, fmt.Errorf("device: start stream: %w", err)
	}
	return s, nil
}

// Read reads framesPerBuffer mono samples from an input stream.
func (s *Stream) Read(framesPerBuffer int) ([]int16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("device: stream closed")
	}
	if err := paError(C.pa_read_stream(s.stream, s.buffer, C.ulong(framesPerBuffer))); err != nil {
		return nil, err
	}
	samples := make([]int16, framesPerBuffer)
	C.memcpy(unsafe.Pointer(&samples[0]), s.buffer, C.size_t(framesPerBuffer*2))
	return samples, nil
}

// Write writes mono samples to an output stream.
func (s *Stream) Write(samples []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("device: stream closed")
	}
	if len(samples) == 0 {
		return nil
	}
	C.memcpy(s.buffer, unsafe.Pointer(&samples[0]), C.size_t(len(samples)*2))
	return paError(C.pa_write_stream(s.stream, s.buffer, C.ulong(len(samples))))
}

// Close stops and releases the stream.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	C.pa_stop_stream(s.stream)
	err := paError(C.pa_close_stream(s.stream))
	C.free(s.buffer)
	return err
}

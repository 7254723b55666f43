// Package pipeline wires the capture and playback audio paths: device I/O,
// front-end DSP, resampling, and Opus codec stages, running each direction on
// its own dedicated goroutine.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"voxcore/pkg/audio/codec"
	"voxcore/pkg/audio/device"
	"voxcore/pkg/audio/dsp"
	"voxcore/pkg/audio/frame"
	"voxcore/pkg/audio/resample"
	"voxcore/pkg/logging"
)

// Config describes the pipeline's device and format parameters.
type Config struct {
	CaptureDevice    string
	PlaybackDevice   string
	CaptureSampleHz  int
	PlaybackSampleHz int
	DeviceSampleHz   int // native device rate, 0 meaning same as Capture/Playback
}

// Capture runs microphone capture: device read -> optional resample ->
// noise gate -> AGC -> Opus encode, emitting encoded frames on Frames().
type Capture struct {
	cfg    Config
	logger logging.Logger

	stream   *device.Stream
	resample resample.Resampler
	gate     *dsp.NoiseGate
	agc      *dsp.AGC
	encoder  *codec.Encoder

	frames  chan frame.Opus
	mu      sync.Mutex
	closed  bool
	cancel  context.CancelFunc
}

// NewCapture opens the capture device and builds the encode chain.
func NewCapture(ctx context.Context, cfg Config, logger logging.Logger) (*Capture, error) {
	if logger == nil {
		logger = logging.Default("audio.capture")
	}
	samplesPerFrame := frame.SamplesPerFrame(cfg.CaptureSampleHz)

	deviceRate := cfg.DeviceSampleHz
	if deviceRate == 0 {
		deviceRate = cfg.CaptureSampleHz
	}
	devSamplesPerFrame := frame.SamplesPerFrame(deviceRate)

	stream, err := device.OpenCapture(cfg.CaptureDevice, deviceRate, devSamplesPerFrame)
	if err != nil {
		return nil, fmt.Errorf("pipeline: open capture device: %w", err)
	}

	enc, err := codec.NewEncoderForEmbedded(cfg.CaptureSampleHz, 1)
	if err != nil {
		stream.Close()
		return nil, fmt.Errorf("pipeline: create encoder: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	c := &Capture{
		cfg:     cfg,
		logger:  logger,
		stream:  stream,
		gate:    dsp.NewNoiseGate(300),
		agc:     dsp.NewAGC(6000, 12),
		encoder: enc,
		frames:  make(chan frame.Opus, 8),
		cancel:  cancel,
	}

	if deviceRate != cfg.CaptureSampleHz {
		pr, pw := io.Pipe()
		c.resample, err = resample.New(pr, resample.Format{SampleRate: deviceRate}, resample.Format{SampleRate: cfg.CaptureSampleHz})
		if err != nil {
			stream.Close()
			return nil, fmt.Errorf("pipeline: create resampler: %w", err)
		}
		go c.pumpDeviceToResampler(ctx, pw, devSamplesPerFrame)
	}

	go c.run(ctx, samplesPerFrame, devSamplesPerFrame)
	return c, nil
}

// Frames returns the channel of encoded uplink frames.
func (c *Capture) Frames() <-chan frame.Opus { return c.frames }

func (c *Capture) pumpDeviceToResampler(ctx context.Context, w *io.PipeWriter, samplesPerFrame int) {
	for {
		select {
		case <-ctx.Done():
			w.CloseWithError(ctx.Err())
			return
		default:
		}
		samples, err := c.stream.Read(samplesPerFrame)
		if err != nil {
			w.CloseWithError(err)
			return
		}
		if _, err := w.Write(int16sToBytes(samples)); err != nil {
			return
		}
	}
}

func (c *Capture) run(ctx context.Context, samplesPerFrame, devSamplesPerFrame int) {
	defer close(c.frames)
	gated := make([]int16, samplesPerFrame)
	agcOut := make([]int16, samplesPerFrame)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var pcm []int16
		if c.resample != nil {
			buf := make([]byte, samplesPerFrame*2)
			n, err := readFull(c.resample, buf)
			if err != nil {
				c.logger.ErrorPrintf("resample read: %v", err)
				return
			}
			pcm = bytesToInt16s(buf[:n])
		} else {
			var err error
			pcm, err = c.stream.Read(devSamplesPerFrame)
			if err != nil {
				c.logger.ErrorPrintf("device read: %v", err)
				return
			}
		}
		if len(pcm) != samplesPerFrame {
			continue
		}

		c.gate.Process(pcm, gated)
		c.agc.Process(gated, agcOut)

		packet, err := c.encoder.Encode(agcOut, samplesPerFrame)
		if err != nil {
			c.logger.ErrorPrintf("encode: %v", err)
			continue
		}

		out := frame.Opus{Data: packet, EpochMillis: frame.Stamp(time.Now())}
		select {
		case c.frames <- out:
		case <-ctx.Done():
			return
		default:
			c.logger.WarnPrintf("uplink queue full, dropping frame")
		}
	}
}

// Close stops capture and releases the device.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.cancel()
	if c.resample != nil {
		c.resample.Close()
	}
	return c.stream.Close()
}

// PlaybackEvent reports a playback-side condition the controller needs to
// arbitrate on: either the downlink queue running dry (Drained) or a decode
// failure on one packet (Err). At most one of the two fields is set.
type PlaybackEvent struct {
	Drained bool
	Err     error
}

// Playback decodes incoming Opus packets, optionally resamples, and writes
// PCM to the output device. The input queue is bounded; on persistent
// overrun the oldest queued frame is dropped.
type Playback struct {
	cfg     Config
	logger  logging.Logger
	stream  *device.Stream
	decoder *codec.Decoder

	in     chan frame.Opus
	events chan PlaybackEvent
	mu     sync.Mutex
	closed bool
	cancel context.CancelFunc
}

// NewPlayback opens the playback device and decode chain.
func NewPlayback(ctx context.Context, cfg Config, logger logging.Logger) (*Playback, error) {
	if logger == nil {
		logger = logging.Default("audio.playback")
	}
	deviceRate := cfg.DeviceSampleHz
	if deviceRate == 0 {
		deviceRate = cfg.PlaybackSampleHz
	}
	samplesPerFrame := frame.SamplesPerFrame(deviceRate)

	stream, err := device.OpenPlayback(cfg.PlaybackDevice, deviceRate, samplesPerFrame)
	if err != nil {
		return nil, fmt.Errorf("pipeline: open playback device: %w", err)
	}
	dec, err := codec.NewDecoder(cfg.PlaybackSampleHz, 1)
	if err != nil {
		stream.Close()
		return nil, fmt.Errorf("pipeline: create decoder: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	p := &Playback{
		cfg:     cfg,
		logger:  logger,
		stream:  stream,
		decoder: dec,
		in:      make(chan frame.Opus, 16),
		events:  make(chan PlaybackEvent, 8),
		cancel:  cancel,
	}
	go p.run(ctx, deviceRate)
	return p, nil
}

// Events returns the channel of playback-side conditions (queue drained,
// decode errors) the controller drains to arbitrate its own state.
func (p *Playback) Events() <-chan PlaybackEvent { return p.events }

func (p *Playback) emit(ev PlaybackEvent) {
	select {
	case p.events <- ev:
	default:
		p.logger.WarnPrintf("playback event queue full, dropping event")
	}
}

// Enqueue submits an Opus packet for playback, dropping the oldest queued
// frame if the queue is full.
func (p *Playback) Enqueue(packet frame.Opus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.in <- packet:
		return
	default:
	}
	select {
	case <-p.in:
		p.logger.WarnPrintf("playback queue full, dropping oldest frame")
	default:
	}
	select {
	case p.in <- packet:
	default:
	}
}

func (p *Playback) run(ctx context.Context, deviceRate int) {
	defer close(p.events)
	framesPerFrame := frame.SamplesPerFrame(p.cfg.PlaybackSampleHz)
	deviceFramesPerFrame := frame.SamplesPerFrame(deviceRate)
	needsResample := deviceRate != p.cfg.PlaybackSampleHz

	var pw *io.PipeWriter
	var rs resample.Resampler
	if needsResample {
		var pr *io.PipeReader
		pr, pw = io.Pipe()
		var err error
		rs, err = resample.New(pr, resample.Format{SampleRate: p.cfg.PlaybackSampleHz}, resample.Format{SampleRate: deviceRate})
		if err != nil {
			p.logger.ErrorPrintf("create playback resampler: %v", err)
			return
		}
		defer rs.Close()
		go func() {
			<-ctx.Done()
			pw.CloseWithError(ctx.Err())
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case packet, ok := <-p.in:
			if !ok {
				return
			}
			pcm, err := p.decoder.Decode(packet.Data, framesPerFrame)
			if err != nil {
				p.logger.ErrorPrintf("decode: %v", err)
				p.emit(PlaybackEvent{Err: fmt.Errorf("pipeline: decode: %w", err)})
				continue
			}
			if !needsResample {
				if err := p.stream.Write(pcm); err != nil {
					p.logger.ErrorPrintf("device write: %v", err)
				}
				p.checkDrained()
				continue
			}

			go func() {
				pw.Write(int16sToBytes(pcm))
			}()
			out := make([]byte, deviceFramesPerFrame*2)
			n, err := readFull(rs, out)
			if err != nil {
				p.logger.ErrorPrintf("resample read: %v", err)
				p.emit(PlaybackEvent{Err: fmt.Errorf("pipeline: resample: %w", err)})
				continue
			}
			if err := p.stream.Write(bytesToInt16s(out[:n])); err != nil {
				p.logger.ErrorPrintf("device write: %v", err)
			}
			p.checkDrained()
		}
	}
}

// checkDrained signals that the downlink queue has just been emptied, so the
// controller can leave Speaking once the last queued packet has played out.
func (p *Playback) checkDrained() {
	if len(p.in) == 0 {
		p.emit(PlaybackEvent{Drained: true})
	}
}

// Close stops playback and releases the device.
func (p *Playback) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.in)
	p.cancel()
	return p.stream.Close()
}

func int16sToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

func bytesToInt16s(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return out
}

func readFull(r interface{ Read([]byte) (int, error) }, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
	}
	return total, nil
}

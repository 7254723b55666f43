// Package codec wraps Opus encode/decode for the fixed 60ms voice frames used
// by the audio pipeline.
package codec

import (
	"fmt"

	"gopkg.in/hraban/opus.v2"
)

// Encoder wraps an Opus encoder tuned for voice.
type Encoder struct {
	sampleRate int
	channels   int
	enc        *opus.Encoder
}

// NewEncoder creates a voice-tuned Opus encoder at sampleRate (8000, 12000,
// 16000, 24000, or 48000) and channels (1 or 2).
func NewEncoder(sampleRate, channels int) (*Encoder, error) {
	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("codec: create encoder: %w", err)
	}
	return &Encoder{sampleRate: sampleRate, channels: channels, enc: enc}, nil
}

// SetBitrate sets the target bitrate in bits per second.
func (e *Encoder) SetBitrate(bitrate int) error {
	if err := e.enc.SetBitrate(bitrate); err != nil {
		return fmt.Errorf("codec: set bitrate: %w", err)
	}
	return nil
}

// SetComplexity sets the encoder's computational complexity (0-10). Embedded
// targets default to a low value; see NewEncoderForEmbedded.
func (e *Encoder) SetComplexity(complexity int) error {
	if err := e.enc.SetComplexity(complexity); err != nil {
		return fmt.Errorf("codec: set complexity: %w", err)
	}
	return nil
}

// NewEncoderForEmbedded creates a voice encoder pre-tuned for low-power
// embedded CPUs: complexity 5, bitrate 24000.
func NewEncoderForEmbedded(sampleRate, channels int) (*Encoder, error) {
	enc, err := NewEncoder(sampleRate, channels)
	if err != nil {
		return nil, err
	}
	if err := enc.SetComplexity(5); err != nil {
		return nil, err
	}
	if err := enc.SetBitrate(24000); err != nil {
		return nil, err
	}
	return enc, nil
}

// Encode encodes one frame of interleaved PCM16 samples (frameSize samples
// per channel) into an Opus packet.
func (e *Encoder) Encode(pcm []int16, frameSize int) ([]byte, error) {
	buf := make([]byte, 4000)
	n, err := e.enc.Encode(pcm[:frameSize*e.channels], buf)
	if err != nil {
		return nil, fmt.Errorf("codec: encode: %w", err)
	}
	return buf[:n], nil
}

// Decoder wraps an Opus decoder.
type Decoder struct {
	sampleRate int
	channels   int
	dec        *opus.Decoder
}

// NewDecoder creates an Opus decoder at sampleRate and channels.
func NewDecoder(sampleRate, channels int) (*Decoder, error) {
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("codec: create decoder: %w", err)
	}
	return &Decoder{sampleRate: sampleRate, channels: channels, dec: dec}, nil
}

// Decode decodes one Opus packet into a frame of interleaved PCM16 samples
// sized for frameSize samples per channel.
func (d *Decoder) Decode(packet []byte, frameSize int) ([]int16, error) {
	pcm := make([]int16, frameSize*d.channels)
	n, err := d.dec.Decode(packet, pcm)
	if err != nil {
		return nil, fmt.Errorf("codec: decode: %w", err)
	}
	return pcm[:n*d.channels], nil
}

// DecodePacketLoss synthesizes a concealment frame for a dropped packet using
// Opus's built-in packet-loss concealment (pass a nil packet).
func (d *Decoder) DecodePacketLoss(frameSize int) ([]int16, error) {
	pcm := make([]int16, frameSize*d.channels)
	n, err := d.dec.Decode(nil, pcm)
	if err != nil {
		return nil, fmt.Errorf("codec: plc: %w", err)
	}
	return pcm[:n*d.channels], nil
}

// SampleRate returns the encoder/decoder's configured sample rate.
func (e *Encoder) SampleRate() int { return e.sampleRate }

// SampleRate returns the decoder's configured sample rate.
func (d *Decoder) SampleRate() int { return d.sampleRate }

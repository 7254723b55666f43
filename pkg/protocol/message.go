// Package protocol defines the cloud session's wire messages: the text
// control-message sum type carried over the websocket, and the JSON-RPC
// envelope used for tool calls.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Ensure every payload implements Message.
var (
	_ Message = (*Hello)(nil)
	_ Message = (*Listen)(nil)
	_ Message = (*Abort)(nil)
	_ Message = (*TTS)(nil)
	_ Message = (*STT)(nil)
	_ Message = (*IoT)(nil)
	_ Message = (*MCPEnvelope)(nil)
	_ Message = (*Goodbye)(nil)
	_ Message = (*Notify)(nil)
)

// Message is a text control message carried by the cloud session.
type Message interface {
	isMessage()
	messageType() string
}

// Envelope wraps a Message with its wire discriminator so it can be dispatched
// on decode and tagged with its type on encode.
type Envelope struct {
	Type    string
	Payload Message
}

// NewEnvelope wraps a payload for transmission.
func NewEnvelope(payload Message) *Envelope {
	return &Envelope{Type: payload.messageType(), Payload: payload}
}

// MarshalJSON flattens the envelope: the discriminator and payload fields are
// emitted as a single JSON object, matching the wire messages used throughout
// the xiaozhi protocol family (a bare "type" field alongside payload fields,
// not a nested "payload" object).
func (e Envelope) MarshalJSON() ([]byte, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("protocol: payload for %q did not marshal to an object: %w", e.Type, err)
	}
	typeJSON, _ := json.Marshal(e.Type)
	fields["type"] = typeJSON
	return json.Marshal(fields)
}

// UnmarshalJSON dispatches on the "type" discriminator into a concrete
// Message implementation.
func (e *Envelope) UnmarshalJSON(b []byte) error {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return err
	}

	var msg Message
	switch head.Type {
	case "hello":
		msg = new(Hello)
	case "listen":
		msg = new(Listen)
	case "abort":
		msg = new(Abort)
	case "tts":
		msg = new(TTS)
	case "stt":
		msg = new(STT)
	case "iot":
		msg = new(IoT)
	case "mcp":
		msg = new(MCPEnvelope)
	case "goodbye":
		msg = new(Goodbye)
	case "notify":
		msg = new(Notify)
	default:
		return fmt.Errorf("protocol: unknown message type %q", head.Type)
	}

	if err := json.Unmarshal(b, msg); err != nil {
		return err
	}
	*e = Envelope{Type: head.Type, Payload: msg}
	return nil
}

// AudioParams describes the negotiated audio format in a Hello handshake.
type AudioParams struct {
	Format         string `json:"format"`
	SampleRate     int    `json:"sample_rate"`
	Channels       int    `json:"channels"`
	FrameDurationMs int   `json:"frame_duration"`
}

// Features advertises optional protocol capabilities in a Hello handshake.
type Features struct {
	MCP bool `json:"mcp,omitempty"`
}

// Hello is the handshake exchanged immediately after the websocket connects.
type Hello struct {
	Version     int          `json:"version"`
	Transport   string       `json:"transport"`
	AudioParams *AudioParams `json:"audio_params,omitempty"`
	Features    *Features    `json:"features,omitempty"`
	SessionID   string       `json:"session_id,omitempty"`
}

func (*Hello) isMessage()          {}
func (*Hello) messageType() string { return "hello" }

// Listen requests a change in listening state. State is one of
// "start", "stop", or "detect"; Mode is "auto", "manual", or "realtime".
type Listen struct {
	SessionID string `json:"session_id,omitempty"`
	State     string `json:"state"`
	Mode      string `json:"mode,omitempty"`
}

func (*Listen) isMessage()          {}
func (*Listen) messageType() string { return "listen" }

// Abort cancels the in-flight response.
type Abort struct {
	SessionID string `json:"session_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

func (*Abort) isMessage()          {}
func (*Abort) messageType() string { return "abort" }

// TTS reports a text-to-speech playback lifecycle event. State is one of
// "start", "stop", "sentence_start", or "sentence_end".
type TTS struct {
	SessionID string `json:"session_id,omitempty"`
	State     string `json:"state"`
	Text      string `json:"text,omitempty"`
}

func (*TTS) isMessage()          {}
func (*TTS) messageType() string { return "tts" }

// STT reports recognized speech text.
type STT struct {
	SessionID string `json:"session_id,omitempty"`
	Text      string `json:"text"`
}

func (*STT) isMessage()          {}
func (*STT) messageType() string { return "stt" }

// IoT carries an opaque IoT command payload forwarded verbatim to the IoT
// bridge.
type IoT struct {
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

func (*IoT) isMessage()          {}
func (*IoT) messageType() string { return "iot" }

// MCPEnvelope carries a JSON-RPC request or response for the tool gateway
// inside the same text channel as the rest of the protocol.
type MCPEnvelope struct {
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

func (*MCPEnvelope) isMessage()          {}
func (*MCPEnvelope) messageType() string { return "mcp" }

// Goodbye ends the session cleanly.
type Goodbye struct {
	SessionID string `json:"session_id,omitempty"`
}

func (*Goodbye) isMessage()          {}
func (*Goodbye) messageType() string { return "goodbye" }

// Notify injects a background tool result as a synthetic text prompt into an
// idle session, letting the cloud session react to it as if spoken.
type Notify struct {
	SessionID string `json:"session_id,omitempty"`
	Text      string `json:"text"`
}

func (*Notify) isMessage()          {}
func (*Notify) messageType() string { return "notify" }

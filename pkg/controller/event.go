// Package controller implements the single-owner state machine that
// arbitrates between the cloud transport, the audio pipeline, the GUI/IoT
// bridges, and the tool gateway.
package controller

import (
	"encoding/json"

	"voxcore/pkg/audio/frame"
	"voxcore/pkg/gateway"
	"voxcore/pkg/protocol"
)

// NetEvent is a transport-lifecycle or decoded-message event.
type NetEvent struct {
	Connected    bool
	Disconnected bool
	Message      *protocol.Envelope
	Binary       []byte
}

// AudioEvent carries one encoded uplink frame from the capture pipeline.
type AudioEvent struct {
	Frame frame.Opus
}

// GUIEvent is user input arriving from the GUI bridge.
type GUIEvent struct {
	Text    string
	Trigger bool
}

// IoTEvent is a command arriving from the IoT bridge, forwarded to the cloud
// session as-is.
type IoTEvent struct {
	Payload json.RawMessage
}

// toolNotification is an internal alias kept for readability at call sites.
type toolNotification = gateway.PendingNotification

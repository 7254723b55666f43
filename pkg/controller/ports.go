package controller

import (
	"voxcore/pkg/audio/frame"
	"voxcore/pkg/audio/pipeline"
	"voxcore/pkg/protocol"
)

// NetSender is the subset of transport.Session the controller needs to
// address the cloud session. Narrowed to an interface so tests can supply a
// fake without dialing a real websocket.
type NetSender interface {
	SendMessage(msg protocol.Message) error
	SendBinary(data []byte) error
}

// Player is the subset of pipeline.Playback the controller drives. Events
// surfaces downlink queue-drained and decode-error conditions the state
// machine arbitrates on.
type Player interface {
	Enqueue(packet frame.Opus)
	Events() <-chan pipeline.PlaybackEvent
}

// GUISender pushes small JSON status events to the GUI bridge.
type GUISender interface {
	Send(payload map[string]any) error
}

// IoTSender forwards opaque IoT payloads to the IoT bridge.
type IoTSender interface {
	Send(raw []byte) error
}

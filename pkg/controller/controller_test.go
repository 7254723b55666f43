package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"voxcore/pkg/audio/frame"
	"voxcore/pkg/audio/pipeline"
	"voxcore/pkg/gateway"
	"voxcore/pkg/protocol"
	"voxcore/pkg/session"
)

type fakeNet struct {
	mu   sync.Mutex
	sent []protocol.Message
	bin  [][]byte
}

func (f *fakeNet) SendMessage(msg protocol.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeNet) SendBinary(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bin = append(f.bin, data)
	return nil
}

func (f *fakeNet) last() protocol.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeNet) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeGUI struct {
	mu     sync.Mutex
	events []map[string]any
}

func (f *fakeGUI) Send(payload map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, payload)
	return nil
}

type fakePlayer struct {
	mu      sync.Mutex
	packets []frame.Opus
	events  chan pipeline.PlaybackEvent
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{events: make(chan pipeline.PlaybackEvent, 4)}
}

func (f *fakePlayer) Enqueue(p frame.Opus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.packets = append(f.packets, p)
}

func (f *fakePlayer) Events() <-chan pipeline.PlaybackEvent {
	return f.events
}

func newTestController(t *testing.T, toolNotify <-chan gateway.PendingNotification) (*Controller, *fakeNet, *fakeGUI, *fakePlayer, context.CancelFunc) {
	t.Helper()
	net := &fakeNet{}
	gui := &fakeGUI{}
	play := newFakePlayer()
	ctrl := New(Config{}, net, gui, nil, play, toolNotify, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go ctrl.Run(ctx)
	return ctrl, net, gui, play, cancel
}

func settle() { time.Sleep(20 * time.Millisecond) }

func TestUplinkAudioOnlySentWhileListening(t *testing.T) {
	ctrl, net, _, _, cancel := newTestController(t, nil)
	defer cancel()

	ctrl.SubmitAudio(AudioEvent{Frame: frame.Opus{Data: []byte("frame1")}})
	settle()
	net.mu.Lock()
	defer net.mu.Unlock()
	if len(net.bin) != 1 {
		t.Fatalf("expected uplink frame to be forwarded once listening, got %d binary sends", len(net.bin))
	}
}

func TestTTSStartMutesMicAndStopTriggersReListen(t *testing.T) {
	ctrl, net, _, _, cancel := newTestController(t, nil)
	defer cancel()

	send := func(msg protocol.Message) {
		ctrl.SubmitNet(NetEvent{Message: protocol.NewEnvelope(msg)})
		settle()
	}

	send(&protocol.Hello{SessionID: "s1"})
	send(&protocol.TTS{SessionID: "s1", State: "start"})

	ctrl.SubmitAudio(AudioEvent{Frame: frame.Opus{Data: []byte("muted")}})
	settle()
	if len(net.bin) != 0 {
		t.Fatalf("expected mic muted during tts, but audio was forwarded")
	}

	send(&protocol.TTS{SessionID: "s1", State: "stop"})

	last, ok := net.last().(*protocol.Listen)
	if !ok || last.Mode != "auto" {
		t.Fatalf("expected an auto-mode listen command after tts.stop, got %+v", net.last())
	}
}

func TestUnknownToolResponseSurfacesMethodNotFound(t *testing.T) {
	reg, err := gateway.NewRegistry(nil)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	g := gateway.New(reg, 0, nil)

	raw := []byte(`{"jsonrpc":"2.0","id":9,"method":"tools/call","params":{"name":"nope"}}`)
	resp, err := g.Handle(context.Background(), raw)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != -32601 {
		t.Fatalf("expected method_not_found, got %+v", resp.Error)
	}
}

func TestPendingNotificationDeliveredOnlyOncePerIdleWindow(t *testing.T) {
	notify := make(chan gateway.PendingNotification, 4)
	ctrl, net, _, _, cancel := newTestController(t, notify)
	defer cancel()

	ctrl.SubmitNet(NetEvent{Message: protocol.NewEnvelope(&protocol.Hello{SessionID: "s1"})})
	settle()

	notify <- gateway.PendingNotification{ToolName: "long_task", Payload: map[string]any{"status": "done"}}
	notify <- gateway.PendingNotification{ToolName: "second_task", Payload: map[string]any{"status": "done"}}
	settle()
	settle()

	before := net.count()

	found := 0
	net.mu.Lock()
	for _, m := range net.sent {
		if n, ok := m.(*protocol.Notify); ok {
			found++
			var payload map[string]any
			if err := json.Unmarshal([]byte(n.Text), &payload); err != nil {
				t.Fatalf("notify text not JSON: %v", err)
			}
		}
	}
	net.mu.Unlock()
	if found != 1 {
		t.Fatalf("expected exactly one notify injection, found %d among %d sends", found, before)
	}

	// Re-entering idle (tts.start then tts.stop) should allow the second
	// queued notification through.
	ctrl.SubmitNet(NetEvent{Message: protocol.NewEnvelope(&protocol.TTS{SessionID: "s1", State: "start"})})
	settle()
	ctrl.SubmitNet(NetEvent{Message: protocol.NewEnvelope(&protocol.TTS{SessionID: "s1", State: "stop"})})
	settle()

	count := 0
	net.mu.Lock()
	for _, m := range net.sent {
		if _, ok := m.(*protocol.Notify); ok {
			count++
		}
	}
	net.mu.Unlock()
	if count != 2 {
		t.Fatalf("expected second notification drained on next idle window, got %d notify sends", count)
	}
}

func TestDisconnectTransitionsToNetworkErrorAndReconnectReturnsToIdle(t *testing.T) {
	ctrl, _, gui, _, cancel := newTestController(t, nil)
	defer cancel()

	ctrl.SubmitNet(NetEvent{Disconnected: true})
	settle()
	if ctrl.state != session.NetworkError {
		t.Fatalf("expected NetworkError after disconnect, got %s", ctrl.state)
	}

	ctrl.SubmitNet(NetEvent{Connected: true})
	settle()
	if ctrl.state != session.Idle {
		t.Fatalf("expected Idle after reconnect, got %s", ctrl.state)
	}

	gui.mu.Lock()
	defer gui.mu.Unlock()
	if len(gui.events) == 0 {
		t.Fatalf("expected gui to be notified of state changes")
	}
}

func TestAbortReturnsToIdleAndUnmutesMic(t *testing.T) {
	ctrl, net, _, _, cancel := newTestController(t, nil)
	defer cancel()

	send := func(msg protocol.Message) {
		ctrl.SubmitNet(NetEvent{Message: protocol.NewEnvelope(msg)})
		settle()
	}

	send(&protocol.Hello{SessionID: "s1"})
	send(&protocol.TTS{SessionID: "s1", State: "start"})
	if ctrl.state != session.Speaking {
		t.Fatalf("expected Speaking after tts.start, got %s", ctrl.state)
	}

	send(&protocol.Abort{SessionID: "s1", Reason: "user cancelled"})
	if ctrl.state != session.Idle {
		t.Fatalf("expected Idle after abort, got %s", ctrl.state)
	}

	ctrl.SubmitAudio(AudioEvent{Frame: frame.Opus{Data: []byte("unmuted")}})
	settle()
	if len(net.bin) != 1 {
		t.Fatalf("expected mic unmuted after abort, got %d binary sends", len(net.bin))
	}
}

func TestPlaybackDrainedWhileSpeakingReturnsToIdle(t *testing.T) {
	ctrl, net, _, play, cancel := newTestController(t, nil)
	defer cancel()

	ctrl.SubmitNet(NetEvent{Message: protocol.NewEnvelope(&protocol.Hello{SessionID: "s1"})})
	settle()
	ctrl.SubmitNet(NetEvent{Binary: []byte("opus-packet")})
	settle()
	if ctrl.state != session.Speaking {
		t.Fatalf("expected Speaking after downlink audio, got %s", ctrl.state)
	}

	play.events <- pipeline.PlaybackEvent{Drained: true}
	settle()
	if ctrl.state != session.Idle {
		t.Fatalf("expected Idle once playback drains, got %s", ctrl.state)
	}

	last, ok := net.last().(*protocol.Listen)
	if !ok || last.Mode != "auto" {
		t.Fatalf("expected an auto-mode listen command after playback drains, got %+v", net.last())
	}
}

func TestPlaybackDecodeErrorIsSurfacedWithoutChangingState(t *testing.T) {
	ctrl, _, _, play, cancel := newTestController(t, nil)
	defer cancel()

	play.events <- pipeline.PlaybackEvent{Err: fmt.Errorf("boom")}
	settle()
	if ctrl.state != session.Idle {
		t.Fatalf("expected decode errors to leave state untouched, got %s", ctrl.state)
	}
}

package session

import (
	"encoding/json"
	"testing"
)

func TestStateJSONRoundTrip(t *testing.T) {
	for _, s := range []State{Idle, Listening, Processing, Speaking, NetworkError} {
		data, err := json.Marshal(s)
		if err != nil {
			t.Fatalf("marshal %v: %v", s, err)
		}
		var got State
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if got != s {
			t.Fatalf("round trip mismatch: %v -> %s -> %v", s, data, got)
		}
	}
}

func TestCanEmitUplinkAudioOnlyWhenListening(t *testing.T) {
	for _, s := range []State{Idle, Processing, Speaking, NetworkError} {
		if s.CanEmitUplinkAudio() {
			t.Errorf("state %s should not allow uplink audio", s)
		}
	}
	if !Listening.CanEmitUplinkAudio() {
		t.Errorf("Listening must allow uplink audio")
	}
}

func TestUnknownStateNameDecodesToIdle(t *testing.T) {
	var s State
	if err := json.Unmarshal([]byte(`"bogus"`), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if s != Idle {
		t.Fatalf("expected unknown state name to decode to Idle, got %v", s)
	}
}

package protocol

import (
	"encoding/json"
	"testing"
)

func TestEnvelopeRoundTripHello(t *testing.T) {
	env := NewEnvelope(&Hello{
		Version:   1,
		Transport: "websocket",
		AudioParams: &AudioParams{
			Format:          "opus",
			SampleRate:      16000,
			Channels:        1,
			FrameDurationMs: 60,
		},
		Features: &Features{MCP: true},
	})

	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Envelope
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Type != "hello" {
		t.Fatalf("expected type hello, got %q", decoded.Type)
	}
	hello, ok := decoded.Payload.(*Hello)
	if !ok {
		t.Fatalf("expected *Hello payload, got %T", decoded.Payload)
	}
	if hello.AudioParams == nil || hello.AudioParams.SampleRate != 16000 {
		t.Fatalf("audio params not preserved: %+v", hello.AudioParams)
	}
	if !hello.Features.MCP {
		t.Fatalf("expected mcp feature flag preserved")
	}
}

func TestEnvelopeRoundTripListenAndTTS(t *testing.T) {
	cases := []Message{
		&Listen{State: "start", Mode: "auto"},
		&TTS{State: "sentence_start", Text: "hello there"},
		&Abort{Reason: "user_cancel"},
		&Goodbye{SessionID: "abc"},
	}
	for _, msg := range cases {
		data, err := json.Marshal(NewEnvelope(msg))
		if err != nil {
			t.Fatalf("marshal %T: %v", msg, err)
		}
		var decoded Envelope
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("unmarshal %T: %v", msg, err)
		}
		if decoded.Type != msg.messageType() {
			t.Errorf("type mismatch for %T: got %q", msg, decoded.Type)
		}
	}
}

func TestEnvelopeUnknownTypeErrors(t *testing.T) {
	var env Envelope
	if err := json.Unmarshal([]byte(`{"type":"bogus"}`), &env); err == nil {
		t.Fatalf("expected error for unknown message type")
	}
}

func TestMCPEnvelopeCarriesRawJSONRPC(t *testing.T) {
	rpc := JSONRPCRequest{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: "tools/list"}
	rpcJSON, err := json.Marshal(rpc)
	if err != nil {
		t.Fatalf("marshal rpc: %v", err)
	}
	env := NewEnvelope(&MCPEnvelope{SessionID: "s1", Payload: rpcJSON})
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	var decoded Envelope
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	mcp, ok := decoded.Payload.(*MCPEnvelope)
	if !ok {
		t.Fatalf("expected *MCPEnvelope, got %T", decoded.Payload)
	}
	var decodedRPC JSONRPCRequest
	if err := json.Unmarshal(mcp.Payload, &decodedRPC); err != nil {
		t.Fatalf("unmarshal inner rpc: %v", err)
	}
	if decodedRPC.Method != "tools/list" {
		t.Fatalf("expected tools/list, got %q", decodedRPC.Method)
	}
}

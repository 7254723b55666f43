package bridge

import (
	"encoding/json"
	"net"
	"testing"
	"time"
)

func freeUDPAddr(t *testing.T) string {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("find free udp addr: %v", err)
	}
	addr := conn.LocalAddr().String()
	conn.Close()
	return addr
}

func TestGUISendDeliversStateEvent(t *testing.T) {
	addr := freeUDPAddr(t)
	laddr, _ := net.ResolveUDPAddr("udp", addr)
	rx, err := net.ListenUDP("udp", laddr)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer rx.Close()

	g, err := NewGUI(addr, "", nil)
	if err != nil {
		t.Fatalf("NewGUI: %v", err)
	}
	defer g.Close()

	if err := g.Send(map[string]any{"event": "state", "value": "listening"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	buf := make([]byte, 1024)
	rx.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := rx.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(buf[:n], &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["event"] != "state" || got["value"] != "listening" {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestGUIListenDispatchesTextAndTrigger(t *testing.T) {
	inAddr := freeUDPAddr(t)
	g, err := NewGUI("", inAddr, nil)
	if err != nil {
		t.Fatalf("NewGUI: %v", err)
	}
	defer g.Close()

	events := make(chan GUIEvent, 4)
	go g.Listen(func(ev GUIEvent) { events <- ev })

	raddr, _ := net.ResolveUDPAddr("udp", inAddr)
	tx, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer tx.Close()

	tx.Write([]byte(`{"type":"text","text":"turn on the lights"}`))
	tx.Write([]byte(`{"type":"trigger"}`))

	var gotText, gotTrigger bool
	for i := 0; i < 2; i++ {
		select {
		case ev := <-events:
			if ev.Text == "turn on the lights" {
				gotText = true
			}
			if ev.Trigger {
				gotTrigger = true
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for gui events")
		}
	}
	if !gotText || !gotTrigger {
		t.Fatalf("expected both text and trigger events, got text=%v trigger=%v", gotText, gotTrigger)
	}
}

func TestIoTSendForwardsRawPayload(t *testing.T) {
	addr := freeUDPAddr(t)
	laddr, _ := net.ResolveUDPAddr("udp", addr)
	rx, err := net.ListenUDP("udp", laddr)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer rx.Close()

	iot, err := NewIoT(addr)
	if err != nil {
		t.Fatalf("NewIoT: %v", err)
	}
	defer iot.Close()

	payload := []byte(`{"type":"iot","command":"toggle_light"}`)
	if err := iot.Send(payload); err != nil {
		t.Fatalf("Send: %v", err)
	}

	buf := make([]byte, 1024)
	rx.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := rx.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf[:n]) != string(payload) {
		t.Fatalf("expected passthrough, got %q", buf[:n])
	}
}

func TestNoOpIoTBridgeIsSilent(t *testing.T) {
	iot, err := NewIoT("")
	if err != nil {
		t.Fatalf("NewIoT: %v", err)
	}
	if err := iot.Send([]byte("anything")); err != nil {
		t.Fatalf("Send on no-op bridge should not error: %v", err)
	}
}

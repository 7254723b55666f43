// Package bridge implements the thin, ack-less UDP datagram channels that
// connect the Controller to a sibling GUI process and to IoT command
// consumers. No acknowledgment, no retry: best-effort presentation channels
// only.
package bridge

import (
	"encoding/json"
	"fmt"
	"net"

	"voxcore/pkg/logging"
)

// GUIEvent is an inbound datagram from the GUI process: either free text or
// an explicit manual trigger.
type GUIEvent struct {
	Text    string
	Trigger bool
}

// GUI sends status/toast/code events to a sibling GUI process and receives
// user text or trigger events from it.
type GUI struct {
	out    *net.UDPConn
	in     *net.UDPConn
	logger logging.Logger
}

// NewGUI dials outAddr for sends and, if inAddr is non-empty, listens on it
// for inbound GUI events.
func NewGUI(outAddr, inAddr string, logger logging.Logger) (*GUI, error) {
	if logger == nil {
		logger = logging.Default("bridge.gui")
	}
	g := &GUI{logger: logger}

	if outAddr != "" {
		raddr, err := net.ResolveUDPAddr("udp", outAddr)
		if err != nil {
			return nil, fmt.Errorf("bridge: resolve gui out addr: %w", err)
		}
		conn, err := net.DialUDP("udp", nil, raddr)
		if err != nil {
			return nil, fmt.Errorf("bridge: dial gui out: %w", err)
		}
		g.out = conn
	}

	if inAddr != "" {
		laddr, err := net.ResolveUDPAddr("udp", inAddr)
		if err != nil {
			return nil, fmt.Errorf("bridge: resolve gui in addr: %w", err)
		}
		conn, err := net.ListenUDP("udp", laddr)
		if err != nil {
			return nil, fmt.Errorf("bridge: listen gui in: %w", err)
		}
		g.in = conn
	}

	return g, nil
}

// Send marshals payload as JSON and sends it as a single datagram.
func (g *GUI) Send(payload map[string]any) error {
	if g.out == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("bridge: marshal gui payload: %w", err)
	}
	_, err = g.out.Write(data)
	return err
}

// Toast is a convenience wrapper for the {"event":"toast",...} shape.
func (g *GUI) Toast(text string) error {
	return g.Send(map[string]any{"event": "toast", "text": text})
}

// ActivationCode is a convenience wrapper for the {"event":"code",...} shape.
func (g *GUI) ActivationCode(code string) error {
	return g.Send(map[string]any{"event": "code", "value": code})
}

// Listen reads inbound GUI datagrams until the connection is closed, invoking
// onEvent for each successfully decoded one. Malformed datagrams are
// discarded and logged. Intended to run on its own goroutine.
func (g *GUI) Listen(onEvent func(GUIEvent)) {
	if g.in == nil {
		return
	}
	buf := make([]byte, 4096)
	for {
		n, _, err := g.in.ReadFromUDP(buf)
		if err != nil {
			return
		}
		var head struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}
		if err := json.Unmarshal(buf[:n], &head); err != nil {
			g.logger.WarnPrintf("discarding malformed gui datagram: %v", err)
			continue
		}
		switch head.Type {
		case "text":
			onEvent(GUIEvent{Text: head.Text})
		case "trigger":
			onEvent(GUIEvent{Trigger: true})
		default:
			g.logger.WarnPrintf("unknown gui event type %q", head.Type)
		}
	}
}

// Close releases both sockets.
func (g *GUI) Close() error {
	var err error
	if g.out != nil {
		err = g.out.Close()
	}
	if g.in != nil {
		if closeErr := g.in.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}

// IoT forwards cloud-originated IoT command payloads verbatim to a sibling
// consumer over UDP, outbound only.
type IoT struct {
	out *net.UDPConn
}

// NewIoT dials outAddr. An empty address produces a no-op IoT bridge.
func NewIoT(outAddr string) (*IoT, error) {
	if outAddr == "" {
		return &IoT{}, nil
	}
	raddr, err := net.ResolveUDPAddr("udp", outAddr)
	if err != nil {
		return nil, fmt.Errorf("bridge: resolve iot out addr: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("bridge: dial iot out: %w", err)
	}
	return &IoT{out: conn}, nil
}

// Send forwards raw as a single datagram, unmodified.
func (i *IoT) Send(raw []byte) error {
	if i.out == nil {
		return nil
	}
	_, err := i.out.Write(raw)
	return err
}

// Close releases the socket.
func (i *IoT) Close() error {
	if i.out == nil {
		return nil
	}
	return i.out.Close()
}

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"voxcore/pkg/logging"
	"voxcore/pkg/protocol"
)

// ErrClosed is returned by send operations on a session that has already
// been closed.
var ErrClosed = errors.New("transport: session closed")

// Frame is one item received from the cloud session: either a text control
// message or a raw binary (Opus) payload.
type Frame struct {
	Message *protocol.Envelope
	Binary  []byte
	Err     error
}

// Session is a connected full-duplex cloud websocket session.
type Session struct {
	conn *websocket.Conn

	closeCh   chan struct{}
	framesCh  chan Frame
	closeOnce sync.Once
	writeMu   sync.Mutex
	logger    logging.Logger
}

// DialConfig carries the parameters needed to open a session.
type DialConfig struct {
	URL             string
	AuthToken       string
	DeviceID        string
	ClientID        string
	ProtocolVersion int
}

// Dial opens the websocket session with the headers the cloud expects.
func Dial(ctx context.Context, cfg DialConfig, logger logging.Logger) (*Session, error) {
	if logger == nil {
		logger = logging.Default("transport.ws")
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+cfg.AuthToken)
	headers.Set("Device-Id", cfg.DeviceID)
	headers.Set("Client-Id", cfg.ClientID)
	headers.Set("Protocol-Version", fmt.Sprintf("%d", cfg.ProtocolVersion))

	dialer := websocket.Dialer{}
	conn, resp, err := dialer.DialContext(ctx, cfg.URL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("transport: connect failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("transport: connect failed: %w", err)
	}

	s := &Session{
		conn:     conn,
		closeCh:  make(chan struct{}),
		framesCh: make(chan Frame, 64),
		logger:   logger,
	}
	go s.readLoop()
	return s, nil
}

func (s *Session) isClosed() bool {
	select {
	case <-s.closeCh:
		return true
	default:
		return false
	}
}

// SendMessage sends a text control message.
func (s *Session) SendMessage(msg protocol.Message) error {
	if s.isClosed() {
		return ErrClosed
	}
	env := protocol.NewEnvelope(msg)
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("transport: marshal message: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// SendBinary sends a raw binary (Opus) frame.
func (s *Session) SendBinary(data []byte) error {
	if s.isClosed() {
		return ErrClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, data)
}

// Ping sends a websocket control-frame ping, used as the session heartbeat.
func (s *Session) Ping() error {
	if s.isClosed() {
		return ErrClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
}

// Frames returns an iterator over incoming frames. Iteration ends when the
// session closes or the connection errors.
func (s *Session) Frames() iter.Seq2[Frame, error] {
	return func(yield func(Frame, error) bool) {
		for {
			select {
			case <-s.closeCh:
				return
			case f, ok := <-s.framesCh:
				if !ok {
					return
				}
				if !yield(f, f.Err) {
					return
				}
				if f.Err != nil {
					return
				}
			}
		}
	}
}

// Close sends a best-effort Goodbye control message and closes the
// underlying connection. The Goodbye send error, if any, is ignored: the
// connection is coming down either way.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.SendMessage(&protocol.Goodbye{})
		close(s.closeCh)
		err = s.conn.Close()
	})
	return err
}

func (s *Session) readLoop() {
	defer close(s.framesCh)

	for {
		select {
		case <-s.closeCh:
			return
		default:
		}

		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			s.deliver(Frame{Err: fmt.Errorf("transport: read: %w", err)})
			return
		}

		switch kind {
		case websocket.TextMessage:
			var env protocol.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				s.logger.WarnPrintf("discarding malformed text message: %v", err)
				continue
			}
			s.deliver(Frame{Message: &env})
		case websocket.BinaryMessage:
			s.deliver(Frame{Binary: data})
		}
	}
}

func (s *Session) deliver(f Frame) {
	select {
	case <-s.closeCh:
	case s.framesCh <- f:
	}
}

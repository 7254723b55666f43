package main

import (
	"fmt"
	"sync/atomic"

	"voxcore/pkg/protocol"
	"voxcore/pkg/transport"
)

// sessionSender is a NetSender whose backing *transport.Session changes
// across reconnects; the Controller holds one for its whole lifetime while
// transport.Maintain swaps the underlying session out from under it.
type sessionSender struct {
	current atomic.Pointer[transport.Session]
}

func (s *sessionSender) set(session *transport.Session) { s.current.Store(session) }
func (s *sessionSender) clear()                         { s.current.Store(nil) }

func (s *sessionSender) SendMessage(msg protocol.Message) error {
	session := s.current.Load()
	if session == nil {
		return fmt.Errorf("netsender: no active session")
	}
	return session.SendMessage(msg)
}

func (s *sessionSender) SendBinary(data []byte) error {
	session := s.current.Load()
	if session == nil {
		return fmt.Errorf("netsender: no active session")
	}
	return session.SendBinary(data)
}

func (s *sessionSender) Ping() error {
	session := s.current.Load()
	if session == nil {
		return nil
	}
	return session.Ping()
}

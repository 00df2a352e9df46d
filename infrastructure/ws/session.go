package ws

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"ajar-messaging/domain"
	"ajar-messaging/errors"
)

// Session adapts one websocket connection to the messaging core. Outbound
// frames go through a bounded queue drained by a single writer goroutine,
// so sends from the room's critical section never write to the socket
// directly and never block longer than the delivery timeout. A peer that
// cannot drain its queue in time surfaces as a send error, which the room
// treats as a disconnect.
type Session struct {
	conn            *websocket.Conn
	log             *slog.Logger
	outbound        chan Frame
	deliveryTimeout time.Duration
	closeOnce       sync.Once
	done            chan struct{}
	closed          atomic.Bool
}

func NewSession(conn *websocket.Conn, bufferSize int, deliveryTimeout time.Duration, log *slog.Logger) *Session {
	s := &Session{
		conn:            conn,
		log:             log,
		outbound:        make(chan Frame, bufferSize),
		deliveryTimeout: deliveryTimeout,
		done:            make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

// writeLoop is the only goroutine that writes to the socket.
func (s *Session) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case frame := <-s.outbound:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.deliveryTimeout))
			if err := s.conn.WriteJSON(frame); err != nil {
				s.log.Debug("socket write failed, closing session", "error", err)
				_ = s.Close()
				return
			}
		}
	}
}

func (s *Session) enqueue(frame Frame) error {
	if s.closed.Load() {
		return errors.ErrSessionClosed
	}
	select {
	case s.outbound <- frame:
		return nil
	case <-s.done:
		return errors.ErrSessionClosed
	case <-time.After(s.deliveryTimeout):
		return fmt.Errorf("outbound queue full for %s", s.deliveryTimeout)
	}
}

func (s *Session) SendHistory(history []domain.Message) error {
	return s.enqueue(Frame{Type: FrameHistory, Messages: toPayloads(history)})
}

func (s *Session) SendMessage(msg domain.Message) error {
	payload := toPayload(msg)
	return s.enqueue(Frame{Type: FrameMessage, Message: &payload})
}

func (s *Session) SendNotice(notice string) error {
	return s.enqueue(Frame{Type: FrameDeparture, Notice: notice})
}

// SendError reports a rejected inbound message back to this client only.
func (s *Session) SendError(reason string) error {
	return s.enqueue(Frame{Type: FrameError, Error: reason})
}

// Receive blocks until the peer sends a text payload or the connection
// closes.
func (s *Session) Receive() (string, error) {
	_, payload, err := s.conn.ReadMessage()
	if err != nil {
		return "", fmt.Errorf("session receive: %w", err)
	}
	return string(payload), nil
}

func (s *Session) Closed() bool { return s.closed.Load() }

func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.done)
		_ = s.conn.Close()
	})
	return nil
}

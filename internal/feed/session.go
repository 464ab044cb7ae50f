package feed

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	// ErrSessionClosed is returned by Send after Close.
	ErrSessionClosed = errors.New("feed: session closed")
	// ErrSessionBacklogged is returned by Send when the outbound buffer is
	// full. The caller treats it like a broken transport.
	ErrSessionBacklogged = errors.New("feed: session backlogged")
)

// Conn is the write side of a session's transport. *websocket.Conn
// satisfies it; tests substitute fakes.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Session is one open live-feed connection. All writes to the underlying
// transport go through a single pump goroutine, so frames queued with Send
// reach the wire in FIFO order.
type Session struct {
	id   string
	conn Conn
	out  chan []byte
	done chan struct{}
	once sync.Once
}

// NewSession wraps conn and starts the write pump. buffer is the number of
// outbound frames that may be pending before Send starts failing.
func NewSession(conn Conn, buffer int) *Session {
	if buffer <= 0 {
		buffer = 64
	}
	s := &Session{
		id:   uuid.NewString(),
		conn: conn,
		out:  make(chan []byte, buffer),
		done: make(chan struct{}),
	}
	go s.writePump()
	return s
}

func (s *Session) ID() string { return s.id }

// Send queues one frame for delivery. It never blocks: a closed session or
// a full buffer is reported as an error so the caller can evict the session.
func (s *Session) Send(frame []byte) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.out <- frame:
		return nil
	case <-s.done:
		return ErrSessionClosed
	default:
		return ErrSessionBacklogged
	}
}

// Close shuts the session down and closes the transport. Safe to call more
// than once and from any goroutine.
func (s *Session) Close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

func (s *Session) writePump() {
	for {
		select {
		case frame := <-s.out:
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}

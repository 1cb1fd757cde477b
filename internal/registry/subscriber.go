package registry

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// ErrSubscriberClosed is returned when writing to a subscriber that has been removed
var ErrSubscriberClosed = errors.New("subscriber closed")

var nextID atomic.Uint64

// Subscriber owns the output side of one accepted connection
type Subscriber struct {
	id           uint64
	conn         net.Conn
	writeTimeout time.Duration

	mu        sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewSubscriber wraps conn. A positive writeTimeout bounds every write.
func NewSubscriber(conn net.Conn, writeTimeout time.Duration) *Subscriber {
	return &Subscriber{
		id:           nextID.Add(1),
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

func (s *Subscriber) ID() uint64 {
	return s.id
}

// Addr describes the remote end for logs. Unix peers are usually unnamed.
func (s *Subscriber) Addr() string {
	if addr := s.conn.RemoteAddr(); addr != nil && addr.String() != "" {
		return addr.String()
	}
	return "@anonymous"
}

// Alive reports whether the subscriber has not been closed
func (s *Subscriber) Alive() bool {
	return !s.closed.Load()
}

// Write sends p in full. Writes to one subscriber are serialized, so the
// welcome message always precedes any event.
func (s *Subscriber) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return ErrSubscriberClosed
	}
	if s.writeTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			return err
		}
	}
	_, err := s.conn.Write(p)
	return err
}

// Close marks the subscriber dead and closes its connection. A write blocked
// on the connection is released with an error.
func (s *Subscriber) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

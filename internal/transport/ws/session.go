package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// session is one live connection. Outbound events go through a bounded queue
// drained by a single writer goroutine; a full queue marks the session a slow
// consumer and closes it instead of buffering without bound.
type session struct {
	id       string
	identity string
	conn     *websocket.Conn

	out  chan Event
	done chan struct{}
	once sync.Once

	mu        sync.Mutex
	closeCode int
	closeText string
}

func newSession(id, identity string, conn *websocket.Conn, queueSize int) *session {
	return &session{
		id:        id,
		identity:  identity,
		conn:      conn,
		out:       make(chan Event, queueSize),
		done:      make(chan struct{}),
		closeCode: websocket.CloseNormalClosure,
	}
}

func (s *session) ID() string       { return s.id }
func (s *session) Identity() string { return s.identity }

// Enqueue queues an event for delivery. Returns false only when the queue is
// full; events offered to an already-closing session are dropped as delivered.
func (s *session) Enqueue(ev Event) bool {
	select {
	case <-s.done:
		return true
	default:
	}
	select {
	case s.out <- ev:
		return true
	default:
		return false
	}
}

func (s *session) CloseSlow() {
	s.terminate(websocket.CloseGoingAway, "slow consumer")
}

func (s *session) terminate(code int, text string) {
	s.once.Do(func() {
		s.mu.Lock()
		s.closeCode, s.closeText = code, text
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *session) closeReason() (int, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCode, s.closeText
}

// writePump is the only writer on the connection. It drains the queue, keeps
// the peer alive with pings and emits the close frame on shutdown.
func (s *session) writePump(pingEvery, writeTimeout time.Duration) {
	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()

	for {
		select {
		case ev := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteJSON(ev); err != nil {
				s.terminate(websocket.CloseAbnormalClosure, "")
				_ = s.conn.Close()
				return
			}
		case <-ticker.C:
			_ = s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
		case <-s.done:
			code, text := s.closeReason()
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(code, text), time.Now().Add(writeTimeout))
			_ = s.conn.Close()
			return
		}
	}
}

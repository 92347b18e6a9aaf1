package signaling

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// writeTimeout bounds a single WebSocket write.
const writeTimeout = 10 * time.Second

// sender serializes outgoing signaling messages to one WebSocket.
// gorilla/websocket allows one concurrent writer, and both the broker and
// endpoints write from several goroutines.
type sender struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// send writes a signaling message to the WebSocket, guarded by a mutex.
func (s *sender) send(msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(msg)
}

// sendClose writes a close frame with the given code and reason.
func (s *sender) sendClose(code int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(writeTimeout))
}

package server

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const writeDeadline = 5 * time.Second

// wsTransport adapts a gorilla websocket connection to the engine's Transport
// handle. All writes are serialized through a mutex: the broadcast engine,
// the keep-alive supervisor and the close path write from different
// goroutines.
type wsTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	closed  atomic.Bool
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) Send(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	_ = t.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	return nil
}

func (t *wsTransport) SendPing(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	_ = t.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return t.conn.WriteMessage(websocket.PingMessage, data)
}

// Close writes a close frame with the given code and closes the socket.
// Subsequent calls are no-ops.
func (t *wsTransport) Close(code int, reason string) error {
	if t.closed.Swap(true) {
		return nil
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	message := websocket.FormatCloseMessage(code, reason)
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	_ = t.conn.WriteMessage(websocket.CloseMessage, message)
	return t.conn.Close()
}

func (t *wsTransport) Active() bool {
	return !t.closed.Load()
}

package engine

import (
	"fmt"

	"github.com/mbergstrom/chatrelay/internal/domain"
)

// Websocket close codes used by the engine.
const (
	CloseNormal              = 1000
	CloseUnexpectedCondition = 1011
)

// Transport is the send/close half of an underlying socket. Implementations
// must serialize concurrent writes themselves; the engine calls Send, SendPing
// and Close from independent goroutines.
type Transport interface {
	Send(data []byte) error
	SendPing(data []byte) error
	Close(code int, reason string) error
	Active() bool
}

// HandshakeResult is the immutable outcome of an accepted handshake, passed
// directly into connection construction. Claims are resolved before the
// upgrade; a Connection never exists for an unauthenticated peer.
type HandshakeResult struct {
	Claims     domain.Claims
	RemoteHost string
	RemoteAddr string
	RemotePort string
	ServerHost string
}

// Connection represents one live client session. It is created by the
// Coordinator at handshake-accept time and destroyed at session close; all
// other components hold references only.
type Connection struct {
	SessionID  string
	UserID     string
	Claims     domain.Claims
	RemoteHost string
	RemoteAddr string
	RemotePort string
	ServerHost string

	transport Transport
}

// NewConnection wraps an accepted transport with its handshake identity.
func NewConnection(sessionID string, hs HandshakeResult, transport Transport) *Connection {
	return &Connection{
		SessionID:  sessionID,
		UserID:     hs.Claims.UserID,
		Claims:     hs.Claims,
		RemoteHost: hs.RemoteHost,
		RemoteAddr: hs.RemoteAddr,
		RemotePort: hs.RemotePort,
		ServerHost: hs.ServerHost,
		transport:  transport,
	}
}

// Send writes data to the peer.
func (c *Connection) Send(data []byte) error {
	return c.transport.Send(data)
}

// SendPing writes a liveness probe to the peer.
func (c *Connection) SendPing(data []byte) error {
	return c.transport.SendPing(data)
}

// Close closes the underlying transport with the given code. Safe to call on
// an already-closed transport.
func (c *Connection) Close(code int, reason string) error {
	return c.transport.Close(code, reason)
}

// Active reports whether the underlying transport is still usable.
func (c *Connection) Active() bool {
	return c.transport.Active()
}

func (c *Connection) String() string {
	return fmt.Sprintf("connection{session=%s user=%s remote=%s:%s}",
		c.SessionID, c.UserID, c.RemoteAddr, c.RemotePort)
}

package engine

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mbergstrom/chatrelay/internal/domain"
	"github.com/mbergstrom/chatrelay/internal/metrics"
)

// Coordinator wires handshake, open, message loop and close together, keeping
// the connection registry, the subscription index and the transfer buffer
// consistent with each other. One long-lived Coordinator serves every
// connection; the transport layer hands it events on per-connection
// goroutines.
type Coordinator struct {
	registry   *ConnectionRegistry
	subs       *SubscriptionIndex
	transfers  *TransferBuffer
	dispatcher *Dispatcher
	keepalive  *KeepAliveSupervisor
	store      domain.Store

	// onClose is invoked after a session is fully torn down; nil is allowed.
	onClose func(*Connection)
}

func NewCoordinator(
	registry *ConnectionRegistry,
	subs *SubscriptionIndex,
	transfers *TransferBuffer,
	dispatcher *Dispatcher,
	keepalive *KeepAliveSupervisor,
	store domain.Store,
	onClose func(*Connection),
) *Coordinator {
	return &Coordinator{
		registry:   registry,
		subs:       subs,
		transfers:  transfers,
		dispatcher: dispatcher,
		keepalive:  keepalive,
		store:      store,
		onClose:    onClose,
	}
}

// Open constructs and registers a Connection for an accepted, authenticated
// handshake, seeds its channel subscriptions from the persisted subscription
// table, and starts its keep-alive probe. Claims must already be resolved;
// unauthenticated handshakes are rejected before a Connection ever exists.
func (c *Coordinator) Open(ctx context.Context, hs HandshakeResult, transport Transport) *Connection {
	conn := NewConnection(uuid.NewString(), hs, transport)
	c.registry.Register(conn)
	metrics.ActiveConnections.Set(float64(c.registry.Len()))

	slog.Info("Connection opened",
		"session_id", conn.SessionID,
		"user_id", conn.UserID,
		"user_email", conn.Claims.Email,
		"remote_addr", conn.RemoteAddr)

	// Seeding failures leave the connection usable with an empty index; the
	// index is eventually consistent by contract.
	channels, err := c.store.ChannelsForUser(ctx, conn.UserID)
	if err != nil {
		slog.Error("Could not seed subscriptions for connection",
			"session_id", conn.SessionID, "user_id", conn.UserID, "error", err)
	} else {
		for _, channel := range channels {
			c.subs.EnsureSubscriber(channel.ID, conn)
		}
	}

	c.keepalive.Start(conn)
	return conn
}

// HandleChunk feeds one binary chunk into the session's transfer buffer and,
// when the frame completes, dispatches the decoded action synchronously.
// Chunks of one session arrive on a single goroutine, so actions from a
// connection are processed strictly in arrival order.
func (c *Coordinator) HandleChunk(ctx context.Context, sessionID string, chunk []byte, final bool) {
	frame, done := c.transfers.AppendChunk(sessionID, chunk, final)
	if !done {
		return
	}

	conn, ok := c.registry.LookupBySession(sessionID)
	if !ok {
		slog.Warn("Frame completed for unknown session", "session_id", sessionID)
		return
	}

	if err := c.dispatcher.Dispatch(ctx, conn, frame); err != nil {
		// Malformed or failed actions drop the frame; the connection stays
		// open.
		slog.Error("Action dispatch failed",
			"session_id", sessionID, "user_id", conn.UserID, "error", err)
	}
}

// Close tears a session down: the keep-alive probe is discarded exactly once,
// the connection leaves both registries and every channel set, any in-flight
// transfer is dropped, and the close hook fires. Safe to call from the client
// close path, the server close path and the probe failure path concurrently.
func (c *Coordinator) Close(sessionID string) {
	c.keepalive.Stop(sessionID)
	c.transfers.Discard(sessionID)

	conn, ok := c.registry.Unregister(sessionID)
	if !ok {
		// Already closed by the other direction.
		return
	}
	metrics.ActiveConnections.Set(float64(c.registry.Len()))

	c.subs.RemoveConnection(conn)
	_ = conn.Close(CloseNormal, "session closed")

	slog.Info("Connection closed",
		"session_id", conn.SessionID,
		"user_id", conn.UserID,
		"remote_addr", conn.RemoteAddr)

	if c.onClose != nil {
		c.onClose(conn)
	}
}

// SubscribeNewChannel adds the creator's live connection to a channel created
// outside the socket (the REST channel-create hook) so no client round trip
// is needed. No-op when the user has no live connection.
func (c *Coordinator) SubscribeNewChannel(userID, channelID string) {
	conn, ok := c.registry.LookupByUser(userID)
	if !ok {
		slog.Debug("No live connection for new channel creator",
			"user_id", userID, "channel_id", channelID)
		return
	}
	c.subs.EnsureSubscriber(channelID, conn)
}

// Shutdown closes every live session, used at process exit.
func (c *Coordinator) Shutdown() {
	for _, conn := range c.registry.All() {
		c.Close(conn.SessionID)
	}
}

// Registry exposes the connection registry for collaborators needing lookups.
func (c *Coordinator) Registry() *ConnectionRegistry {
	return c.registry
}

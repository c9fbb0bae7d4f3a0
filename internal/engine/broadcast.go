package engine

import (
	"encoding/json"
	"log/slog"

	"github.com/mbergstrom/chatrelay/internal/metrics"
)

// Broadcaster serializes a response once and sends it to every connection in
// a target set. A failing member never prevents delivery to the remaining
// members: its session is closed with an unexpected-condition code and the
// close handler takes care of registry cleanup.
type Broadcaster struct{}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

// Broadcast sends response to every target. Targets must be a stable
// snapshot; concurrent removals from the registries do not affect iteration.
func (b *Broadcaster) Broadcast(targets []*Connection, response Response) {
	if len(targets) == 0 {
		slog.Debug("Broadcast with no subscribers", "type", response.Type)
		return
	}

	data, err := json.Marshal(response)
	if err != nil {
		slog.Error("Failed to marshal broadcast response", "type", response.Type, "error", err)
		return
	}

	metrics.BroadcastsTotal.Inc()
	slog.Debug("Broadcasting", "type", response.Type, "targets", len(targets))

	for _, conn := range targets {
		if !conn.Active() {
			b.closeFailed(conn, "inactive transport")
			continue
		}
		if err := conn.Send(data); err != nil {
			slog.Warn("Broadcast send failed, closing connection",
				"session_id", conn.SessionID, "user_id", conn.UserID, "error", err)
			b.closeFailed(conn, "send failure")
			continue
		}
		metrics.BroadcastDeliveries.Inc()
	}
}

func (b *Broadcaster) closeFailed(conn *Connection, reason string) {
	metrics.BroadcastSendFailures.Inc()
	_ = conn.Close(CloseUnexpectedCondition, reason)
}

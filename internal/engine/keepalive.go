package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mbergstrom/chatrelay/internal/metrics"
)

var pingPayload = []byte("ping")

// KeepAliveSupervisor runs one recurring liveness probe per connection. A
// failed probe immediately closes the connection and reports the session to
// the failure callback for teardown. Stop is idempotent against double-close.
type KeepAliveSupervisor struct {
	clock     clockwork.Clock
	interval  time.Duration
	onFailure func(sessionID string)

	mu    sync.Mutex
	stops map[string]chan struct{}
}

func NewKeepAliveSupervisor(clock clockwork.Clock, interval time.Duration, onFailure func(sessionID string)) *KeepAliveSupervisor {
	return &KeepAliveSupervisor{
		clock:     clock,
		interval:  interval,
		onFailure: onFailure,
		stops:     make(map[string]chan struct{}),
	}
}

// Start begins probing the connection on the configured interval. Starting an
// already-supervised session restarts its probe.
func (s *KeepAliveSupervisor) Start(conn *Connection) {
	stop := make(chan struct{})

	s.mu.Lock()
	if prev, ok := s.stops[conn.SessionID]; ok {
		close(prev)
	}
	s.stops[conn.SessionID] = stop
	s.mu.Unlock()

	go s.run(conn, stop)
}

// Stop discards the session's probe. Safe to call multiple times and for
// unknown sessions.
func (s *KeepAliveSupervisor) Stop(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stop, ok := s.stops[sessionID]; ok {
		close(stop)
		delete(s.stops, sessionID)
	}
}

// StopAll discards every probe, used at shutdown.
func (s *KeepAliveSupervisor) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for sessionID, stop := range s.stops {
		close(stop)
		delete(s.stops, sessionID)
	}
}

// Supervised reports whether the session currently has a probe.
func (s *KeepAliveSupervisor) Supervised(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.stops[sessionID]
	return ok
}

func (s *KeepAliveSupervisor) run(conn *Connection, stop <-chan struct{}) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			metrics.KeepAlivePingsTotal.Inc()
			if err := conn.SendPing(pingPayload); err != nil {
				metrics.KeepAlivePingFailures.Inc()
				slog.Warn("Keep-alive ping failed, closing connection",
					"session_id", conn.SessionID, "user_id", conn.UserID, "error", err)

				_ = conn.Close(CloseUnexpectedCondition, "keep-alive failure")
				s.Stop(conn.SessionID)
				if s.onFailure != nil {
					s.onFailure(conn.SessionID)
				}
				return
			}
			slog.Debug("Keep-alive ping sent", "session_id", conn.SessionID)
		case <-stop:
			return
		}
	}
}

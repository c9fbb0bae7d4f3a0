package engine

import "sync"

// ConnectionRegistry owns the set of live connections, keyed by session id
// (primary, one entry per session) and by user id (secondary, at most one
// entry per user). A new login for an already-connected user replaces the
// user mapping without closing the previous session.
type ConnectionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Connection
	users    map[string]*Connection
}

func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		sessions: make(map[string]*Connection),
		users:    make(map[string]*Connection),
	}
}

// Register inserts the connection into both mappings. The user mapping uses
// last-writer-wins semantics.
func (r *ConnectionRegistry) Register(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[conn.SessionID] = conn
	r.users[conn.UserID] = conn
}

// Unregister removes and returns the connection for sessionID. The user
// mapping is only cleared when it still points at this session, so a newer
// mapping created by a reconnect race is never evicted.
func (r *ConnectionRegistry) Unregister(sessionID string) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	delete(r.sessions, sessionID)

	if current, ok := r.users[conn.UserID]; ok && current.SessionID == sessionID {
		delete(r.users, conn.UserID)
	}
	return conn, true
}

// LookupBySession returns the connection registered under sessionID.
func (r *ConnectionRegistry) LookupBySession(sessionID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.sessions[sessionID]
	return conn, ok
}

// LookupByUser returns the connection currently mapped for userID.
func (r *ConnectionRegistry) LookupByUser(userID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.users[userID]
	return conn, ok
}

// Len returns the number of registered sessions.
func (r *ConnectionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// All returns a snapshot of every registered connection.
func (r *ConnectionRegistry) All() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Connection, 0, len(r.sessions))
	for _, conn := range r.sessions {
		conns = append(conns, conn)
	}
	return conns
}

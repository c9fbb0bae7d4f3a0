package engine

import "sync"

// SubscriptionIndex maps channel ids to the set of connections subscribed to
// them. Connections are held by reference and never owned; removal from the
// index never closes a connection. The index is seeded from the persisted
// subscription table at connection open and updated incrementally afterwards,
// so it tracks the store eventually, not transactionally.
type SubscriptionIndex struct {
	mu       sync.RWMutex
	channels map[string]map[*Connection]struct{}
}

func NewSubscriptionIndex() *SubscriptionIndex {
	return &SubscriptionIndex{channels: make(map[string]map[*Connection]struct{})}
}

// EnsureSubscriber idempotently adds the connection to the channel's set,
// creating the set if absent.
func (s *SubscriptionIndex) EnsureSubscriber(channelID string, conn *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.channels[channelID]
	if !ok {
		set = make(map[*Connection]struct{})
		s.channels[channelID] = set
	}
	set[conn] = struct{}{}
}

// RemoveSubscriber removes the connection from the channel's set. A missing
// channel or member is a no-op.
func (s *SubscriptionIndex) RemoveSubscriber(channelID string, conn *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if set, ok := s.channels[channelID]; ok {
		delete(set, conn)
	}
}

// RemoveConnection removes the connection from every channel set. Invoked
// once, at session close.
func (s *SubscriptionIndex) RemoveConnection(conn *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, set := range s.channels {
		delete(set, conn)
	}
}

// RemoveChannel atomically detaches and returns the channel's subscriber set.
// Returns an empty slice for an unknown channel.
func (s *SubscriptionIndex) RemoveChannel(channelID string) []*Connection {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.channels[channelID]
	if !ok {
		return nil
	}
	delete(s.channels, channelID)

	conns := make([]*Connection, 0, len(set))
	for conn := range set {
		conns = append(conns, conn)
	}
	return conns
}

// Subscribers returns a snapshot of the channel's subscriber set, safe to
// iterate while other goroutines mutate the index. Unknown channels yield an
// empty slice, never an error.
func (s *SubscriptionIndex) Subscribers(channelID string) []*Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := s.channels[channelID]
	conns := make([]*Connection, 0, len(set))
	for conn := range set {
		conns = append(conns, conn)
	}
	return conns
}

// PeersOf returns a snapshot of the union of every channel subscriber set
// that currently contains conn. The union includes conn itself.
func (s *SubscriptionIndex) PeersOf(conn *Connection) []*Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[*Connection]struct{})
	for _, set := range s.channels {
		if _, ok := set[conn]; !ok {
			continue
		}
		for member := range set {
			seen[member] = struct{}{}
		}
	}

	conns := make([]*Connection, 0, len(seen))
	for member := range seen {
		conns = append(conns, member)
	}
	return conns
}

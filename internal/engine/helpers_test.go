package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mbergstrom/chatrelay/internal/domain"
)

// fakeTransport records writes and close calls for assertions.
type fakeTransport struct {
	mu        sync.Mutex
	sent      [][]byte
	pings     [][]byte
	closed    bool
	closeCode int
	sendErr   error
	pingErr   error
}

func (t *fakeTransport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, append([]byte(nil), data...))
	return nil
}

func (t *fakeTransport) SendPing(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pingErr != nil {
		return t.pingErr
	}
	t.pings = append(t.pings, append([]byte(nil), data...))
	return nil
}

func (t *fakeTransport) Close(code int, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		t.closeCode = code
	}
	return nil
}

func (t *fakeTransport) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

func (t *fakeTransport) sentCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}

func (t *fakeTransport) pingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pings)
}

func (t *fakeTransport) isClosed() (bool, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed, t.closeCode
}

// wireResponse mirrors Response with the payload kept raw for assertions.
type wireResponse struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (t *fakeTransport) responses(tb testing.TB) []wireResponse {
	tb.Helper()
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]wireResponse, 0, len(t.sent))
	for _, frame := range t.sent {
		var resp wireResponse
		require.NoError(tb, json.Unmarshal(frame, &resp))
		out = append(out, resp)
	}
	return out
}

func newTestConnection(sessionID, userID string) (*Connection, *fakeTransport) {
	transport := &fakeTransport{}
	hs := HandshakeResult{
		Claims:     domain.Claims{UserID: userID, Email: userID + "@example.com"},
		RemoteAddr: "203.0.113.7",
		RemotePort: "52814",
	}
	return NewConnection(sessionID, hs, transport), transport
}

// fakeStore is an in-memory domain.Store with per-method error injection.
type fakeStore struct {
	mu sync.Mutex

	channels map[string]domain.Channel
	subs     map[string]map[string]struct{} // channel id -> user ids
	users    map[string]domain.User
	messages map[string]domain.Message
	nextIdx  int

	channelsForUserErr error
	addMessageErr      error
	updateUserErr      error
	subscribeErr       error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		channels: make(map[string]domain.Channel),
		subs:     make(map[string]map[string]struct{}),
		users:    make(map[string]domain.User),
		messages: make(map[string]domain.Message),
	}
}

func (s *fakeStore) addChannel(id, name, creatorID string) domain.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := domain.Channel{ID: id, Name: name, CreatorID: creatorID, Created: 1700000000000}
	s.channels[id] = ch
	return ch
}

func (s *fakeStore) addUser(user domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
}

func (s *fakeStore) CreateChannel(_ context.Context, name, creatorID string) (domain.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := domain.Channel{
		ID:        fmt.Sprintf("chan-%d", len(s.channels)+1),
		Name:      name,
		CreatorID: creatorID,
		Created:   1700000000000,
	}
	s.channels[ch.ID] = ch
	return ch, nil
}

func (s *fakeStore) GetChannel(_ context.Context, channelID string) (domain.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[channelID]
	if !ok {
		return domain.Channel{}, domain.ErrChannelNotFound
	}
	return ch, nil
}

func (s *fakeStore) DeleteChannel(_ context.Context, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.channels, channelID)
	delete(s.subs, channelID)
	for id, msg := range s.messages {
		if msg.ChannelID == channelID {
			delete(s.messages, id)
		}
	}
	return nil
}

func (s *fakeStore) ChannelsForUser(_ context.Context, userID string) ([]domain.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.channelsForUserErr != nil {
		return nil, s.channelsForUserErr
	}
	var channels []domain.Channel
	for channelID, members := range s.subs {
		if _, ok := members[userID]; ok {
			channels = append(channels, s.channels[channelID])
		}
	}
	return channels, nil
}

func (s *fakeStore) Subscribe(_ context.Context, userID, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribeErr != nil {
		return s.subscribeErr
	}
	members, ok := s.subs[channelID]
	if !ok {
		members = make(map[string]struct{})
		s.subs[channelID] = members
	}
	members[userID] = struct{}{}
	return nil
}

func (s *fakeStore) Unsubscribe(_ context.Context, userID, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if members, ok := s.subs[channelID]; ok {
		delete(members, userID)
	}
	return nil
}

func (s *fakeStore) AddMessage(_ context.Context, userID, channelID, msgType string, body domain.MessageBody) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addMessageErr != nil {
		return domain.Message{}, s.addMessageErr
	}
	s.nextIdx++
	msg := domain.Message{
		ID:        fmt.Sprintf("msg-%d", s.nextIdx),
		UserID:    userID,
		ChannelID: channelID,
		Index:     s.nextIdx,
		Type:      msgType,
		Data:      body,
		Created:   1700000000000,
	}
	s.messages[msg.ID] = msg
	return msg, nil
}

func (s *fakeStore) RemoveMessage(_ context.Context, messageID, channelID, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[messageID]
	if !ok || msg.ChannelID != channelID || msg.UserID != userID {
		return 0, nil
	}
	delete(s.messages, messageID)
	return 1, nil
}

func (s *fakeStore) ListMessages(_ context.Context, channelID string, limit int) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var messages []domain.Message
	for _, msg := range s.messages {
		if msg.ChannelID == channelID {
			messages = append(messages, msg)
		}
	}
	if len(messages) > limit {
		messages = messages[:limit]
	}
	return messages, nil
}

func (s *fakeStore) GetUser(_ context.Context, userID string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

func (s *fakeStore) UpdateUser(_ context.Context, userID string, update domain.UserUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateUserErr != nil {
		return s.updateUserErr
	}
	user, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	if update.Forename != nil {
		user.Forename = *update.Forename
	}
	if update.Surname != nil {
		user.Surname = *update.Surname
	}
	if update.Email != nil {
		user.Email = *update.Email
	}
	switch {
	case update.RemoveProfileImage:
		user.ProfileImageURL = ""
	case update.ProfileImageURL != nil:
		user.ProfileImageURL = *update.ProfileImageURL
	}
	s.users[userID] = user
	return nil
}

var _ domain.Store = (*fakeStore)(nil)

// fakeBlobStore returns deterministic URLs keyed by content hash.
type fakeBlobStore struct {
	mu   sync.Mutex
	puts []string
	err  error
}

func (b *fakeBlobStore) Put(_ context.Context, hash, format string, data []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return "", b.err
	}
	name := hash + "." + format
	b.puts = append(b.puts, name)
	return "https://cdn.test/blobs/" + name, nil
}

var _ domain.BlobStore = (*fakeBlobStore)(nil)

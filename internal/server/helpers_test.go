package server

import (
	"context"
	"fmt"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/mbergstrom/chatrelay/internal/auth"
	"github.com/mbergstrom/chatrelay/internal/blobstore"
	"github.com/mbergstrom/chatrelay/internal/config"
	"github.com/mbergstrom/chatrelay/internal/domain"
	"github.com/mbergstrom/chatrelay/internal/engine"
)

const testTokenSecret = "0123456789abcdef0123456789abcdef"

// memStore is an in-memory domain.Store for handler tests.
type memStore struct {
	mu       sync.Mutex
	channels map[string]domain.Channel
	subs     map[string]map[string]struct{} // channel id -> user ids
	users    map[string]domain.User
	messages []domain.Message
}

func newMemStore() *memStore {
	return &memStore{
		channels: make(map[string]domain.Channel),
		subs:     make(map[string]map[string]struct{}),
		users:    make(map[string]domain.User),
	}
}

func (s *memStore) addChannel(id, name, creatorID string) domain.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := domain.Channel{ID: id, Name: name, CreatorID: creatorID, Created: 1700000000000}
	s.channels[id] = ch
	return ch
}

func (s *memStore) CreateChannel(_ context.Context, name, creatorID string) (domain.Channel, error) {
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

func (s *memStore) GetChannel(_ context.Context, channelID string) (domain.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[channelID]
	if !ok {
		return domain.Channel{}, domain.ErrChannelNotFound
	}
	return ch, nil
}

func (s *memStore) DeleteChannel(_ context.Context, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.channels, channelID)
	delete(s.subs, channelID)
	return nil
}

func (s *memStore) ChannelsForUser(_ context.Context, userID string) ([]domain.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var channels []domain.Channel
	for channelID, members := range s.subs {
		if _, ok := members[userID]; ok {
			channels = append(channels, s.channels[channelID])
		}
	}
	return channels, nil
}

func (s *memStore) Subscribe(_ context.Context, userID, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	members, ok := s.subs[channelID]
	if !ok {
		members = make(map[string]struct{})
		s.subs[channelID] = members
	}
	members[userID] = struct{}{}
	return nil
}

func (s *memStore) Unsubscribe(_ context.Context, userID, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if members, ok := s.subs[channelID]; ok {
		delete(members, userID)
	}
	return nil
}

func (s *memStore) AddMessage(_ context.Context, userID, channelID, msgType string, body domain.MessageBody) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := domain.Message{
		ID:        fmt.Sprintf("msg-%d", len(s.messages)+1),
		UserID:    userID,
		ChannelID: channelID,
		Index:     len(s.messages) + 1,
		Type:      msgType,
		Data:      body,
		Created:   1700000000000,
	}
	s.messages = append(s.messages, msg)
	return msg, nil
}

func (s *memStore) RemoveMessage(_ context.Context, messageID, channelID, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, msg := range s.messages {
		if msg.ID == messageID && msg.ChannelID == channelID && msg.UserID == userID {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

func (s *memStore) ListMessages(_ context.Context, channelID string, limit int) ([]domain.Message, error) {
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

func (s *memStore) GetUser(_ context.Context, userID string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

func (s *memStore) UpdateUser(_ context.Context, userID string, update domain.UserUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
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

var _ domain.Store = (*memStore)(nil)

type testServer struct {
	srv         *Server
	http        *httptest.Server
	store       *memStore
	coordinator *engine.Coordinator
	registry    *engine.ConnectionRegistry
}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:              "test",
		Port:                "0",
		TokenSecret:         testTokenSecret,
		PublicBaseURL:       "http://example.test",
		MaxConnections:      100,
		MaxConnectionsPerIP: 50,
		MaxMessageBytes:     1024000,
		KeepAliveInterval:   30 * time.Second,
	}
}

// newTestServer assembles a full engine on an in-memory store behind a real
// echo server. The keep-alive clock is fake, so probes never fire during
// tests.
func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()

	store := newMemStore()
	blobs := blobstore.NewRedisStore(goredis.NewClient(&goredis.Options{}), cfg.PublicBaseURL)
	resolver := auth.NewResolver(cfg.TokenSecret)

	registry := engine.NewConnectionRegistry()
	subscriptions := engine.NewSubscriptionIndex()
	transfers := engine.NewTransferBuffer()
	dispatcher := engine.NewDispatcher(store, blobs, subscriptions, engine.NewBroadcaster())

	var coordinator *engine.Coordinator
	keepalive := engine.NewKeepAliveSupervisor(clockwork.NewFakeClock(), cfg.KeepAliveInterval, func(sessionID string) {
		coordinator.Close(sessionID)
	})
	coordinator = engine.NewCoordinator(registry, subscriptions, transfers, dispatcher, keepalive, store, nil)

	srv := NewServer(cfg, resolver, coordinator, store, blobs, nil, nil)
	httpSrv := httptest.NewServer(srv.echo)
	t.Cleanup(func() {
		coordinator.Shutdown()
		httpSrv.Close()
	})

	return &testServer{
		srv:         srv,
		http:        httpSrv,
		store:       store,
		coordinator: coordinator,
		registry:    registry,
	}
}

func signToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.Sign(testTokenSecret, domain.Claims{
		UserID:   userID,
		Email:    userID + "@example.com",
		Forename: "Test",
		Surname:  "User",
	}, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

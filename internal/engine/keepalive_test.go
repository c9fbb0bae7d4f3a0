package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const probeInterval = 30 * time.Second

func TestKeepAliveSupervisor_SendsPingsOnInterval(t *testing.T) {
	clock := clockwork.NewFakeClock()
	supervisor := NewKeepAliveSupervisor(clock, probeInterval, nil)
	conn, transport := newTestConnection("session-1", "user-1")

	supervisor.Start(conn)
	defer supervisor.StopAll()
	assert.True(t, supervisor.Supervised("session-1"))

	clock.BlockUntil(1)
	clock.Advance(probeInterval)
	require.Eventually(t, func() bool { return transport.pingCount() == 1 },
		time.Second, 10*time.Millisecond)

	clock.Advance(probeInterval)
	require.Eventually(t, func() bool { return transport.pingCount() == 2 },
		time.Second, 10*time.Millisecond)
}

func TestKeepAliveSupervisor_StopDiscardsProbe(t *testing.T) {
	clock := clockwork.NewFakeClock()
	supervisor := NewKeepAliveSupervisor(clock, probeInterval, nil)
	conn, transport := newTestConnection("session-1", "user-1")

	supervisor.Start(conn)
	clock.BlockUntil(1)
	supervisor.Stop("session-1")

	assert.False(t, supervisor.Supervised("session-1"))

	clock.Advance(probeInterval)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, transport.pingCount())

	// Stopping again, or stopping an unknown session, is fine.
	supervisor.Stop("session-1")
	supervisor.Stop("never-started")
}

func TestKeepAliveSupervisor_FailedProbeClosesConnection(t *testing.T) {
	clock := clockwork.NewFakeClock()

	var (
		mu     sync.Mutex
		failed []string
	)
	onFailure := func(sessionID string) {
		mu.Lock()
		defer mu.Unlock()
		failed = append(failed, sessionID)
	}

	supervisor := NewKeepAliveSupervisor(clock, probeInterval, onFailure)
	conn, transport := newTestConnection("session-1", "user-1")
	transport.pingErr = assert.AnError

	supervisor.Start(conn)
	clock.BlockUntil(1)
	clock.Advance(probeInterval)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(failed) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"session-1"}, failed)
	mu.Unlock()

	closed, code := transport.isClosed()
	assert.True(t, closed)
	assert.Equal(t, CloseUnexpectedCondition, code)
	assert.False(t, supervisor.Supervised("session-1"))
}

func TestKeepAliveSupervisor_StartRestartsExistingProbe(t *testing.T) {
	clock := clockwork.NewFakeClock()
	supervisor := NewKeepAliveSupervisor(clock, probeInterval, nil)
	conn, transport := newTestConnection("session-1", "user-1")

	supervisor.Start(conn)
	clock.BlockUntil(1)
	supervisor.Start(conn)
	defer supervisor.StopAll()

	// Only the replacement probe survives: one ping per interval, not two.
	// Give the superseded probe a beat to observe its closed stop channel.
	clock.BlockUntil(1)
	time.Sleep(20 * time.Millisecond)
	clock.Advance(probeInterval)
	require.Eventually(t, func() bool { return transport.pingCount() >= 1 },
		time.Second, 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, transport.pingCount())
}

func TestKeepAliveSupervisor_StopAll(t *testing.T) {
	clock := clockwork.NewFakeClock()
	supervisor := NewKeepAliveSupervisor(clock, probeInterval, nil)

	first, _ := newTestConnection("session-1", "user-1")
	second, _ := newTestConnection("session-2", "user-2")
	supervisor.Start(first)
	supervisor.Start(second)

	supervisor.StopAll()

	assert.False(t, supervisor.Supervised("session-1"))
	assert.False(t, supervisor.Supervised("session-2"))
}

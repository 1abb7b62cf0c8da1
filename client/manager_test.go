package client

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drawsync/drawsync/internal/protocol"
)

// fakeScheduler records scheduled callbacks so tests drive retry timing
// explicitly instead of sleeping.
type fakeScheduler struct {
	mu      sync.Mutex
	delays  []time.Duration
	pending []func()
}

func (f *fakeScheduler) AfterFunc(d time.Duration, fn func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delays = append(f.delays, d)
	f.pending = append(f.pending, fn)
	return func() {}
}

// fireAll runs every pending callback, including ones scheduled by the
// callbacks themselves, until none remain.
func (f *fakeScheduler) fireAll() {
	for {
		f.mu.Lock()
		if len(f.pending) == 0 {
			f.mu.Unlock()
			return
		}
		fn := f.pending[0]
		f.pending = f.pending[1:]
		f.mu.Unlock()
		fn()
	}
}

func TestClientIDFormat(t *testing.T) {
	m := NewManager(Options{ServerURL: "ws://localhost:8080/ws"})

	assert.True(t, strings.HasPrefix(m.ClientID(), "client_"))
	assert.Len(t, strings.Split(m.ClientID(), "_"), 3)

	other := NewManager(Options{ServerURL: "ws://localhost:8080/ws"})
	assert.NotEqual(t, m.ClientID(), other.ClientID())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "failed", StateFailed.String())
}

func TestSelfEchoSuppressed(t *testing.T) {
	m := NewManager(Options{ServerURL: "ws://localhost:8080/ws"})

	var received []protocol.Message
	m.OnMessage(func(msg protocol.Message) {
		received = append(received, msg)
	})

	// The manager's own broadcast echoed back must never reach subscribers.
	m.deliver(protocol.NewDiagramUpdate(protocol.EmptyDocument(), m.ClientID()))
	assert.Empty(t, received)

	// A peer's message does.
	m.deliver(protocol.NewDiagramUpdate(protocol.EmptyDocument(), "client_peer"))
	assert.Len(t, received, 1)

	// Server messages carry no client ID and are always delivered.
	m.deliver(protocol.NewStateSync(protocol.EmptyDocument()))
	assert.Len(t, received, 2)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	m := NewManager(Options{ServerURL: "ws://localhost:8080/ws"})

	var first, second int
	unsubscribe := m.OnMessage(func(protocol.Message) { first++ })
	m.OnMessage(func(protocol.Message) { second++ })

	m.deliver(protocol.NewStateSync(protocol.EmptyDocument()))
	unsubscribe()
	m.deliver(protocol.NewStateSync(protocol.EmptyDocument()))

	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
}

func TestConnectFailureReturnsError(t *testing.T) {
	sched := &fakeScheduler{}
	m := NewManager(Options{
		ServerURL:            "ws://127.0.0.1:1/ws",
		ReconnectDelay:       time.Second,
		MaxReconnectAttempts: 3,
		Scheduler:            sched,
	})

	err := m.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateDisconnected, m.State())

	// A failed manual Connect never arms the retry timer on its own.
	sched.mu.Lock()
	assert.Empty(t, sched.pending)
	sched.mu.Unlock()
}

func TestReconnectBackoffAndCap(t *testing.T) {
	sched := &fakeScheduler{}
	base := time.Second
	m := NewManager(Options{
		ServerURL:            "ws://127.0.0.1:1/ws",
		ReconnectDelay:       base,
		MaxReconnectAttempts: 5,
		Scheduler:            sched,
	})
	m.mu.Lock()
	m.state = StateDisconnected
	m.mu.Unlock()

	// Each fired retry dials a dead endpoint, fails, and chains the next
	// attempt until the cap.
	m.scheduleReconnect()
	sched.fireAll()

	assert.Equal(t, StateFailed, m.State())
	assert.Equal(t,
		[]time.Duration{1 * base, 2 * base, 3 * base, 4 * base, 5 * base},
		sched.delays)
}

func TestManualConnectAllowedAfterFailure(t *testing.T) {
	sched := &fakeScheduler{}
	m := NewManager(Options{
		ServerURL:            "ws://127.0.0.1:1/ws",
		ReconnectDelay:       time.Second,
		MaxReconnectAttempts: 1,
		Scheduler:            sched,
	})
	m.mu.Lock()
	m.state = StateDisconnected
	m.mu.Unlock()

	m.scheduleReconnect()
	sched.fireAll()
	require.Equal(t, StateFailed, m.State())

	// Failed is not terminal for the caller: a manual Connect may try again.
	err := m.Connect(context.Background())
	assert.Error(t, err)
	assert.Equal(t, StateDisconnected, m.State())
}

func TestSendWhileDisconnectedDrops(t *testing.T) {
	m := NewManager(Options{ServerURL: "ws://localhost:8080/ws"})

	// Nothing to assert beyond "does not panic, does not queue": the
	// message is logged and dropped.
	m.Send(protocol.NewRequestState(m.ClientID()))
	m.SendDiagramUpdate(protocol.EmptyDocument())
	assert.Equal(t, StateIdle, m.State())
}

func TestDisconnectIsIdempotent(t *testing.T) {
	m := NewManager(Options{ServerURL: "ws://localhost:8080/ws"})
	m.OnMessage(func(protocol.Message) {})

	m.Disconnect()
	m.Disconnect()

	assert.Equal(t, StateIdle, m.State())

	// Subscribers are cleared on disconnect.
	var called bool
	m.deliver(protocol.NewStateSync(protocol.EmptyDocument()))
	assert.False(t, called)
}

func TestDisconnectCancelsPendingRetry(t *testing.T) {
	cancelled := false
	sched := &fakeScheduler{}
	m := NewManager(Options{
		ServerURL:            "ws://127.0.0.1:1/ws",
		ReconnectDelay:       time.Second,
		MaxReconnectAttempts: 5,
		Scheduler: schedulerFunc(func(d time.Duration, fn func()) func() {
			sched.mu.Lock()
			sched.pending = append(sched.pending, fn)
			sched.mu.Unlock()
			return func() { cancelled = true }
		}),
	})
	m.mu.Lock()
	m.state = StateDisconnected
	m.mu.Unlock()

	m.scheduleReconnect()
	m.Disconnect()

	assert.True(t, cancelled)
	assert.Equal(t, StateIdle, m.State())
}

// schedulerFunc adapts a function to the Scheduler interface.
type schedulerFunc func(time.Duration, func()) func()

func (f schedulerFunc) AfterFunc(d time.Duration, fn func()) func() {
	return f(d, fn)
}

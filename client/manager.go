// Package client implements the editor side of the collaboration protocol: a
// reconnecting connection manager and a document bridge that adapts an
// external diagram widget onto the message stream.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/drawsync/drawsync/internal/protocol"
	"github.com/drawsync/drawsync/internal/slogging"
)

// State is the connection manager's lifecycle state.
type State int

const (
	// StateIdle means no connection has been requested.
	StateIdle State = iota
	// StateConnecting means a dial attempt is in flight.
	StateConnecting
	// StateConnected means the session is live.
	StateConnected
	// StateDisconnected means the transport dropped; a retry may be pending.
	StateDisconnected
	// StateFailed means the reconnect attempt cap was reached. A manual
	// Connect is required to try again.
	StateFailed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Scheduler abstracts retry timing so the backoff cap and cancellation are
// testable without real timers.
type Scheduler interface {
	// AfterFunc runs fn after d and returns a cancel function.
	AfterFunc(d time.Duration, fn func()) (cancel func())
}

type timerScheduler struct{}

func (timerScheduler) AfterFunc(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// Options configures a Manager.
type Options struct {
	// ServerURL is the ws:// or wss:// endpoint of the sync server.
	ServerURL string
	// ReconnectDelay is the base delay; attempt n waits n*ReconnectDelay
	// (linear backoff).
	ReconnectDelay time.Duration
	// MaxReconnectAttempts caps automatic retries.
	MaxReconnectAttempts int
	// Scheduler defaults to real timers when nil.
	Scheduler Scheduler
}

type subscriber struct {
	id int
	fn func(protocol.Message)
}

// Manager owns one outbound session to the sync server: it dials, reconnects
// with linear backoff, and exposes publish/subscribe decoupled from the
// transport lifecycle.
type Manager struct {
	url         string
	clientID    string
	baseDelay   time.Duration
	maxAttempts int
	scheduler   Scheduler

	mu          sync.Mutex
	state       State
	conn        *websocket.Conn
	subs        []subscriber
	nextSubID   int
	attempts    int
	cancelRetry func()
	manualClose bool

	writeMu sync.Mutex
}

// NewManager creates a manager with a fresh client identity. The identity is
// only used to recognize and discard the manager's own echoed broadcasts; it
// is not a credential.
func NewManager(opts Options) *Manager {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 2 * time.Second
	}
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = 5
	}
	if opts.Scheduler == nil {
		opts.Scheduler = timerScheduler{}
	}

	return &Manager{
		url:         opts.ServerURL,
		clientID:    newClientID(),
		baseDelay:   opts.ReconnectDelay,
		maxAttempts: opts.MaxReconnectAttempts,
		scheduler:   opts.Scheduler,
		state:       StateIdle,
	}
}

func newClientID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("client_%d_%s", time.Now().UnixMilli(), suffix)
}

// ClientID returns the manager's identity.
func (m *Manager) ClientID() string {
	return m.clientID
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether the session is live.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// Connect dials the server. On success it immediately requests the current
// document state. Safe to call again manually after the retry cap is hit.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateConnected || m.state == StateConnecting {
		m.mu.Unlock()
		return nil
	}
	m.state = StateConnecting
	m.manualClose = false
	m.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, m.url, nil) //nolint:bodyclose // gorilla owns the response body after a successful upgrade
	if err != nil {
		m.mu.Lock()
		m.state = StateDisconnected
		m.mu.Unlock()
		return fmt.Errorf("connecting to %s: %w", m.url, err)
	}

	m.mu.Lock()
	m.conn = conn
	m.state = StateConnected
	m.attempts = 0
	m.mu.Unlock()

	slogging.Get().Info("connected to %s as %s", m.url, m.clientID)

	go m.readLoop(conn)

	m.Send(protocol.NewRequestState(m.clientID))
	return nil
}

// Send transmits a message when connected. When not connected it warns and
// drops the message: nothing is queued, nothing is raised to the caller.
func (m *Manager) Send(msg protocol.Message) {
	m.mu.Lock()
	conn := m.conn
	connected := m.state == StateConnected
	m.mu.Unlock()

	if !connected || conn == nil {
		slogging.Get().Warn("cannot send %s: not connected", msg.Type)
		return
	}

	m.writeMu.Lock()
	err := conn.WriteJSON(msg)
	m.writeMu.Unlock()

	if err != nil {
		slogging.Get().Warn("sending %s: %v", msg.Type, err)
	}
}

// SendDiagramUpdate publishes a full document snapshot.
func (m *Manager) SendDiagramUpdate(doc protocol.DiagramDocument) {
	m.Send(protocol.NewDiagramUpdate(doc, m.clientID))
}

// RequestState asks the server for the current document.
func (m *Manager) RequestState() {
	m.Send(protocol.NewRequestState(m.clientID))
}

// SendNodeEvent publishes an advisory NODE_* message.
func (m *Manager) SendNodeEvent(t protocol.MessageType, node json.RawMessage) {
	m.Send(protocol.NewNodeEvent(t, node, m.clientID))
}

// SendConnectorEvent publishes an advisory CONNECTOR_* message.
func (m *Manager) SendConnectorEvent(t protocol.MessageType, connector json.RawMessage) {
	m.Send(protocol.NewConnectorEvent(t, connector, m.clientID))
}

// OnMessage registers a subscriber and returns its unsubscribe function.
// Subscribers are invoked in registration order. Messages originated by this
// manager never reach a subscriber.
func (m *Manager) OnMessage(fn func(protocol.Message)) func() {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subs = append(m.subs, subscriber{id: id, fn: fn})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, sub := range m.subs {
			if sub.id == id {
				m.subs = append(m.subs[:i], m.subs[i+1:]...)
				return
			}
		}
	}
}

// Disconnect closes the transport, cancels any pending retry and clears all
// subscribers. Idempotent.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.manualClose = true
	if m.cancelRetry != nil {
		m.cancelRetry()
		m.cancelRetry = nil
	}
	conn := m.conn
	m.conn = nil
	m.subs = nil
	m.attempts = 0
	m.state = StateIdle
	m.mu.Unlock()

	if conn != nil {
		m.writeMu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		m.writeMu.Unlock()
		_ = conn.Close()
	}
}

// readLoop pumps inbound messages to subscribers until the transport drops,
// then hands off to the reconnect path.
func (m *Manager) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			slogging.Get().Warn("dropping malformed message: %v", err)
			continue
		}

		m.deliver(msg)
	}

	m.handleDisconnect(conn)
}

// deliver fans one message out to subscribers, suppressing self-echo first.
func (m *Manager) deliver(msg protocol.Message) {
	if msg.ClientID != "" && msg.ClientID == m.clientID {
		slogging.Get().Debug("suppressing self-echo of %s", msg.Type)
		return
	}

	m.mu.Lock()
	subs := make([]subscriber, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	for _, sub := range subs {
		sub.fn(msg)
	}
}

func (m *Manager) handleDisconnect(conn *websocket.Conn) {
	m.mu.Lock()
	if m.conn != conn {
		// A newer connection replaced this one, or Disconnect already ran.
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.state = StateDisconnected
	manual := m.manualClose
	m.mu.Unlock()

	_ = conn.Close()

	if manual {
		return
	}

	slogging.Get().Warn("connection to %s lost", m.url)
	m.scheduleReconnect()
}

// scheduleReconnect arms the next retry with linear backoff, or gives up
// after the attempt cap.
func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	if m.manualClose {
		m.mu.Unlock()
		return
	}
	if m.attempts >= m.maxAttempts {
		m.state = StateFailed
		m.mu.Unlock()
		slogging.Get().Warn("giving up after %d reconnect attempts", m.maxAttempts)
		return
	}
	m.attempts++
	attempt := m.attempts
	delay := time.Duration(attempt) * m.baseDelay

	slogging.Get().Info("reconnect attempt %d/%d in %s", attempt, m.maxAttempts, delay)

	m.cancelRetry = m.scheduler.AfterFunc(delay, func() {
		m.mu.Lock()
		m.cancelRetry = nil
		m.mu.Unlock()

		if err := m.Connect(context.Background()); err != nil {
			m.scheduleReconnect()
		}
	})
	m.mu.Unlock()
}

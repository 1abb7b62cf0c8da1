package api

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/drawsync/drawsync/internal/config"
	"github.com/drawsync/drawsync/internal/protocol"
	"github.com/drawsync/drawsync/internal/slogging"
)

// SessionState tracks the liveness of one connected editor.
type SessionState int32

const (
	// SessionConnecting is the state before the handshake completes.
	SessionConnecting SessionState = iota
	// SessionOpen means the session participates in broadcasts.
	SessionOpen
	// SessionClosing means the server is draining the session.
	SessionClosing
	// SessionClosed means the transport is gone.
	SessionClosed
)

// Session represents one live transport connection. The registry owns the
// handle for the handle's lifetime; membership in the session set is the only
// durable state.
type Session struct {
	// ID identifies the session in logs only
	ID string

	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	state atomic.Int32

	mu     sync.Mutex
	closed bool
}

// State returns the session's liveness state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) setState(st SessionState) {
	s.state.Store(int32(st))
}

// enqueue offers raw bytes to the session's send buffer without blocking.
// Returns false when the buffer is full or already closed.
func (s *Session) enqueue(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

// enqueueMessage encodes and offers a protocol message to this session only.
func (s *Session) enqueueMessage(msg protocol.Message) {
	data, err := msg.Encode()
	if err != nil {
		slogging.Get().Error("encoding %s for session %s: %v", msg.Type, s.ID, err)
		return
	}
	if !s.enqueue(data) {
		slogging.Get().Warn("direct send of %s to session %s failed: buffer full or closed", msg.Type, s.ID)
	}
}

// closeSend closes the send buffer exactly once, which makes the write pump
// deliver a close frame and exit.
func (s *Session) closeSend() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.send)
	}
}

// inboundFrame is one raw message read off a session's transport.
type inboundFrame struct {
	session *Session
	data    []byte
}

type command struct {
	fn   func()
	done chan struct{}
}

// Hub terminates transport connections and owns the message protocol state
// machine. All registry mutations and all fan-out run on the single Run loop
// goroutine, so no two inbound messages are ever processed concurrently.
type Hub struct {
	cfg      config.WebSocketConfig
	registry *SessionRegistry
	router   *Broadcaster
	store    SnapshotStore // nil when persistence is disabled

	register   chan *Session
	unregister chan *Session
	frames     chan inboundFrame
	commands   chan command
	stopped    chan struct{}

	started time.Time
}

// Upgrader accepts all origins; the collaboration endpoint enforces no
// origin allow-list.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewHub wires the hub over a registry and broadcaster. store may be nil.
func NewHub(cfg config.WebSocketConfig, registry *SessionRegistry, router *Broadcaster, store SnapshotStore) *Hub {
	return &Hub{
		cfg:        cfg,
		registry:   registry,
		router:     router,
		store:      store,
		register:   make(chan *Session),
		unregister: make(chan *Session),
		frames:     make(chan inboundFrame),
		commands:   make(chan command),
		stopped:    make(chan struct{}),
		started:    time.Now(),
	}
}

// Uptime reports how long the hub has been running.
func (h *Hub) Uptime() time.Duration {
	return time.Since(h.started)
}

// Run processes session lifecycle events and inbound messages until ctx is
// cancelled, then drains every remaining session.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)

	for {
		select {
		case s := <-h.register:
			h.registry.Register(s)
			metricConnectedClients.Set(float64(h.registry.Count()))

		case s := <-h.unregister:
			h.registry.Unregister(s)
			metricConnectedClients.Set(float64(h.registry.Count()))

		case frame := <-h.frames:
			h.dispatch(frame)

		case cmd := <-h.commands:
			cmd.fn()
			close(cmd.done)

		case <-ctx.Done():
			for _, s := range h.registry.Sessions() {
				s.setState(SessionClosing)
				h.registry.Unregister(s)
			}
			metricConnectedClients.Set(0)
			return
		}
	}
}

// Do runs fn on the hub loop and waits for it to complete. Used by the HTTP
// surface so administrative mutations serialize with message dispatch.
func (h *Hub) Do(fn func()) {
	cmd := command{fn: fn, done: make(chan struct{})}
	select {
	case h.commands <- cmd:
		<-cmd.done
	case <-h.stopped:
	}
}

// dispatch implements the per-message state machine. Parse errors are not
// fatal to the connection: the message is dropped and logged.
func (h *Hub) dispatch(frame inboundFrame) {
	logger := slogging.Get()

	msg, err := protocol.Decode(frame.data)
	if err != nil {
		metricParseErrors.Inc()
		logger.Warn("dropping malformed message from session %s: %v", frame.session.ID, err)
		return
	}

	metricMessagesReceived.WithLabelValues(string(msg.Type)).Inc()
	logger.Debug("received %s from session %s (client %s)", msg.Type, frame.session.ID, msg.ClientID)

	switch msg.Type {
	case protocol.TypeRequestState:
		// Direct reply to the requester only, never broadcast.
		frame.session.enqueueMessage(protocol.NewStateSync(h.registry.Document()))

	case protocol.TypeStateSync:
		// Server-only message; never accepted from a client.
		logger.Warn("ignoring STATE_SYNC sent by session %s", frame.session.ID)

	case protocol.TypeDiagramUpdate:
		state, err := msg.DecodeState()
		if err != nil {
			metricParseErrors.Inc()
			logger.Warn("dropping DIAGRAM_UPDATE from session %s: %v", frame.session.ID, err)
			return
		}
		doc := h.registry.ApplyUpdate(state.State)
		h.persist(doc)
		h.router.Broadcast(frame.data, frame.session)

	default:
		if msg.Type.IsElementEvent() {
			// Forwarded verbatim as advisory hints; the authoritative
			// snapshot is only replaced by full DIAGRAM_UPDATE messages.
			h.router.Broadcast(frame.data, frame.session)
			return
		}
		logger.Warn("ignoring unknown message type %q from session %s", msg.Type, frame.session.ID)
	}
}

// Reset empties the authoritative document and broadcasts the empty snapshot
// to every session, the origin included.
func (h *Hub) Reset() {
	h.Do(func() {
		doc := h.registry.Reset()
		h.persist(doc)

		data, err := protocol.NewDiagramUpdate(doc, "").Encode()
		if err != nil {
			slogging.Get().Error("encoding reset broadcast: %v", err)
			return
		}
		h.router.Broadcast(data, nil)
	})
}

// persist saves the current snapshot best-effort; store errors never fail
// the update path.
func (h *Hub) persist(doc protocol.DiagramDocument) {
	if h.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := h.store.Save(ctx, doc); err != nil {
		slogging.Get().Warn("persisting snapshot: %v", err)
	}
}

// HandleWS upgrades the connection and attaches the session to the hub.
func (h *Hub) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slogging.Get().Error("failed to upgrade connection: %v", err)
		return
	}

	session := &Session{
		ID:   uuid.New().String(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, h.cfg.SendBufferSize),
	}
	session.setState(SessionConnecting)

	select {
	case h.register <- session:
	case <-h.stopped:
		_ = conn.Close()
		return
	}

	go session.writePump()
	go session.readPump()
}

// readPump pumps messages from the transport into the hub until the
// connection closes or errors, then unregisters the session.
func (s *Session) readPump() {
	defer func() {
		select {
		case s.hub.unregister <- s:
		case <-s.hub.stopped:
		}
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(s.hub.cfg.ReadLimit)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.hub.cfg.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.hub.cfg.PongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slogging.Get().Warn("session %s read error: %v", s.ID, err)
			}
			return
		}

		select {
		case s.hub.frames <- inboundFrame{session: s, data: data}:
		case <-s.hub.stopped:
			return
		}
	}
}

// writePump pumps queued messages to the transport and keeps the connection
// alive with pings. A closed send buffer produces a close frame.
func (s *Session) writePump() {
	ticker := time.NewTicker(s.hub.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case data, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.hub.cfg.WriteWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.hub.cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

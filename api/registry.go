package api

import (
	"sync"

	"github.com/drawsync/drawsync/internal/protocol"
	"github.com/drawsync/drawsync/internal/slogging"
)

// SessionRegistry is the single source of truth for the current diagram
// document and the live session set. The document is replaced wholesale on
// each accepted update, never patched field-by-field. Registry methods never
// broadcast; fan-out is the Broadcaster's job, invoked by the caller after a
// successful mutation.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[*Session]struct{}
	document protocol.DiagramDocument
}

// NewSessionRegistry creates a registry holding an empty document.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[*Session]struct{}),
		document: protocol.EmptyDocument(),
	}
}

// Register adds a session to the open set and sends it a direct STATE_SYNC
// carrying the current document. Always succeeds while the transport is open.
func (r *SessionRegistry) Register(s *Session) {
	r.mu.Lock()
	r.sessions[s] = struct{}{}
	doc := r.document
	count := len(r.sessions)
	r.mu.Unlock()

	s.setState(SessionOpen)
	s.enqueueMessage(protocol.NewStateSync(doc))

	slogging.Get().Info("session %s connected, total clients: %d", s.ID, count)
}

// Unregister removes a session from the set. Idempotent: removing an absent
// session is a no-op, not an error. Duplicate close events are expected.
func (r *SessionRegistry) Unregister(s *Session) {
	r.mu.Lock()
	_, present := r.sessions[s]
	if present {
		delete(r.sessions, s)
	}
	count := len(r.sessions)
	r.mu.Unlock()

	if !present {
		return
	}

	s.setState(SessionClosed)
	s.closeSend()

	slogging.Get().Info("session %s disconnected, total clients: %d", s.ID, count)
}

// ApplyUpdate replaces the authoritative document wholesale, stamping a fresh
// timestamp. The payload is trusted as-is: malformed payloads are rejected at
// the dispatch layer before reaching this method. Returns the stamped
// document.
func (r *SessionRegistry) ApplyUpdate(doc protocol.DiagramDocument) protocol.DiagramDocument {
	doc.Timestamp = protocol.NowMillis()

	r.mu.Lock()
	r.document = doc
	r.mu.Unlock()

	return doc
}

// Restore installs a previously persisted document, preserving its original
// timestamp. Used only at startup before sessions connect.
func (r *SessionRegistry) Restore(doc protocol.DiagramDocument) {
	r.mu.Lock()
	r.document = doc
	r.mu.Unlock()
}

// Reset replaces the document with an empty value.
func (r *SessionRegistry) Reset() protocol.DiagramDocument {
	doc := protocol.EmptyDocument()

	r.mu.Lock()
	r.document = doc
	r.mu.Unlock()

	return doc
}

// Document returns the current authoritative document.
func (r *SessionRegistry) Document() protocol.DiagramDocument {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.document
}

// Count returns the number of registered sessions.
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sessions returns a point-in-time snapshot of the session set.
func (r *SessionRegistry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for s := range r.sessions {
		out = append(out, s)
	}
	return out
}

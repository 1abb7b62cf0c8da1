package client

import (
	"sync"

	"github.com/drawsync/drawsync/internal/protocol"
	"github.com/drawsync/drawsync/internal/slogging"
)

// Bridge is the bidirectional adapter between the diagram widget and the
// connection manager. It breaks the feedback loop two ways: a local-change
// guard held across each synchronous programmatic apply, and a monotonic
// generation check that drops snapshots not newer than the last one applied.
type Bridge struct {
	widget  Widget
	manager *Manager
	seed    protocol.DiagramDocument

	mu          sync.Mutex
	applying    bool
	initialized bool
	generation  int64

	unsubscribe func()
}

// NewBridge creates a bridge. seed is the starter document loaded locally
// when the server reports an empty diagram on first sync.
func NewBridge(widget Widget, manager *Manager, seed protocol.DiagramDocument) *Bridge {
	return &Bridge{
		widget:  widget,
		manager: manager,
		seed:    seed,
	}
}

// Start subscribes the bridge to both sides: widget change events flow out
// as DIAGRAM_UPDATE, incoming snapshots flow back into the widget.
func (b *Bridge) Start() {
	b.unsubscribe = b.manager.OnMessage(b.handleMessage)
	b.widget.OnChange(b.handleLocalChange)
}

// Stop detaches the bridge from the message stream.
func (b *Bridge) Stop() {
	if b.unsubscribe != nil {
		b.unsubscribe()
		b.unsubscribe = nil
	}
}

// Initialized reports whether the bootstrap decision has been made.
func (b *Bridge) Initialized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initialized
}

// Generation returns the timestamp of the last applied remote snapshot.
func (b *Bridge) Generation() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.generation
}

// handleLocalChange broadcasts a genuine local edit. Changes observed while
// the guard is set are side effects of a remote apply and are not
// re-broadcast. The local widget keeps working even when the manager is
// disconnected; only the broadcast is skipped.
func (b *Bridge) handleLocalChange() {
	b.mu.Lock()
	if b.applying {
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	doc := b.widget.ExportDocument()
	doc.Timestamp = protocol.NowMillis()
	b.manager.SendDiagramUpdate(doc)
}

func (b *Bridge) handleMessage(msg protocol.Message) {
	logger := slogging.Get()

	switch msg.Type {
	case protocol.TypeDiagramUpdate:
		state, err := msg.DecodeState()
		if err != nil {
			logger.Warn("dropping remote update: %v", err)
			return
		}
		b.apply(state.State)

	case protocol.TypeStateSync:
		state, err := msg.DecodeState()
		if err != nil {
			logger.Warn("dropping state sync: %v", err)
			return
		}
		b.handleStateSync(state.State)

	default:
		if msg.Type.IsElementEvent() {
			// Advisory hints only; consistency rests on full snapshots.
			logger.Debug("element event %s from %s", msg.Type, msg.ClientID)
		}
	}
}

// handleStateSync implements the bootstrap ordering invariant: the first
// STATE_SYNC decides whether this session adopts server state or seeds the
// default document. Later empty syncs are no-ops so they never clobber user
// edits.
func (b *Bridge) handleStateSync(doc protocol.DiagramDocument) {
	if !doc.IsEmpty() {
		b.apply(doc)
		return
	}

	b.mu.Lock()
	if b.initialized {
		b.mu.Unlock()
		return
	}
	b.applying = true
	b.mu.Unlock()

	// Fresh server with no prior editors: seed starter content locally.
	// Nothing is sent until the next genuine local edit.
	err := b.widget.LoadDocument(b.seed)

	b.mu.Lock()
	b.applying = false
	if err == nil {
		b.initialized = true
	}
	b.mu.Unlock()

	if err != nil {
		slogging.Get().Warn("loading seed document: %v", err)
	} else {
		slogging.Get().Info("seeded default document (%d nodes)", len(b.seed.Nodes))
	}
}

// apply replaces the widget content with a remote snapshot. The guard is set
// around exactly one synchronous load; snapshots whose timestamp is not
// newer than the last applied generation are dropped as stale.
func (b *Bridge) apply(doc protocol.DiagramDocument) {
	b.mu.Lock()
	if doc.Timestamp != 0 && doc.Timestamp <= b.generation {
		b.mu.Unlock()
		slogging.Get().Debug("ignoring stale snapshot (generation %d <= %d)", doc.Timestamp, b.generation)
		return
	}
	b.applying = true
	b.mu.Unlock()

	err := b.widget.LoadDocument(doc)

	b.mu.Lock()
	b.applying = false
	if err == nil {
		if doc.Timestamp > b.generation {
			b.generation = doc.Timestamp
		}
		b.initialized = true
	}
	b.mu.Unlock()

	if err != nil {
		slogging.Get().Warn("applying remote snapshot: %v", err)
	}
}

package client

import (
	"encoding/json"
	"sync"

	"github.com/drawsync/drawsync/internal/protocol"
)

// Widget is the surface the bridge needs from the external diagram editor.
// The real widget serializes its own node/connector models; this layer treats
// them as opaque values. Change handlers fire for programmatic loads too,
// which is exactly why the bridge carries an echo-suppression guard.
type Widget interface {
	// LoadDocument replaces the widget's entire loaded document.
	LoadDocument(doc protocol.DiagramDocument) error
	// ExportDocument serializes the widget's current collections.
	ExportDocument() protocol.DiagramDocument
	// OnChange registers a handler invoked on every document change.
	OnChange(fn func())
}

// MemoryWidget is an in-memory Widget for the headless agent and tests.
type MemoryWidget struct {
	mu       sync.Mutex
	doc      protocol.DiagramDocument
	handlers []func()
}

// NewMemoryWidget creates a widget holding an empty document.
func NewMemoryWidget() *MemoryWidget {
	return &MemoryWidget{doc: protocol.EmptyDocument()}
}

// LoadDocument replaces the content and fires change handlers, mirroring the
// real widget's behavior on programmatic loads.
func (w *MemoryWidget) LoadDocument(doc protocol.DiagramDocument) error {
	w.mu.Lock()
	w.doc = copyDocument(doc)
	w.mu.Unlock()

	w.fireChange()
	return nil
}

// ExportDocument returns a copy of the current document.
func (w *MemoryWidget) ExportDocument() protocol.DiagramDocument {
	w.mu.Lock()
	defer w.mu.Unlock()
	return copyDocument(w.doc)
}

// OnChange registers a change handler.
func (w *MemoryWidget) OnChange(fn func()) {
	w.mu.Lock()
	w.handlers = append(w.handlers, fn)
	w.mu.Unlock()
}

// AddNode simulates a local edit: it appends a node and fires change
// handlers.
func (w *MemoryWidget) AddNode(node json.RawMessage) {
	w.mu.Lock()
	w.doc.Nodes = append(w.doc.Nodes, node)
	w.mu.Unlock()

	w.fireChange()
}

// AddConnector simulates a local edit adding a connector.
func (w *MemoryWidget) AddConnector(connector json.RawMessage) {
	w.mu.Lock()
	w.doc.Connectors = append(w.doc.Connectors, connector)
	w.mu.Unlock()

	w.fireChange()
}

// Clear simulates the user clearing the canvas.
func (w *MemoryWidget) Clear() {
	w.mu.Lock()
	w.doc = protocol.EmptyDocument()
	w.mu.Unlock()

	w.fireChange()
}

func (w *MemoryWidget) fireChange() {
	w.mu.Lock()
	handlers := make([]func(), len(w.handlers))
	copy(handlers, w.handlers)
	w.mu.Unlock()

	for _, fn := range handlers {
		fn()
	}
}

func copyDocument(doc protocol.DiagramDocument) protocol.DiagramDocument {
	out := protocol.DiagramDocument{
		Nodes:      make([]json.RawMessage, len(doc.Nodes)),
		Connectors: make([]json.RawMessage, len(doc.Connectors)),
		Timestamp:  doc.Timestamp,
	}
	copy(out.Nodes, doc.Nodes)
	copy(out.Connectors, doc.Connectors)
	return out
}

package client

import (
	"encoding/json"

	"github.com/drawsync/drawsync/internal/protocol"
)

// DefaultDocument returns the starter diagram loaded locally when a fresh
// server reports an empty document: a small CI/CD pipeline flowchart. The
// node and connector shapes follow the widget's serialized form and are
// opaque to the sync layer.
func DefaultDocument() protocol.DiagramDocument {
	nodes := []string{
		`{"id":"start","offsetX":200,"offsetY":90,"width":120,"height":50,"shape":{"type":"Flow","shape":"Terminator"},"annotations":[{"content":"Start"}]}`,
		`{"id":"commit","offsetX":200,"offsetY":180,"width":140,"height":60,"shape":{"type":"Flow","shape":"Process"},"annotations":[{"content":"Commit Code"}]}`,
		`{"id":"build","offsetX":200,"offsetY":270,"width":140,"height":60,"shape":{"type":"Flow","shape":"Process"},"annotations":[{"content":"Build"}]}`,
		`{"id":"test","offsetX":200,"offsetY":360,"width":140,"height":70,"shape":{"type":"Flow","shape":"Decision"},"annotations":[{"content":"Tests Pass?"}]}`,
		`{"id":"fix","offsetX":420,"offsetY":360,"width":140,"height":60,"shape":{"type":"Flow","shape":"Process"},"annotations":[{"content":"Fix Issues"}]}`,
		`{"id":"deploy","offsetX":200,"offsetY":460,"width":140,"height":60,"shape":{"type":"Flow","shape":"Process"},"annotations":[{"content":"Deploy"}]}`,
		`{"id":"end","offsetX":200,"offsetY":550,"width":120,"height":50,"shape":{"type":"Flow","shape":"Terminator"},"annotations":[{"content":"End"}]}`,
	}

	connectors := []string{
		`{"id":"c1","sourceID":"start","targetID":"commit","type":"Orthogonal"}`,
		`{"id":"c2","sourceID":"commit","targetID":"build","type":"Orthogonal"}`,
		`{"id":"c3","sourceID":"build","targetID":"test","type":"Orthogonal"}`,
		`{"id":"c4","sourceID":"test","targetID":"fix","type":"Orthogonal","annotations":[{"content":"No"}]}`,
		`{"id":"c5","sourceID":"fix","targetID":"commit","type":"Orthogonal"}`,
		`{"id":"c6","sourceID":"test","targetID":"deploy","type":"Orthogonal","annotations":[{"content":"Yes"}]}`,
		`{"id":"c7","sourceID":"deploy","targetID":"end","type":"Orthogonal"}`,
	}

	doc := protocol.DiagramDocument{
		Nodes:      make([]json.RawMessage, 0, len(nodes)),
		Connectors: make([]json.RawMessage, 0, len(connectors)),
		Timestamp:  protocol.NowMillis(),
	}
	for _, n := range nodes {
		doc.Nodes = append(doc.Nodes, json.RawMessage(n))
	}
	for _, c := range connectors {
		doc.Connectors = append(doc.Connectors, json.RawMessage(c))
	}
	return doc
}

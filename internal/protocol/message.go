// Package protocol defines the JSON wire envelope exchanged between the
// sync server and collaborating editors. Node and connector values are
// produced by the external diagram widget and are treated as opaque
// structured values, round-tripped unchanged.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType is the enumerated tag of a collaboration message.
type MessageType string

const (
	TypeRequestState     MessageType = "REQUEST_STATE"
	TypeStateSync        MessageType = "STATE_SYNC"
	TypeDiagramUpdate    MessageType = "DIAGRAM_UPDATE"
	TypeNodeAdded        MessageType = "NODE_ADDED"
	TypeNodeUpdated      MessageType = "NODE_UPDATED"
	TypeNodeDeleted      MessageType = "NODE_DELETED"
	TypeConnectorAdded   MessageType = "CONNECTOR_ADDED"
	TypeConnectorUpdated MessageType = "CONNECTOR_UPDATED"
	TypeConnectorDeleted MessageType = "CONNECTOR_DELETED"
)

// Known reports whether the tag is part of the protocol. Unknown tags are
// logged and ignored by the server, never treated as fatal.
func (t MessageType) Known() bool {
	switch t {
	case TypeRequestState, TypeStateSync, TypeDiagramUpdate,
		TypeNodeAdded, TypeNodeUpdated, TypeNodeDeleted,
		TypeConnectorAdded, TypeConnectorUpdated, TypeConnectorDeleted:
		return true
	}
	return false
}

// IsElementEvent reports whether the tag is one of the fine-grained
// node/connector mutation hints that are forwarded verbatim.
func (t MessageType) IsElementEvent() bool {
	switch t {
	case TypeNodeAdded, TypeNodeUpdated, TypeNodeDeleted,
		TypeConnectorAdded, TypeConnectorUpdated, TypeConnectorDeleted:
		return true
	}
	return false
}

// DiagramDocument is a complete, self-contained serialization of the shared
// diagram at one instant. The server replaces it wholesale on each accepted
// update; it is never patched field-by-field.
type DiagramDocument struct {
	Nodes      []json.RawMessage `json:"nodes"`
	Connectors []json.RawMessage `json:"connectors"`
	Timestamp  int64             `json:"timestamp"`
}

// EmptyDocument returns a fresh empty document stamped with the current time.
// Slices are non-nil so the JSON form is {"nodes":[],"connectors":[],...}.
func EmptyDocument() DiagramDocument {
	return DiagramDocument{
		Nodes:      make([]json.RawMessage, 0),
		Connectors: make([]json.RawMessage, 0),
		Timestamp:  NowMillis(),
	}
}

// IsEmpty reports whether the document carries no nodes and no connectors.
func (d DiagramDocument) IsEmpty() bool {
	return len(d.Nodes) == 0 && len(d.Connectors) == 0
}

// Message is the wire envelope. Immutable once constructed.
type Message struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	ClientID  string          `json:"clientId,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// StatePayload carries a full document snapshot (STATE_SYNC, DIAGRAM_UPDATE).
type StatePayload struct {
	State DiagramDocument `json:"state"`
}

// NodePayload carries one opaque node value (NODE_* events).
type NodePayload struct {
	Node json.RawMessage `json:"node"`
}

// ConnectorPayload carries one opaque connector value (CONNECTOR_* events).
type ConnectorPayload struct {
	Connector json.RawMessage `json:"connector"`
}

// NowMillis returns the current wall clock in milliseconds, the timestamp
// unit used throughout the protocol.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// Decode parses raw bytes into the envelope shape. It validates only the
// envelope: a missing or empty type tag is an error, payload contents are not
// inspected here.
func Decode(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("malformed message envelope: %w", err)
	}
	if msg.Type == "" {
		return Message{}, fmt.Errorf("message missing type tag")
	}
	return msg, nil
}

// DecodeState parses the payload of a STATE_SYNC or DIAGRAM_UPDATE message.
func (m Message) DecodeState() (StatePayload, error) {
	var p StatePayload
	if len(m.Payload) == 0 {
		return p, fmt.Errorf("%s message has no payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return p, fmt.Errorf("malformed %s payload: %w", m.Type, err)
	}
	return p, nil
}

// Encode marshals the envelope for the transport.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// NewStateSync builds a STATE_SYNC message carrying the given document.
// Sent by the server only.
func NewStateSync(doc DiagramDocument) Message {
	return Message{
		Type:      TypeStateSync,
		Payload:   mustMarshal(StatePayload{State: doc}),
		Timestamp: NowMillis(),
	}
}

// NewDiagramUpdate builds a DIAGRAM_UPDATE message carrying a full snapshot.
func NewDiagramUpdate(doc DiagramDocument, clientID string) Message {
	return Message{
		Type:      TypeDiagramUpdate,
		Payload:   mustMarshal(StatePayload{State: doc}),
		ClientID:  clientID,
		Timestamp: NowMillis(),
	}
}

// NewRequestState builds a REQUEST_STATE message with an empty payload.
func NewRequestState(clientID string) Message {
	return Message{
		Type:      TypeRequestState,
		ClientID:  clientID,
		Timestamp: NowMillis(),
	}
}

// NewNodeEvent builds one of the NODE_* advisory messages.
func NewNodeEvent(t MessageType, node json.RawMessage, clientID string) Message {
	return Message{
		Type:      t,
		Payload:   mustMarshal(NodePayload{Node: node}),
		ClientID:  clientID,
		Timestamp: NowMillis(),
	}
}

// NewConnectorEvent builds one of the CONNECTOR_* advisory messages.
func NewConnectorEvent(t MessageType, connector json.RawMessage, clientID string) Message {
	return Message{
		Type:      t,
		Payload:   mustMarshal(ConnectorPayload{Connector: connector}),
		ClientID:  clientID,
		Timestamp: NowMillis(),
	}
}

// mustMarshal is safe for the payload types above: they contain only
// marshalable fields.
func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("protocol: marshal payload: %v", err))
	}
	return data
}

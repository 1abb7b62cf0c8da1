package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drawsync/drawsync/internal/config"
	"github.com/drawsync/drawsync/internal/protocol"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:      "0",
			Interface: "127.0.0.1",
		},
		WebSocket: config.WebSocketConfig{
			ReadLimit:      1 << 20,
			WriteWait:      2 * time.Second,
			PongWait:       10 * time.Second,
			PingInterval:   5 * time.Second,
			SendBufferSize: 16,
		},
	}
}

// startTestServer runs a full server with a live hub loop and returns the
// assembled server plus its ws:// URL.
func startTestServer(t *testing.T) (*Server, string) {
	t.Helper()

	server := NewServer(testConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	go server.Hub().Run(ctx)

	ts := httptest.NewServer(server.Router())
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})

	return server, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dialTestServer(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) protocol.Message {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	msg, err := protocol.Decode(data)
	require.NoError(t, err)
	return msg
}

func TestConnectReceivesStateSync(t *testing.T) {
	_, wsURL := startTestServer(t)
	conn := dialTestServer(t, wsURL)

	msg := readMessage(t, conn)
	assert.Equal(t, protocol.TypeStateSync, msg.Type)

	state, err := msg.DecodeState()
	require.NoError(t, err)
	assert.True(t, state.State.IsEmpty())

	// The empty document must serialize with array-typed collections so a
	// fresh client can tell "empty server" from "missing payload".
	assert.Contains(t, string(msg.Payload), `"nodes":[]`)
}

func TestDiagramUpdateBroadcastExcludesSender(t *testing.T) {
	server, wsURL := startTestServer(t)

	sender := dialTestServer(t, wsURL)
	receiver := dialTestServer(t, wsURL)
	readMessage(t, sender)   // initial STATE_SYNC
	readMessage(t, receiver) // initial STATE_SYNC

	doc := protocol.DiagramDocument{
		Nodes:     []json.RawMessage{json.RawMessage(`{"id":"n1","offsetX":10}`)},
		Timestamp: protocol.NowMillis(),
	}
	update := protocol.NewDiagramUpdate(doc, "client_sender")
	require.NoError(t, sender.WriteJSON(update))

	got := readMessage(t, receiver)
	assert.Equal(t, protocol.TypeDiagramUpdate, got.Type)
	assert.Equal(t, "client_sender", got.ClientID)

	state, err := got.DecodeState()
	require.NoError(t, err)
	require.Len(t, state.State.Nodes, 1)
	assert.JSONEq(t, `{"id":"n1","offsetX":10}`, string(state.State.Nodes[0]))

	// The sender must not receive its own update back.
	require.NoError(t, sender.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err = sender.ReadMessage()
	assert.Error(t, err)

	// The authoritative document is stamped with the server's receive time.
	assert.Eventually(t, func() bool {
		return len(server.Registry().Document().Nodes) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRequestStateRepliesDirectly(t *testing.T) {
	_, wsURL := startTestServer(t)

	requester := dialTestServer(t, wsURL)
	bystander := dialTestServer(t, wsURL)
	readMessage(t, requester)
	readMessage(t, bystander)

	require.NoError(t, requester.WriteJSON(protocol.NewRequestState("client_req")))

	msg := readMessage(t, requester)
	assert.Equal(t, protocol.TypeStateSync, msg.Type)

	// The reply goes to the requester only.
	require.NoError(t, bystander.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := bystander.ReadMessage()
	assert.Error(t, err)
}

func TestMalformedMessageDoesNotKillConnection(t *testing.T) {
	_, wsURL := startTestServer(t)

	conn := dialTestServer(t, wsURL)
	readMessage(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{not json`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"payload":{}}`)))

	// The connection survives both drops and still answers requests.
	require.NoError(t, conn.WriteJSON(protocol.NewRequestState("client_req")))
	msg := readMessage(t, conn)
	assert.Equal(t, protocol.TypeStateSync, msg.Type)
}

func TestElementEventsForwardedVerbatim(t *testing.T) {
	server, wsURL := startTestServer(t)

	sender := dialTestServer(t, wsURL)
	receiver := dialTestServer(t, wsURL)
	readMessage(t, sender)
	readMessage(t, receiver)

	event := protocol.NewNodeEvent(protocol.TypeNodeAdded, json.RawMessage(`{"id":"n9"}`), "client_a")
	require.NoError(t, sender.WriteJSON(event))

	got := readMessage(t, receiver)
	assert.Equal(t, protocol.TypeNodeAdded, got.Type)
	assert.Equal(t, "client_a", got.ClientID)

	var payload protocol.NodePayload
	require.NoError(t, json.Unmarshal(got.Payload, &payload))
	assert.JSONEq(t, `{"id":"n9"}`, string(payload.Node))

	// Element events are advisory: the authoritative document is untouched.
	assert.True(t, server.Registry().Document().IsEmpty())
}

func TestClientSentStateSyncIgnored(t *testing.T) {
	server, wsURL := startTestServer(t)

	conn := dialTestServer(t, wsURL)
	other := dialTestServer(t, wsURL)
	readMessage(t, conn)
	readMessage(t, other)

	doc := protocol.DiagramDocument{
		Nodes: []json.RawMessage{json.RawMessage(`{"id":"bogus"}`)},
	}
	require.NoError(t, conn.WriteJSON(protocol.NewStateSync(doc)))

	require.NoError(t, other.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := other.ReadMessage()
	assert.Error(t, err)
	assert.True(t, server.Registry().Document().IsEmpty())
}

func TestResetBroadcastsToAllSessions(t *testing.T) {
	server, wsURL := startTestServer(t)

	a := dialTestServer(t, wsURL)
	b := dialTestServer(t, wsURL)
	readMessage(t, a)
	readMessage(t, b)

	doc := protocol.DiagramDocument{
		Nodes: []json.RawMessage{json.RawMessage(`{"id":"n1"}`)},
	}
	require.NoError(t, a.WriteJSON(protocol.NewDiagramUpdate(doc, "client_a")))
	readMessage(t, b) // broadcast of the update

	server.Hub().Reset()

	// Reset reaches every session, the last writer included.
	for _, conn := range []*websocket.Conn{a, b} {
		msg := readMessage(t, conn)
		assert.Equal(t, protocol.TypeDiagramUpdate, msg.Type)

		state, err := msg.DecodeState()
		require.NoError(t, err)
		assert.True(t, state.State.IsEmpty())
	}
	assert.True(t, server.Registry().Document().IsEmpty())
}

func TestDisconnectRemovesSession(t *testing.T) {
	server, wsURL := startTestServer(t)

	conn := dialTestServer(t, wsURL)
	readMessage(t, conn)

	assert.Eventually(t, func() bool {
		return server.Registry().Count() == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		return server.Registry().Count() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drawsync/drawsync/internal/protocol"
)

func TestGetHealth(t *testing.T) {
	server := NewServer(testConfig(), nil)
	router := server.Router()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status    string `json:"status"`
		Clients   int    `json:"clients"`
		Uptime    int64  `json:"uptime"`
		Timestamp int64  `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 0, body.Clients)
	assert.NotZero(t, body.Timestamp)
}

func TestGetDiagram(t *testing.T) {
	server := NewServer(testConfig(), nil)
	server.Registry().Restore(protocol.DiagramDocument{
		Nodes:     []json.RawMessage{json.RawMessage(`{"id":"n1"}`)},
		Timestamp: 777,
	})
	router := server.Router()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/diagram", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		State   protocol.DiagramDocument `json:"state"`
		Clients int                      `json:"clients"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int64(777), body.State.Timestamp)
	require.Len(t, body.State.Nodes, 1)
	assert.Equal(t, 0, body.Clients)
}

func TestPostDiagramReset(t *testing.T) {
	server := NewServer(testConfig(), nil)
	server.Registry().Restore(protocol.DiagramDocument{
		Nodes: []json.RawMessage{json.RawMessage(`{"id":"n1"}`)},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Hub().Run(ctx)

	router := server.Router()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/diagram/reset", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "Diagram reset successfully", body.Message)
	assert.True(t, server.Registry().Document().IsEmpty())
}

func TestUnknownRouteReturnsJSON404(t *testing.T) {
	server := NewServer(testConfig(), nil)
	router := server.Router()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/nope", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"message":"Route not found"}`, w.Body.String())
}

func TestCORSHeaders(t *testing.T) {
	server := NewServer(testConfig(), nil)
	router := server.Router()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://editor.example")
	router.ServeHTTP(w, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	server := NewServer(testConfig(), nil)
	router := server.Router()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/diagram/reset", nil)
	req.Header.Set("Origin", "http://editor.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drawsync/drawsync/internal/config"
	"github.com/drawsync/drawsync/internal/protocol"
	"github.com/drawsync/drawsync/internal/slogging"
)

// Server owns the session registry, broadcaster and hub, and serves the
// WebSocket endpoint plus the HTTP control surface.
type Server struct {
	cfg      *config.Config
	registry *SessionRegistry
	router   *Broadcaster
	hub      *Hub
	store    SnapshotStore
}

// NewServer assembles the sync server. store may be nil to disable snapshot
// persistence.
func NewServer(cfg *config.Config, store SnapshotStore) *Server {
	registry := NewSessionRegistry()
	router := NewBroadcaster(registry)
	hub := NewHub(cfg.WebSocket, registry, router, store)

	return &Server{
		cfg:      cfg,
		registry: registry,
		router:   router,
		hub:      hub,
		store:    store,
	}
}

// Hub returns the hub; its Run loop must be started by the caller.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Registry returns the session registry.
func (s *Server) Registry() *SessionRegistry {
	return s.registry
}

// RestoreSnapshot loads a persisted snapshot into the registry, if one
// exists. Called once at startup, before any session connects.
func (s *Server) RestoreSnapshot(ctx context.Context) error {
	if s.store == nil {
		return nil
	}

	doc, ok, err := s.store.Load(ctx)
	if err != nil {
		return err
	}
	if !ok {
		slogging.Get().Info("no persisted snapshot found, starting empty")
		return nil
	}

	s.registry.Restore(doc)
	slogging.Get().Info("restored snapshot with %d nodes, %d connectors", len(doc.Nodes), len(doc.Connectors))
	return nil
}

// Router builds the gin engine with the WebSocket endpoint and the HTTP
// control surface.
func (s *Server) Router() *gin.Engine {
	if !s.cfg.Server.DevMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(RequestLogger(), Recovery(s.cfg.Server.DevMode), CORS())

	r.GET("/ws", s.hub.HandleWS)
	r.GET("/health", s.GetHealth)
	r.GET("/api/diagram", s.GetDiagram)
	r.POST("/api/diagram/reset", s.PostDiagramReset)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Route not found"})
	})

	return r
}

// GetHealth reports liveness, connected client count and uptime.
func (s *Server) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"clients":   s.registry.Count(),
		"uptime":    int64(s.hub.Uptime().Seconds()),
		"timestamp": protocol.NowMillis(),
	})
}

// GetDiagram returns the current authoritative document.
func (s *Server) GetDiagram(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"state":   s.registry.Document(),
		"clients": s.registry.Count(),
	})
}

// PostDiagramReset empties the document and broadcasts the empty snapshot to
// every connected session.
func (s *Server) PostDiagramReset(c *gin.Context) {
	s.hub.Reset()

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Diagram reset successfully",
	})
}

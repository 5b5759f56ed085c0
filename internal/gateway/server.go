// Package gateway exposes the orchestration API over HTTP and streams
// engine events over WebSocket.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/weftlabs/weft/internal/assess"
	"github.com/weftlabs/weft/internal/events"
	"github.com/weftlabs/weft/internal/gateway/ws"
	"github.com/weftlabs/weft/internal/orchestrator"
	"github.com/weftlabs/weft/internal/progress"
	"github.com/weftlabs/weft/internal/registry"
)

// Deps bundles the engine components the gateway fronts.
type Deps struct {
	Registry   *registry.Registry
	Orch       *orchestrator.Orchestrator
	Controller *orchestrator.Controller
	Reporter   *progress.Reporter
	Aggregator *assess.Aggregator
	Bus        *events.Bus
}

// Server is the weft gateway HTTP server.
type Server struct {
	httpServer *http.Server
	hub        *ws.Hub
	deps       Deps
	host       string
	port       int
}

// NewServer creates a new gateway server.
func NewServer(deps Deps, host string, port int) *Server {
	hub := ws.NewHub(deps.Bus)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	s := &Server{
		hub:  hub,
		deps: deps,
		host: host,
		port: port,
	}

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/ws", hub.ServeWS)
	r.Get("/api/events", s.handleEvents)

	r.Route("/api/tasks", func(r chi.Router) {
		r.Post("/", s.handleSubmit)
		r.Get("/", s.handleList)
		r.Get("/{id}", s.handleGet)
		r.Delete("/{id}", s.handleEvict)
		r.Post("/{id}/pause", s.handlePause)
		r.Post("/{id}/resume", s.handleResume)
		r.Post("/{id}/cancel", s.handleCancel)
		r.Get("/{id}/report", s.handleReport)
		r.Get("/{id}/history", s.handleHistory)
		r.Get("/{id}/assessment", s.handleAssessment)
	})

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: r,
	}

	return s
}

// Start begins listening. It blocks until the server is stopped.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	slog.Info("weft gateway listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limitStr := r.URL.Query().Get("limit")
	limit := 50
	if limitStr != "" {
		fmt.Sscanf(limitStr, "%d", &limit)
	}
	writeJSON(w, http.StatusOK, s.deps.Bus.History(limit))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

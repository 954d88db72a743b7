// Package infoserver provides an HTTP server that exposes the node's identity,
// health and per message verification state.
package infoserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/smartcontractkit/chainlink-common/pkg/logger"

	"github.com/tangle-network/layerzero-dvn-template/protocol"
	"github.com/tangle-network/layerzero-dvn-template/verifier"
)

// InfoResponse is the response format for the /info endpoint.
type InfoResponse struct {
	VerifierID  string `json:"verifier_id"`
	NodeAddress string `json:"node_address"`
	Strategy    string `json:"strategy"`
}

// HealthResponse is the response format for the /health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Phase  string `json:"phase"`
}

// Phase represents the current lifecycle phase of the node.
type Phase string

const (
	PhaseInit   Phase = "init"
	PhaseReady  Phase = "ready"
	PhaseActive Phase = "active"
)

// StateLookup returns the tracked state of a message.
type StateLookup interface {
	Get(id protocol.MessageID) (verifier.MessageState, bool)
}

// Server is an HTTP server that exposes node information.
type Server struct {
	httpServer *http.Server
	lggr       logger.Logger
	info       InfoResponse
	states     StateLookup

	mu    sync.RWMutex
	phase Phase
}

// New creates a new info server. states may be nil, in which case
// /messages/{id} always answers 404.
func New(addr string, info InfoResponse, states StateLookup, lggr logger.Logger) *Server {
	s := &Server{
		info:   info,
		states: states,
		phase:  PhaseReady,
		lggr:   lggr,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/info", s.handleInfo)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/messages/{id}", s.handleMessage)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

// Start starts the HTTP server. This is a blocking call.
func (s *Server) Start() error {
	s.lggr.Infow("Starting info server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.lggr.Infow("Shutting down info server")
	return s.httpServer.Shutdown(ctx)
}

// SetPhase updates the current lifecycle phase.
func (s *Server) SetPhase(phase Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = phase
}

// GetPhase returns the current lifecycle phase.
func (s *Server) GetPhase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.info)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, HealthResponse{
		Status: "ok",
		Phase:  string(s.GetPhase()),
	})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, err := protocol.NewBytes32FromString(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid message id", http.StatusBadRequest)
		return
	}
	if s.states == nil {
		http.Error(w, "Message not found", http.StatusNotFound)
		return
	}
	state, ok := s.states.Get(id)
	if !ok {
		http.Error(w, "Message not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, state)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.lggr.Errorw("Failed to encode response", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// Addr returns the server's address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

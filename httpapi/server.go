// Package httpapi provides the HTTP UI: health/readiness endpoints, a
// snapshot endpoint, a manual-override write endpoint, and a websocket
// status feed — following the teacher's WebServer (scheduler/server.go)
// almost field-for-field, with the miner/ASIC-specific health data replaced
// by the orchestrator's Snapshot and control state.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/devskill-org/ems/ctrl"
	"github.com/devskill-org/ems/orchestrator"
)

// Server provides HTTP endpoints for health checking, monitoring, and the
// manual-override control surface.
type Server struct {
	orch      *orchestrator.Orchestrator
	server    *http.Server
	port      int
	startTime time.Time
	upgrader  websocket.Upgrader
	clients   sync.Map
	broadcast chan []byte
	done      chan struct{}
}

// StatusResponse is the combined health/status payload served over
// /api/health and pushed over the websocket feed.
type StatusResponse struct {
	Status    string       `json:"status"`
	Timestamp string       `json:"timestamp"`
	Version   string       `json:"version,omitempty"`
	System    SystemHealth `json:"system"`
	Control   ControlInfo  `json:"control"`
}

// SystemHealth reports process-level health information.
type SystemHealth struct {
	Uptime string `json:"uptime"`
}

// ControlInfo summarizes the orchestrator's current observable state.
type ControlInfo struct {
	State        string     `json:"state"`
	RequestState string     `json:"request_state"`
	NextRun      *time.Time `json:"next_run,omitempty"`
	HasOverride  bool       `json:"has_override"`
}

// New creates a Server with health endpoints and the websocket feed wired
// up. Returns nil if port is non-positive, matching the teacher's
// "health server disabled" convention.
func New(orch *orchestrator.Orchestrator, port int) *Server {
	if port <= 0 {
		return nil
	}

	mux := http.NewServeMux()
	s := &Server{
		orch:      orch,
		port:      port,
		startTime: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		broadcast: make(chan []byte, 256),
		done:      make(chan struct{}),
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}

	mux.HandleFunc("/api/health", s.healthHandler)
	mux.HandleFunc("/api/ready", s.readinessHandler)
	mux.HandleFunc("/api/snapshot", s.snapshotHandler)
	mux.HandleFunc("/api/controls/override", s.overrideHandler)
	mux.HandleFunc("/api/ws", s.wsHandler)

	return s
}

// Start starts the HTTP server and the websocket broadcast loop.
func (s *Server) Start() error {
	if s == nil {
		return nil
	}
	go s.handleBroadcasts()
	go s.broadcastStatus()
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("http api server error: %v\n", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the server down, closing all websocket clients.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	close(s.done)
	s.clients.Range(func(key, value any) bool {
		if conn, ok := key.(*websocket.Conn); ok {
			conn.Close() //nolint:errcheck
		}
		return true
	})
	return s.server.Shutdown(ctx)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := s.buildStatus()
	w.Header().Set("Content-Type", "application/json")
	if resp.Control.State == ctrl.StateUninitialized.String() {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ready := s.orch.CurrentState() != ctrl.StateUninitialized
	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
		"ready":     ready,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) snapshotHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.orch.Snapshot()); err != nil {
		http.Error(w, "failed to encode snapshot", http.StatusInternalServerError)
	}
}

// overrideRequest is the body of POST /api/controls/override.
type overrideRequest struct {
	Mode         int     `json:"mode"` // -1 clears the override
	DurationSec  int     `json:"duration_sec"`
	GridChargeKW float64 `json:"grid_charge_kw"`
}

func (s *Server) overrideHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.Mode > 2 {
		http.Error(w, "mode must be -1 (clear) or 0..2", http.StatusBadRequest)
		return
	}
	s.orch.SetOverride(req.Mode, time.Duration(req.DurationSec)*time.Second, req.GridChargeKW, time.Now())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		fmt.Printf("websocket upgrade error: %v\n", err)
		return
	}
	s.clients.Store(conn, true)

	s.sendStatusToClient(conn)

	defer func() {
		s.clients.Delete(conn)
		conn.Close() //nolint:errcheck
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) handleBroadcasts() {
	for {
		select {
		case message := <-s.broadcast:
			s.clients.Range(func(key, value any) bool {
				conn, ok := key.(*websocket.Conn)
				if !ok {
					return true
				}
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					conn.Close() //nolint:errcheck
					s.clients.Delete(conn)
				}
				return true
			})
		case <-s.done:
			return
		}
	}
}

func (s *Server) broadcastStatus() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			hasClients := false
			s.clients.Range(func(key, value any) bool {
				hasClients = true
				return false
			})
			if !hasClients {
				continue
			}
			message, err := json.Marshal(s.buildStatus())
			if err != nil {
				continue
			}
			s.broadcast <- message
		case <-s.done:
			return
		}
	}
}

func (s *Server) sendStatusToClient(conn *websocket.Conn) {
	conn.WriteJSON(s.buildStatus()) //nolint:errcheck
}

func (s *Server) buildStatus() StatusResponse {
	snap := s.orch.Snapshot()
	state := s.orch.CurrentState()

	status := "healthy"
	if state == ctrl.StateUninitialized {
		status = "unhealthy"
	}

	var nextRun *time.Time
	if !snap.NextRun.IsZero() {
		nr := snap.NextRun
		nextRun = &nr
	}

	return StatusResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
		System: SystemHealth{
			Uptime: formatUptime(time.Since(s.startTime)),
		},
		Control: ControlInfo{
			State:        state.String(),
			RequestState: string(snap.RequestState),
			NextRun:      nextRun,
			HasOverride:  snap.Override != nil,
		},
	}
}

func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	sec := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, sec)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, sec)
	}
	return fmt.Sprintf("%ds", sec)
}

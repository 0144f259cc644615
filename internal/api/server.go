// Package api implements the admin/introspection HTTP surface: repository
// descriptors, queue depths, and transient grant counts. Repositories are
// loaded from the directory oracle, not created through this API, so this surface exposes
// read-only GETs plus a small set of test-enqueue POSTs an operator can
// use to exercise the maintenance drain path by hand.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/computingfreak/DataFed/internal/lifecycle"
	"github.com/computingfreak/DataFed/internal/metrics"
	"github.com/computingfreak/DataFed/internal/repo"
	"github.com/computingfreak/DataFed/internal/state"
)

// Server is the admin REST API and metrics server.
type Server struct {
	registry   *repo.Registry
	state      *state.State
	controller *lifecycle.Controller
	metrics    *metrics.Collector
	httpServer *http.Server
	startTime  time.Time
}

// NewServer creates a new admin API server.
func NewServer(registry *repo.Registry, st *state.State, controller *lifecycle.Controller, mc *metrics.Collector) *Server {
	return &Server{
		registry:   registry,
		state:      st,
		controller: controller,
		metrics:    mc,
		startTime:  time.Now(),
	}
}

// Start starts the HTTP API server on port.
func (s *Server) Start(port int) error {
	r := mux.NewRouter()

	// Repository introspection
	r.HandleFunc("/repos", s.listRepos).Methods("GET")
	r.HandleFunc("/repos/{id}", s.getRepo).Methods("GET")

	// Queue introspection and manual drain-path exercising
	r.HandleFunc("/queues", s.queueDepths).Methods("GET")
	r.HandleFunc("/queues/data_delete/test", s.enqueueTestDataDelete).Methods("POST")
	r.HandleFunc("/queues/path_create/test", s.enqueueTestPathCreate).Methods("POST")
	r.HandleFunc("/queues/path_delete/test", s.enqueueTestPathDelete).Methods("POST")

	// Transient grant table
	r.HandleFunc("/grants", s.grantSummary).Methods("GET")

	// Server status
	r.HandleFunc("/status", s.statusHandler).Methods("GET")

	// Health & readiness
	r.HandleFunc("/health", s.healthHandler).Methods("GET")
	r.HandleFunc("/ready", s.readyHandler).Methods("GET")

	// Prometheus metrics — served from this collector's own registry,
	// not the global default one (see internal/metrics.New).
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))

	// Admin dashboard, served at exactly "/" and "/dashboard"
	r.HandleFunc("/", s.dashboardHandler).Methods("GET")
	r.HandleFunc("/dashboard", s.dashboardHandler).Methods("GET")

	addr := fmt.Sprintf("0.0.0.0:%d", port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	slog.Info("api: listening", "addr", addr)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("api: server error", "err", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the API server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// --- Repository handlers ---

func (s *Server) listRepos(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.List())
}

func (s *Server) getRepo(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	d, ok := s.registry.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "repository not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// --- Queue handlers ---

type queueDepthResponse struct {
	DataDelete int `json:"data_delete"`
	PathCreate int `json:"path_create"`
	PathDelete int `json:"path_delete"`
}

func (s *Server) queueDepths(w http.ResponseWriter, _ *http.Request) {
	dd, pc, pd := s.state.QueueDepths()
	writeJSON(w, http.StatusOK, queueDepthResponse{DataDelete: dd, PathCreate: pc, PathDelete: pd})
}

type testEnqueueRequest struct {
	RepoID string `json:"repo_id"`
	Path   string `json:"path,omitempty"`
	ID     string `json:"id,omitempty"`
}

func (s *Server) enqueueTestDataDelete(w http.ResponseWriter, r *http.Request) {
	var req testEnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.RepoID == "" || req.Path == "" {
		writeError(w, http.StatusBadRequest, "repo_id and path are required")
		return
	}
	if _, ok := s.registry.Get(req.RepoID); !ok {
		writeError(w, http.StatusNotFound, "repository not found")
		return
	}

	s.state.EnqueueDataDelete(req.RepoID, req.Path)
	slog.Info("api: test data_delete enqueued", "repo", req.RepoID, "path", req.Path)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "enqueued"})
}

func (s *Server) enqueueTestPathCreate(w http.ResponseWriter, r *http.Request) {
	s.enqueueTestPathOp(w, r, s.state.EnqueuePathCreate, "path_create")
}

func (s *Server) enqueueTestPathDelete(w http.ResponseWriter, r *http.Request) {
	s.enqueueTestPathOp(w, r, s.state.EnqueuePathDelete, "path_delete")
}

func (s *Server) enqueueTestPathOp(w http.ResponseWriter, r *http.Request, enqueue func(repoID, id string), label string) {
	var req testEnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.RepoID == "" || req.ID == "" {
		writeError(w, http.StatusBadRequest, "repo_id and id are required")
		return
	}
	if _, ok := s.registry.Get(req.RepoID); !ok {
		writeError(w, http.StatusNotFound, "repository not found")
		return
	}

	enqueue(req.RepoID, req.ID)
	slog.Info("api: test "+label+" enqueued", "repo", req.RepoID, "id", req.ID)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "enqueued"})
}

// --- Grant handlers ---

func (s *Server) grantSummary(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"active": s.state.GrantCount()})
}

// --- Health handlers ---

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	healthy := s.controller.Running()
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"status": boolToStatus(healthy)})
}

func (s *Server) readyHandler(w http.ResponseWriter, _ *http.Request) {
	if s.controller.Running() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
}

// --- Status handler ---

func (s *Server) statusHandler(w http.ResponseWriter, _ *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	uptime := time.Since(s.startTime).Seconds()
	dd, pc, pd := s.state.QueueDepths()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime_seconds": int(uptime),
		"go_version":     runtime.Version(),
		"goroutines":     runtime.NumGoroutine(),
		"memory_mb":      float64(mem.Alloc) / 1024 / 1024,
		"num_repos":      s.registry.Len(),
		"active_grants":  s.state.GrantCount(),
		"queue_depths":   map[string]int{"data_delete": dd, "path_create": pc, "path_delete": pd},
		"running":        s.controller.Running(),
	})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func boolToStatus(b bool) string {
	if b {
		return "healthy"
	}
	return "unhealthy"
}

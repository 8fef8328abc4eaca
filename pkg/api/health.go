package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/golemproject/golem/pkg/metrics"
	"github.com/golemproject/golem/pkg/scheduler"
	"github.com/golemproject/golem/pkg/shardmanager"
)

// HealthServer provides HTTP health check endpoints for an executor or
// shard-manager process. Either workers or shards may be nil depending
// on which role this process runs: an executor has a worker registry
// and no ShardManager, the shard-manager process the reverse.
type HealthServer struct {
	workers *scheduler.Registry
	shards  *shardmanager.ShardManager
	mux     *http.ServeMux
}

// NewHealthServer creates a new health check HTTP server
func NewHealthServer(workers *scheduler.Registry, shards *shardmanager.ShardManager) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{
		workers: workers,
		shards:  shards,
		mux:     mux,
	}

	mux.HandleFunc("/health", hs.healthHandler)
	mux.HandleFunc("/ready", hs.readyHandler)
	mux.Handle("/metrics", metrics.Handler())

	return hs
}

// Start starts the health check HTTP server
func (hs *HealthServer) Start(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      hs.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

// ReadyResponse represents the readiness check response
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Message   string            `json:"message,omitempty"`
}

// healthHandler implements the /health endpoint: a simple liveness
// check, returns 200 if the process is alive.
func (hs *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   "0.1.0",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

// readyHandler implements the /ready endpoint: checks whether this
// process has the component its role requires wired in.
func (hs *HealthServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	checks := make(map[string]string)
	ready := true
	var message string

	if hs.workers != nil {
		checks["workers"] = "ok"
	} else {
		checks["workers"] = "not running in this process"
	}

	if hs.shards != nil {
		checks["shards"] = "ok"
	} else {
		checks["shards"] = "not running in this process"
	}

	if hs.workers == nil && hs.shards == nil {
		ready = false
		message = "neither a worker registry nor a shard manager is wired into this process"
	}

	status := "ready"
	statusCode := http.StatusOK
	if !ready {
		status = "not ready"
		statusCode = http.StatusServiceUnavailable
	}

	response := ReadyResponse{
		Status:    status,
		Timestamp: time.Now(),
		Checks:    checks,
		Message:   message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// GetHandler returns the HTTP handler for embedding in other servers
func (hs *HealthServer) GetHandler() http.Handler {
	return hs.mux
}

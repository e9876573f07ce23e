package handler

import (
	"net/http"
	"runtime"
	"time"

	"ruteo-sync-agent/pkg/response"
)

// StartTime tracks when the agent started for uptime calculation
var StartTime = time.Now()

// Reachability reports whether the authority is currently reachable.
type Reachability interface {
	Reachable() bool
}

// Handler contains shared HTTP handlers and their dependencies.
type Handler struct {
	version string
	conn    Reachability
}

// New creates a new handler.
func New(version string, conn Reachability) *Handler {
	return &Handler{version: version, conn: conn}
}

// StatusChecks represents the checks in the status response.
type StatusChecks struct {
	AuthorityReachable bool    `json:"authority_reachable"`
	MemoryMB           float64 `json:"memory_mb"`
}

// StatusResponse represents the unified status response.
type StatusResponse struct {
	Service       string       `json:"service"`
	Status        string       `json:"status"`
	Version       string       `json:"version"`
	Timestamp     string       `json:"timestamp"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	Checks        StatusChecks `json:"checks"`
}

// Status handles GET /api/status - the UI's liveness check for the agent.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	memoryMB := float64(memStats.Alloc) / 1024 / 1024

	reachable := false
	if h.conn != nil {
		reachable = h.conn.Reachable()
	}

	resp := StatusResponse{
		Service:       "ruteo-sync-agent",
		Status:        "ok",
		Version:       h.version,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		UptimeSeconds: int64(time.Since(StartTime).Seconds()),
		Checks: StatusChecks{
			AuthorityReachable: reachable,
			MemoryMB:           float64(int(memoryMB*100)) / 100,
		},
	}

	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	response.OK(w, resp)
}

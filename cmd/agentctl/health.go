package main

import (
	"encoding/json"
	"net/http"

	"github.com/rickgao/agentlink/internal/agent"
	"github.com/rickgao/agentlink/internal/connection"
	"github.com/rickgao/agentlink/internal/status"
	"github.com/rickgao/agentlink/internal/store"
	"github.com/rickgao/agentlink/internal/version"
)

// linkState is what the health endpoints read from the agent client.
type linkState interface {
	ConnectionStatus() connection.ConnectionStatus
	LatestStatus() status.Snapshot
	Stats() agent.Stats
}

// storeStats is satisfied by *store.SnapshotWriter.
type storeStats interface {
	Stats() store.Stats
}

// createHealthHandler creates the HTTP handler for health checks.
// writer may be nil when the store is disabled.
func createHealthHandler(link linkState, writer storeStats) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		conn := link.ConnectionStatus()

		health := struct {
			Status     string         `json:"status"`
			Version    version.Info   `json:"version"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Version:    version.Get(),
			Components: make(map[string]any),
		}

		health.Components["agent_link"] = conn
		health.Components["frames"] = link.Stats()
		if !conn.Connected {
			health.Status = "unhealthy"
		}

		latest := link.LatestStatus()
		if latest.IsEmpty() {
			health.Components["latest_status"] = "none"
			if health.Status == "healthy" {
				health.Status = "degraded"
			}
		} else {
			health.Components["latest_status"] = map[string]any{
				"received_at": latest.ReceivedAt,
				"running":     latest.Status.HoloOcean.Running,
				"tick_count":  latest.Status.HoloOcean.TickCount,
			}
		}

		if writer != nil {
			health.Components["store"] = writer.Stats()
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		latest := link.LatestStatus()

		w.Header().Set("Content-Type", "application/json")
		if latest.IsEmpty() {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "no status received yet"})
			return
		}
		json.NewEncoder(w).Encode(latest)
	})

	return mux
}

package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/satyamsundaram01/confsync/internal/httpserver/deps"
	"github.com/satyamsundaram01/confsync/internal/scheduler"
)

type statusResponse struct {
	Descriptors   int                     `json:"descriptors"`
	LastCycleAt   string                  `json:"last_cycle_at,omitempty"`
	LastCycle     *scheduler.CycleSummary `json:"last_cycle,omitempty"`
	RedisEnabled  bool                    `json:"redis_enabled"`
	UptimeSeconds float64                 `json:"uptime_seconds"`
}

// Status exposes the agent's view of the world: how many descriptors are
// tracked and what the last sync cycle did.
func Status(d deps.Deps) http.HandlerFunc {
	start := d.StartTime
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")

		resp := statusResponse{
			Descriptors:   d.Index.Count(),
			LastCycle:     d.Runner.LastCycle(),
			RedisEnabled:  d.RedisClient != nil,
			UptimeSeconds: time.Since(start).Seconds(),
		}
		if at := d.Index.LastCycle(); !at.IsZero() {
			resp.LastCycleAt = at.Format(time.RFC3339)
		}

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

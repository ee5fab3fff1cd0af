package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/satyamsundaram01/confsync/internal/httpserver/deps"
)

type readyzResponse struct {
	Ready  bool   `json:"ready"`
	Reason string `json:"reason,omitempty"`
}

// Readyz reports ready once a sync cycle has completed. A configured but
// unreachable Redis flips the probe to not-ready; record persistence is the
// only thing Redis backs, so this is informational for restart ordering.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if d.Index.LastCycle().IsZero() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(readyzResponse{
				Ready:  false,
				Reason: "no sync cycle completed yet",
			})
			return
		}

		if d.RedisClient != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := d.RedisClient.Ping(ctx).Err(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(readyzResponse{
					Ready:  false,
					Reason: "redis unreachable",
				})
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(readyzResponse{Ready: true})
	}
}

package handlers

import (
	"net/http"

	"github.com/satyamsundaram01/confsync/internal/httpserver/deps"
	"github.com/satyamsundaram01/confsync/internal/logger"
)

// Refresh triggers a forced cycle: every tracked record is dropped and all
// resolved descriptors are rewritten from the current manifest.
func Refresh(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case d.RefreshTrigger <- struct{}{}:
			d.Logger.Info("forced refresh triggered via endpoint",
				logger.String("remote_ip", r.RemoteAddr))
			w.WriteHeader(http.StatusAccepted)
			if _, err := w.Write([]byte("✅ Forced refresh triggered\n")); err != nil {
				d.Logger.Debug("failed to write response", logger.Error(err))
			}
		default:
			d.Logger.Warn("refresh already pending",
				logger.String("remote_ip", r.RemoteAddr))
			w.WriteHeader(http.StatusTooManyRequests)
			if _, err := w.Write([]byte("⏳ Refresh already pending, please wait\n")); err != nil {
				d.Logger.Debug("failed to write response", logger.Error(err))
			}
		}
	}
}

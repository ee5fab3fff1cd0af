package handlers

import (
	"net/http"

	"github.com/satyamsundaram01/confsync/internal/httpserver/deps"
	"github.com/satyamsundaram01/confsync/internal/logger"
)

// Sync triggers an immediate sync cycle
func Sync(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case d.SyncTrigger <- struct{}{}:
			d.Logger.Info("manual sync triggered via endpoint",
				logger.String("remote_ip", r.RemoteAddr))
			w.WriteHeader(http.StatusAccepted)
			if _, err := w.Write([]byte("✅ Sync cycle triggered\n")); err != nil {
				d.Logger.Debug("failed to write response", logger.Error(err))
			}
		default:
			d.Logger.Warn("sync already pending",
				logger.String("remote_ip", r.RemoteAddr))
			w.WriteHeader(http.StatusTooManyRequests)
			if _, err := w.Write([]byte("⏳ Sync already pending, please wait\n")); err != nil {
				d.Logger.Debug("failed to write response", logger.Error(err))
			}
		}
	}
}

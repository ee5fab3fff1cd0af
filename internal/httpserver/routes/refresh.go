package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/satyamsundaram01/confsync/internal/httpserver/deps"
	"github.com/satyamsundaram01/confsync/internal/httpserver/handlers"
	"github.com/satyamsundaram01/confsync/internal/httpserver/mw"
)

func init() { Register(registerRefresh) }

func registerRefresh(r chi.Router, d deps.Deps) {
	r.With(
		mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger),
		mw.RateLimit(mw.RateLimitConfig{
			Burst:             d.RateLimitBurst,
			RefillPerIPPerMin: d.RateLimitPerMin,
			TrustProxy:        d.TrustProxy,
		}),
	).Post("/refresh", handlers.Refresh(d))
}

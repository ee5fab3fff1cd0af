package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/satyamsundaram01/confsync/internal/httpserver/deps"
	"github.com/satyamsundaram01/confsync/internal/httpserver/handlers"
	"github.com/satyamsundaram01/confsync/internal/httpserver/mw"
)

func init() { Register(registerStatus) }

func registerStatus(r chi.Router, d deps.Deps) {
	r.With(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger)).Get("/status", handlers.Status(d))
}

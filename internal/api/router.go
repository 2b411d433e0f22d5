package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	apimw "corrade/internal/api/middleware"
	"corrade/internal/service"
)

// NewRouter serves the command endpoint at the configured prefix along
// with health, metrics and, when mcp is non-nil, the MCP endpoint.
func NewRouter(app *service.App, mcp http.Handler) http.Handler {
	cfg := app.Config.Get()
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(apimw.Logging(app.Logger))
	r.Use(app.Metrics.Instrument)

	r.Get("/healthz", health)
	r.Method(http.MethodGet, "/metrics", app.Metrics.Handler())

	limited := r.With(apimw.NewRateLimiter(app.Clients).Middleware)
	if mcp != nil && cfg.MCP.Enabled {
		limited.Handle(cfg.MCP.Path, mcp)
	}
	limited.Handle(prefix(cfg.Server.Prefix), &CommandHandler{App: app})
	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("ok"))
}

func prefix(p string) string {
	if p == "" || p[0] != '/' {
		return "/" + p
	}
	return p
}

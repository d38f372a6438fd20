package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"dmcs/internal/middleware"
)

// NewRouter はルーターを生成する。tracing が true の場合はotelhttpで計装する。
func NewRouter(h *StatusHandler, tracing bool) http.Handler {
	r := chi.NewRouter()

	// ミドルウェア
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.RequestLog)
	r.Use(chimiddleware.Recoverer)

	// ルート定義
	r.Get("/healthz", h.Healthz)
	r.Route("/v1/projects", func(r chi.Router) {
		r.Get("/", h.ListProjects)
		r.Route("/{project}/environments", func(r chi.Router) {
			r.Get("/", h.ListEnvironments)
			r.Get("/{env}/migrations", h.ListMigrations)
			r.Get("/{env}/history", h.ListRuns)
		})
	})

	if !tracing {
		return r
	}
	return otelhttp.NewHandler(r, "dmcs-server")
}

package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opencra/opencra/internal/identity"
	"github.com/opencra/opencra/internal/platform/httpx"
	"github.com/opencra/opencra/internal/report"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	IdentityProvider identity.Provider
	ReportHandler    *report.Handler
	Pool             *pgxpool.Pool
}

// NewRouter constructs the chi.Router with opencra defaults. Everything
// under /api/v1 requires a resolvable principal.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if params.Pool != nil {
			if err := params.Pool.Ping(req.Context()); err != nil {
				httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", "database unreachable")
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(identity.Middleware(params.IdentityProvider, params.Logger))
		params.ReportHandler.MountRoutes(r)
	})

	return r
}

package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"genesis/internal/http/handlers"
	"genesis/internal/middleware"
)

// Options carries the cross-cutting pieces the router wires around the
// handlers.
type Options struct {
	JWTSecret    string
	CORSOrigins  []string
	IsAdminEmail func(string) bool
	Limiter      middleware.Limiter
	Country      middleware.CountryLookup
	// Static serves locally stored media under /static when set.
	Static http.Handler
	Logger zerolog.Logger
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(
		chimw.RealIP,
		middleware.RequestID,
		middleware.Logger(opts.Logger),
		chimw.Recoverer,
		middleware.CORS(opts.CORSOrigins),
		middleware.I18N("en", opts.Country),
	)

	r.Get("/v1/healthz", app.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/v1/models", app.Models)
	r.Get("/v1/plans", app.Plans)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/docs", app.OpenAPIDocs)
	if opts.Static != nil {
		r.Handle("/static/*", http.StripPrefix("/static", opts.Static))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(opts.JWTSecret))

		r.Group(func(r chi.Router) {
			if opts.Limiter != nil {
				r.Use(middleware.RateLimit(opts.Limiter))
			}
			r.Post("/v1/generate", app.Generate)
			r.Post("/v1/images/generate", app.ImagesGenerate)
			r.Post("/v1/videos/generate", app.VideosGenerate)
		})

		r.Get("/v1/jobs/active", app.ActiveJob)
		r.Get("/v1/media", app.ListMedia)
		r.Delete("/v1/media/{id}", app.DeleteMedia)
		r.Get("/v1/subscription", app.Subscription)

		r.With(middleware.RequireAdmin(opts.IsAdminEmail)).
			Post("/v1/admin/subscriptions", app.UpsertSubscription)
	})

	return r
}

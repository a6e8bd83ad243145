package httpapi

import (
	"net/http"
	"time"

	"nanobanana/internal/http/handlers"
	appmw "nanobanana/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(app *handlers.App) http.Handler {
	cfg := app.Config
	r := chi.NewRouter()

	// CORS runs first so preflights are answered before anything else
	r.Use(
		appmw.CORS(cfg.CORSOriginsList()),
		appmw.RequestID,
		middleware.RealIP,
		appmw.Logger(*app.Logger),
		appmw.Recoverer,
	)

	r.Get("/", app.Root)
	r.Get("/docs", app.OpenAPIDocs)
	r.Get("/openapi.json", app.OpenAPIJSON)
	r.Method(http.MethodGet, "/metrics", handlers.Metrics())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", app.Health)
		r.With(
			appmw.RateLimit(cfg.RateLimitPerMin, time.Minute),
			appmw.MaxBodySize(cfg.MaxRequestSize),
		).Post("/generate", app.Generate)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeNotFound(w)
	})

	return r
}

func writeNotFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(`{"success":false,"error":"Not Found"}`))
}

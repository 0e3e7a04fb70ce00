package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"skinstudio/internal/http/handlers"
	"skinstudio/internal/infra"
	"skinstudio/internal/middleware"
)

type Options struct {
	Logger          *infra.Logger
	CORSOrigins     []string
	RateLimitPerMin int
	Country         middleware.CountryLookup
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Country(opts.Country),
		middleware.Logger(*infra.LoggerOrDiscard(opts.Logger)),
		middleware.CORS(opts.CORSOrigins),
	)

	// Health
	r.Get("/v1/healthz", app.Health)

	r.Route("/skin-studio", func(r chi.Router) {
		r.With(middleware.RateLimit(opts.RateLimitPerMin, time.Minute)).Post("/upload", app.Upload)
		r.Get("/status/{imageId}", app.UploadStatus)
		r.Get("/b2-proxy/*", app.B2Proxy)

		r.Route("/enhance", func(r chi.Router) {
			r.Post("/", app.CreateJob)
			r.Get("/status/{jobId}", app.JobStatus)
			r.Get("/result/{jobId}", app.JobResult)
			r.Get("/jobs", app.ListJobs)
			r.Get("/default-config", app.DefaultConfig)
		})
	})

	r.Get("/uploads/{filename}", app.ServeUpload)
	r.Get("/enhanced/{filename}", app.ServeEnhanced)

	return r
}

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/diagnosis/hotel-site/internal/http/middleware"
	mw "github.com/diagnosis/hotel-site/pkg/middleware"
)

const ServiceName = "hotel-site"

// RouterOptions carries the optional protections for the enquiry route.
// A nil RateLimiter or Idempotency store disables that layer.
type RouterOptions struct {
	RateLimiter    *middleware.RateLimiter
	Idempotency    mw.IdempotencyStore
	AllowedOrigins []string
}

func NewRouter(site *SiteHandler, enq *EnquiryHandler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.ServiceName(ServiceName))
	r.Use(mw.Logging)
	r.Use(mw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "Retry-After"},
		MaxAge:         300,
	}))
	r.Use(mw.Health)

	r.Get("/", site.Home)
	r.Get("/static/*", site.Static)

	r.Group(func(r chi.Router) {
		if opts.RateLimiter != nil {
			r.Use(opts.RateLimiter.Middleware())
		}
		if opts.Idempotency != nil {
			r.Use(mw.IdempotencyMiddleware(opts.Idempotency))
		}
		r.Post("/send-enquiry", enq.SendEnquiry)
	})
	r.Post("/validate-enquiry", enq.ValidateEnquiry)

	r.NotFound(site.NotFound)
	r.MethodNotAllowed(site.NotFound)

	return r
}

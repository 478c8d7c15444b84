package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sonic7adarsh/bharatapp/internal/config"
	"github.com/sonic7adarsh/bharatapp/internal/service"
	"github.com/sonic7adarsh/bharatapp/pkg/health"
	pkgmiddleware "github.com/sonic7adarsh/bharatapp/pkg/middleware"
)

const serviceName = "storefront"

// RouterDeps are the collaborators the storefront router serves.
type RouterDeps struct {
	Sessions *service.Sessions
	Notices  Notices
	Validate pkgmiddleware.TokenValidator
	Health   *health.Handler
}

// NewRouter creates a chi router with global middleware, health endpoints,
// and the session-scoped storefront API.
func NewRouter(cfg *config.Config, deps RouterDeps, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(pkgmiddleware.CORS(pkgmiddleware.DefaultCORSConfig(cfg.CORSOrigins)))
	r.Use(pkgmiddleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(pkgmiddleware.RequestLogging(logger))
	r.Use(pkgmiddleware.PrometheusMetrics(serviceName))
	r.Use(pkgmiddleware.Tracing(serviceName))
	r.Use(pkgmiddleware.RequestLogger(logger))

	r.Get("/health/live", deps.Health.LivenessHandler())
	r.Get("/health/ready", deps.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())
	pkgmiddleware.MountDebug(r, cfg.DebugCIDRs, logger)

	cartHandler := NewCartHandler(deps.Notices, logger)
	checkoutHandler := NewCheckoutHandler(deps.Notices, logger)
	bookingHandler := NewBookingHandler(deps.Notices, logger)
	prefsHandler := NewPreferencesHandler(deps.Notices, logger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/", health.MetadataHandler(health.Metadata{
			Name:        serviceName,
			Version:     cfg.AppVersion,
			Environment: cfg.Environment,
			Endpoints: []string{
				"/api/health",
				"/api/v1/cart",
				"/api/v1/checkout",
				"/api/v1/booking",
				"/api/v1/preferences",
			},
		}))
		r.Get("/health", deps.Health.InfoHandler())

		r.Route("/v1", func(r chi.Router) {
			r.Use(pkgmiddleware.NoStore)
			r.Use(pkgmiddleware.OptionalAuth(deps.Validate))
			r.Use(requireSession(deps.Sessions, logger))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartHandler.GetCart)
				r.Delete("/", cartHandler.ClearCart)
				r.Post("/items", cartHandler.AddItem)
				r.Put("/items/{itemId}", cartHandler.UpdateItem)
				r.Delete("/items/{itemId}", cartHandler.RemoveItem)
			})

			r.Route("/checkout", func(r chi.Router) {
				r.Get("/", checkoutHandler.GetCheckout)
				r.Put("/draft", checkoutHandler.UpdateDraft)
				r.With(pkgmiddleware.RateLimit(cfg.SubmitRatePerMinute, cfg.SubmitRateBurst, logger)).
					Post("/submit", checkoutHandler.Submit)
				r.Post("/reset", checkoutHandler.Reset)
			})

			r.Route("/booking", func(r chi.Router) {
				r.Get("/", bookingHandler.GetBooking)
				r.Put("/", bookingHandler.StartBooking)
				r.Put("/dates", bookingHandler.SetDates)
				r.Post("/rooms/{idx}/increment", bookingHandler.IncrementGuests)
				r.Post("/rooms/{idx}/decrement", bookingHandler.DecrementGuests)
				r.Post("/availability", bookingHandler.CheckAvailability)
			})

			r.Get("/preferences", prefsHandler.GetPreferences)
			r.Put("/preferences", prefsHandler.UpdatePreferences)
		})
	})

	return r
}

package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/foodcart/internal/notify"
	"github.com/utafrali/foodcart/internal/session"
	"github.com/utafrali/foodcart/internal/store"
	"github.com/utafrali/foodcart/pkg/health"
	"github.com/utafrali/foodcart/pkg/middleware"
)

// ServiceName labels this server's spans and logs.
const ServiceName = "storefront"

// RouterConfig carries the router's tunables.
type RouterConfig struct {
	CORS           middleware.CORSConfig
	RequestTimeout time.Duration
}

// NewRouter creates a chi router exposing the cart store.
func NewRouter(
	st *store.Store,
	feed *notify.Feed,
	healthHandler *health.Handler,
	logger *slog.Logger,
	cfg RouterConfig,
) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	sessionOf := func(*http.Request) string { return session.Fingerprint(st.Token()) }

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(cfg.RequestTimeout))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics())
	r.Use(middleware.Tracing(ServiceName))
	r.Use(middleware.RequestLogger(logger, sessionOf))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	h := NewStoreHandler(st, feed, logger)

	r.Route("/api/store", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(middleware.CacheControl("no-store"))

		r.Get("/", h.GetSnapshot)

		r.Get("/catalog", h.GetCatalog)
		r.Post("/catalog/refresh", h.RefreshCatalog)

		r.Get("/cart", h.GetCart)
		r.Put("/cart", h.ReplaceCart)
		r.Post("/cart/reload", h.ReloadCart)
		r.Get("/cart/total", h.GetTotal)
		r.Post("/cart/items/{itemId}", h.AddItem)
		r.Delete("/cart/items/{itemId}", h.RemoveItem)

		r.Put("/session", h.SetSession)
		r.Delete("/session", h.ClearSession)

		r.Get("/notifications", h.ListNotifications)
	})

	return r
}

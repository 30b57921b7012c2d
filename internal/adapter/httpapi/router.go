package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/partshub/review-service/internal/middleware"
	"github.com/partshub/review-service/internal/platform/logger"
	"github.com/partshub/review-service/internal/platform/metrics"
)

// NewRouter wires the review routes. Reads are public; anything that writes
// requires a valid bearer token.
func NewRouter(h *ReviewHandler, m *metrics.Manager, jwtSecret string, log *logger.Logger) *chi.Mux {
	mux := chi.NewRouter()

	mux.Use(chimw.RealIP)
	mux.Use(chimw.Recoverer)
	mux.Use(middleware.RequestLogging(log))
	mux.Use(requestLatency(m))

	mux.Get("/healthz", h.HandleHealthz)

	mux.Get("/api/sellers/{sellerId}/reviews", h.HandleGetSellerReviews)
	mux.Get("/api/sellers/{sellerId}/rating", h.HandleGetSellerRating)

	mux.Group(func(r chi.Router) {
		r.Use(middleware.JWTAuth(jwtSecret, log))

		r.Post("/api/sellers/{sellerId}/reviews", h.HandleCreateReview)
		r.Post("/api/reviews/{reviewId}/reply", h.HandleAddReply)
		r.Post("/api/reviews/{reviewId}/report", h.HandleReportReview)
		r.Delete("/api/reviews/{reviewId}", h.HandleDeleteReview)
	})

	return mux
}

func requestLatency(m *metrics.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = r.URL.Path
			}
			m.RequestLatency.WithLabelValues(route).Observe(time.Since(start).Seconds())
		})
	}
}

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/partshub/review-service/internal/platform/logger"
)

// Manager holds custom Prometheus metrics for the review service.
type Manager struct {
	Registry            *prometheus.Registry
	ReviewsCreatedTotal prometheus.Counter
	RepliesTotal        prometheus.Counter
	ReportsTotal        prometheus.Counter
	ReviewDeletesTotal  prometheus.Counter
	APIErrorsTotal      *prometheus.CounterVec
	RequestLatency      *prometheus.HistogramVec
}

// NewManager initializes and registers the service metrics on a dedicated
// registry.
func NewManager(serviceName string) *Manager {
	registry := prometheus.NewRegistry()

	reviewsCreatedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: serviceName,
		Name:      "reviews_created_total",
		Help:      "Total number of reviews created.",
	})
	repliesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: serviceName,
		Name:      "review_replies_total",
		Help:      "Total number of seller replies attached to reviews.",
	})
	reportsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: serviceName,
		Name:      "review_reports_total",
		Help:      "Total number of review moderation reports.",
	})
	reviewDeletesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: serviceName,
		Name:      "review_deletes_total",
		Help:      "Total number of reviews deleted.",
	})
	apiErrorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: serviceName,
		Name:      "api_errors_total",
		Help:      "Total number of API errors by route and error type.",
	}, []string{"route", "error_type"})
	requestLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: serviceName,
		Name:      "api_request_latency_seconds",
		Help:      "Latency of API requests by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	registry.MustRegister(
		reviewsCreatedTotal,
		repliesTotal,
		reportsTotal,
		reviewDeletesTotal,
		apiErrorsTotal,
		requestLatency,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return &Manager{
		Registry:            registry,
		ReviewsCreatedTotal: reviewsCreatedTotal,
		RepliesTotal:        repliesTotal,
		ReportsTotal:        reportsTotal,
		ReviewDeletesTotal:  reviewDeletesTotal,
		APIErrorsTotal:      apiErrorsTotal,
		RequestLatency:      requestLatency,
	}
}

// StartMetricsServer starts an HTTP server exposing the registry on /metrics.
func StartMetricsServer(port string, appLogger *logger.Logger, registry *prometheus.Registry) error {
	if port == "" {
		appLogger.Info("Prometheus metrics server port not configured, server will not start.")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	appLogger.Info("Prometheus metrics server starting", zap.String("port", port), zap.String("path", "/metrics"))

	server := &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}
	return server.ListenAndServe()
}

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orerelay_build_info",
			Help: "Build information of the relay daemon",
		},
		[]string{"version", "commit", "date"},
	)

	InstructionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orerelay_relay_instructions_total",
			Help: "Total number of relay instructions processed",
		},
		[]string{"opcode", "status"},
	)

	CommissionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orerelay_relay_commission_total",
			Help: "Total number of commission collections by outcome",
		},
		[]string{"outcome"},
	)

	CommissionPaid = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orerelay_relay_commission_paid",
			Help: "Total reward units paid out as commission",
		},
	)

	SharesMinted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orerelay_relay_shares_minted",
			Help: "Total pool shares minted",
		},
	)

	SharesBurned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orerelay_relay_shares_burned",
			Help: "Total pool shares burned",
		},
	)

	CollectorScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orerelay_collector_scan_duration_seconds",
			Help:    "Duration of collector scans",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 0.01s to ~41s
		},
	)

	CollectorEscrows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "orerelay_collector_escrows",
			Help: "Number of escrows bound to the relayer at the last scan",
		},
	)

	CollectorCollectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orerelay_collector_collections_total",
			Help: "Total number of collect submissions by outcome",
		},
		[]string{"outcome"},
	)

	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orerelay_server_submissions_total",
			Help: "Total number of transactions submitted over HTTP",
		},
		[]string{"status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orerelay_server_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 0.001s to ~4.1s
		},
		[]string{"route", "status"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "orerelay_server_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Commission outcomes.
const (
	OutcomeCollected        = "collected"
	OutcomeSkipped          = "skipped"
	OutcomeAlreadyCollected = "already_collected"
	OutcomeFailed           = "failed"
)

// Middleware returns a chi middleware that records HTTP metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		HTTPRequestDuration.WithLabelValues(route, strconv.Itoa(ww.Status())).Observe(time.Since(start).Seconds())
	})
}

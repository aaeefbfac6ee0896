package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "depositd",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "depositd",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "depositd",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	verifyOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "depositd",
			Subsystem: "verify",
			Name:      "outcomes_total",
			Help:      "Total deposit verification attempts by outcome.",
		},
		[]string{"outcome"},
	)

	verifyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "depositd",
			Subsystem: "verify",
			Name:      "duration_seconds",
			Help:      "Duration of deposit verification attempts.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
	)

	unclaimedDeposits = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "depositd",
			Subsystem: "reconciler",
			Name:      "unclaimed_deposits",
			Help:      "Deposits observed on chain with no matching ledger record.",
		},
	)

	unclaimedLamports = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "depositd",
			Subsystem: "reconciler",
			Name:      "unclaimed_lamports",
			Help:      "Total lamports of unclaimed on-chain deposits.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		verifyOutcomes,
		verifyDuration,
		unclaimedDeposits,
		unclaimedLamports,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// ObserveVerify records a single verification attempt outcome.
func ObserveVerify(outcome string, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	if duration <= 0 {
		duration = time.Millisecond
	}
	verifyOutcomes.WithLabelValues(outcome).Inc()
	verifyDuration.Observe(duration.Seconds())
}

// SetUnclaimedDeposits records the latest reconciliation sweep totals.
func SetUnclaimedDeposits(count int, lamports uint64) {
	unclaimedDeposits.Set(float64(count))
	unclaimedLamports.Set(float64(lamports))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "deposits" {
		return "/" + parts[0]
	}
	if len(parts) == 1 {
		return "/deposits"
	}
	return "/deposits/" + parts[1]
}

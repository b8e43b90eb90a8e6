package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Shared HTTP metrics.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Authentication flow metrics.
var (
	otpIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_otp_issued_total",
		Help: "One-time passwords issued (first sends and resends).",
	})

	otpVerifyFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_otp_verify_failures_total",
			Help: "Failed OTP verification attempts by reason.",
		},
		[]string{"reason"},
	)

	signInsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_signins_total",
		Help: "Successful password sign-ins.",
	})

	tokenRotationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_token_rotations_total",
		Help: "Access tokens rotated via refresh.",
	})
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		otpIssuedTotal, otpVerifyFailuresTotal, signInsTotal, tokenRotationsTotal,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveOTPIssued increments the issued-OTP counter.
func ObserveOTPIssued() { otpIssuedTotal.Inc() }

// ObserveOTPVerifyFailure records a failed verification with its reason label.
func ObserveOTPVerifyFailure(reason string) {
	otpVerifyFailuresTotal.WithLabelValues(reason).Inc()
}

// ObserveSignIn increments the sign-in counter.
func ObserveSignIn() { signInsTotal.Inc() }

// ObserveTokenRotation increments the rotation counter.
func ObserveTokenRotation() { tokenRotationsTotal.Inc() }

// CanonicalPath normalizes a request path for metric labels: the query string
// is dropped and a trailing slash collapsed. The auth surface has no path
// parameters, so no further rewriting is needed.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}

// Instrument wraps a handler with RPS/latency/in-flight measurements.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code for metric labels.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

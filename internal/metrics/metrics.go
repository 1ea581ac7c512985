package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a registry so several servers (and tests) can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	RequestCounter      *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec
	RecommendationFetch *prometheus.CounterVec
	PlanRequests        *prometheus.CounterVec
	Completed           prometheus.Counter
	OverallPercentage   prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 15, 30},
			},
			[]string{"method", "endpoint"},
		),
		RecommendationFetch: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recommendation_fetch_total",
				Help: "Recommendation generation attempts by outcome",
			},
			[]string{"outcome"},
		),
		PlanRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "business_plan_requests_total",
				Help: "Business plan generation and refinement requests by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		Completed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "assessments_completed_total",
			Help: "Assessments that reached the completed stage",
		}),
		OverallPercentage: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "assessment_overall_percentage",
			Help:    "Overall weighted percentage of completed assessments",
			Buckets: []float64{25, 50, 60, 70, 75, 90, 100},
		}),
	}
	m.registry.MustRegister(
		m.RequestCounter,
		m.RequestDuration,
		m.RecommendationFetch,
		m.PlanRequests,
		m.Completed,
		m.OverallPercentage,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCompletion records one completed assessment.
func (m *Metrics) ObserveCompletion(percentage int) {
	m.Completed.Inc()
	m.OverallPercentage.Observe(float64(percentage))
}

// Middleware counts and times requests. route resolves the templated path
// so label cardinality stays bounded.
func (m *Metrics) Middleware(route func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			endpoint := route(r)
			m.RequestCounter.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
			m.RequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the middleware.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

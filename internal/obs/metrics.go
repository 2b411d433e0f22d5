package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"corrade/internal/pool"
)

// Metrics owns a private registry so several App instances (tests) can
// coexist in one process.
type Metrics struct {
	Registry *prometheus.Registry

	commands      *prometheus.CounterVec
	notifications *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	queueDrops    *prometheus.CounterVec
	poolRejected  *prometheus.CounterVec
	poolPanicked  *prometheus.CounterVec
	rlv           *prometheus.CounterVec

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "corrade_commands_total",
			Help: "Commands by name and outcome.",
		}, []string{"command", "outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "corrade_notifications_total",
			Help: "Notifications enqueued by kind.",
		}, []string{"kind"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "corrade_deliveries_total",
			Help: "Outbound POST attempts by queue and result.",
		}, []string{"queue", "result"}),
		queueDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "corrade_queue_drops_total",
			Help: "Elements dropped because a delivery queue was full.",
		}, []string{"queue"}),
		poolRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "corrade_pool_rejected_total",
			Help: "Tasks dropped because a pool was at its budget.",
		}, []string{"pool"}),
		poolPanicked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "corrade_pool_panics_total",
			Help: "Tasks that panicked.",
		}, []string{"pool"}),
		rlv: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "corrade_rlv_commands_total",
			Help: "Scripted-rule commands by behaviour and outcome.",
		}, []string{"behaviour", "outcome"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.commands, m.notifications, m.deliveries, m.queueDrops,
		m.poolRejected, m.poolPanicked, m.rlv,
		m.httpInFlight, m.httpRequestsTotal, m.httpRequestDuration,
	)
	return m
}

func (m *Metrics) Command(name, outcome string) {
	m.commands.WithLabelValues(name, outcome).Inc()
}

func (m *Metrics) Notification(kind string) {
	m.notifications.WithLabelValues(kind).Inc()
}

func (m *Metrics) Delivery(queue, result string) {
	m.deliveries.WithLabelValues(queue, result).Inc()
}

func (m *Metrics) QueueDropped(queue string) {
	m.queueDrops.WithLabelValues(queue).Inc()
}

func (m *Metrics) RLV(behaviour, outcome string) {
	m.rlv.WithLabelValues(behaviour, outcome).Inc()
}

func (m *Metrics) PoolRejected(kind pool.Kind) {
	m.poolRejected.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) PoolPanicked(kind pool.Kind) {
	m.poolPanicked.WithLabelValues(string(kind)).Inc()
}

// Handler serves the private registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// Instrument measures requests per route pattern. Routes unknown to chi
// are labelled by their raw path.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				path = p
			}
		}
		status := strconv.Itoa(sw.code)
		m.httpRequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	uploadsTotal   *prometheus.CounterVec
	uploadBytes    *prometheus.HistogramVec
	sseSubscribers prometheus.Gauge
	breakerState   *prometheus.GaugeVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scoach",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scoach",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "scoach",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	uploadsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scoach",
			Subsystem: "upload",
			Name:      "calls_total",
			Help:      "Total call uploads by outcome.",
		},
		[]string{"service", "outcome"},
	)
	uploadBytes := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scoach",
			Subsystem: "upload",
			Name:      "bytes",
			Help:      "Distribution of accepted upload sizes in bytes.",
			Buckets:   prometheus.ExponentialBuckets(1<<16, 4, 8),
		},
		[]string{"service"},
	)
	sseSubscribers := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "scoach",
			Subsystem: "status",
			Name:      "sse_subscribers",
			Help:      "Number of open status event streams.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "scoach",
			Subsystem: "breaker",
			Name:      "state",
			Help:      "Circuit breaker state per dependency (0 closed, 1 half-open, 2 open).",
		},
		[]string{"service", "dependency"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		uploadsTotal,
		uploadBytes,
		sseSubscribers,
		breakerState,
	)

	return &HTTPServerMetrics{
		registry:        registry,
		requestTotal:    requestTotal,
		requestDuration: requestDuration,
		requestInFlight: requestInFlight,
		uploadsTotal:    uploadsTotal,
		uploadBytes:     uploadBytes,
		sseSubscribers:  sseSubscribers,
		breakerState:    breakerState,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	if !strings.HasPrefix(path, "/v1/calls/") {
		return path
	}
	rest := strings.TrimPrefix(path, "/v1/calls/")
	if _, sub, found := strings.Cut(rest, "/"); found {
		return "/v1/calls/{call_id}/" + sub
	}
	return "/v1/calls/{call_id}"
}

func (m *HTTPServerMetrics) RecordUpload(service string, sizeBytes int64, err error) {
	outcome := "accepted"
	if err != nil {
		outcome = "rejected"
	}
	m.uploadsTotal.WithLabelValues(service, outcome).Inc()
	if err == nil && sizeBytes > 0 {
		m.uploadBytes.WithLabelValues(service).Observe(float64(sizeBytes))
	}
}

func (m *HTTPServerMetrics) SSESubscriberOpened() { m.sseSubscribers.Inc() }
func (m *HTTPServerMetrics) SSESubscriberClosed() { m.sseSubscribers.Dec() }

func (m *HTTPServerMetrics) SetBreakerState(service, dependency string, state float64) {
	m.breakerState.WithLabelValues(service, dependency).Set(state)
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}

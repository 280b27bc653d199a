package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	processTotal     *prometheus.CounterVec
	processDuration  *prometheus.HistogramVec
	processInFlight  prometheus.Gauge
	queueLag         *prometheus.HistogramVec
	transitionsTotal *prometheus.CounterVec
	breakerState     *prometheus.GaugeVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scoach",
			Subsystem: "worker",
			Name:      "call_process_total",
			Help:      "Total processed calls by outcome.",
		},
		[]string{"service", "status"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scoach",
			Subsystem: "worker",
			Name:      "call_process_duration_seconds",
			Help:      "Call processing duration in seconds by outcome.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "scoach",
			Subsystem: "worker",
			Name:      "call_process_in_flight",
			Help:      "Number of in-flight call processing tasks.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scoach",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between call upload and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	transitionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scoach",
			Subsystem: "worker",
			Name:      "status_transitions_total",
			Help:      "Total persisted call status transitions.",
		},
		[]string{"service", "to_status"},
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

	registry.MustRegister(processTotal, processDuration, processInFlight, queueLag, transitionsTotal, breakerState)

	return &WorkerMetrics{
		registry:         registry,
		processTotal:     processTotal,
		processDuration:  processDuration,
		processInFlight:  processInFlight,
		queueLag:         queueLag,
		transitionsTotal: transitionsTotal,
		breakerState:     breakerState,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartCall() {
	m.processInFlight.Inc()
}

func (m *WorkerMetrics) FinishCall(service string, duration time.Duration, err error) {
	m.processInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.processTotal.WithLabelValues(service, status).Inc()
	m.processDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}

func (m *WorkerMetrics) RecordTransition(service, toStatus string) {
	m.transitionsTotal.WithLabelValues(service, toStatus).Inc()
}

func (m *WorkerMetrics) SetBreakerState(service, dependency string, state float64) {
	m.breakerState.WithLabelValues(service, dependency).Set(state)
}

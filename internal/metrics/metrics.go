package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"

	"github.com/i474232898/dam-monitoring/internal/dam"
)

// Metrics owns a private registry so several instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	readingsIngested   *prometheus.CounterVec
	damStatus          *prometheus.GaugeVec
	predictionRequests *prometheus.CounterVec
	predictionDuration prometheus.Histogram
	breakerState       *prometheus.GaugeVec
	serviceUp          prometheus.Gauge
	httpRequestsTotal  *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		readingsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dam_readings_ingested_total",
			Help: "Readings submitted for ingestion by dam and outcome.",
		}, []string{"dam", "outcome"}),
		damStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dam_status",
			Help: "Current dam status (0 normal, 1 warning, 2 critical).",
		}, []string{"dam"}),
		predictionRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prediction_requests_total",
			Help: "Prediction gateway calls by outcome.",
		}, []string{"outcome"}),
		predictionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_request_duration_seconds",
			Help:    "Histogram of prediction gateway call durations.",
			Buckets: prometheus.DefBuckets,
		}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "prediction_breaker_state",
			Help: "Circuit breaker state gauge (0 closed, 1 half, 2 open).",
		}, []string{"name"}),
		serviceUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "prediction_service_up",
			Help: "1 when the last prediction service health probe succeeded.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.readingsIngested,
		m.damStatus,
		m.predictionRequests,
		m.predictionDuration,
		m.breakerState,
		m.serviceUp,
		m.httpRequestsTotal,
		m.httpDuration,
	)

	m.breakerState.WithLabelValues("prediction").Set(0)

	return m
}

var _ dam.Recorder = (*Metrics)(nil)

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveIngest implements dam.Recorder.
func (m *Metrics) ObserveIngest(damID, status, outcome string) {
	if m == nil {
		return
	}
	m.readingsIngested.WithLabelValues(damID, outcome).Inc()
	if status != "" {
		m.damStatus.WithLabelValues(damID).Set(float64(dam.Status(status).Severity()))
	}
}

// SetDamStatus records a status without counting an ingestion. It implements
// dam.Recorder.
func (m *Metrics) SetDamStatus(damID string, status dam.Status) {
	if m == nil {
		return
	}
	m.damStatus.WithLabelValues(damID).Set(float64(status.Severity()))
}

// ObservePrediction implements prediction.Observer.
func (m *Metrics) ObservePrediction(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.predictionRequests.WithLabelValues(outcome).Inc()
	m.predictionDuration.Observe(elapsed.Seconds())
}

// ObserveBreakerState implements prediction.Observer.
func (m *Metrics) ObserveBreakerState(name string, state gobreaker.State) {
	if m == nil {
		return
	}
	var v float64
	switch state {
	case gobreaker.StateHalfOpen:
		v = 1
	case gobreaker.StateOpen:
		v = 2
	}
	m.breakerState.WithLabelValues(name).Set(v)
}

// SetServiceUp records the result of a prediction service health probe.
func (m *Metrics) SetServiceUp(up bool) {
	if m == nil {
		return
	}
	if up {
		m.serviceUp.Set(1)
		return
	}
	m.serviceUp.Set(0)
}

// Middleware counts requests by their matched route pattern.
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		route := c.Route().Path
		m.httpRequestsTotal.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		return err
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

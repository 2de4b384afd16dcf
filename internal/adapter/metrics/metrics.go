// Package metrics exposes protocol counters and HTTP request metrics to
// Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"yield-bnpl/internal/core/domain"
	"yield-bnpl/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Protocol implements ports.ProtocolMetrics on a private registry.
type Protocol struct {
	registry        *prometheus.Registry
	operations      *prometheus.CounterVec
	settled         *prometheus.CounterVec
	completions     prometheus.Counter
	openObligations prometheus.Gauge
	totalStaked     prometheus.Gauge
	requests        *prometheus.CounterVec
	durations       *prometheus.HistogramVec
}

// NewProtocol creates the collectors under namespace and registers them.
func NewProtocol(namespace string) *Protocol {
	if namespace == "" {
		namespace = "bnpl"
	}
	m := &Protocol{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Protocol operations by name and result code.",
		}, []string{"operation", "code"}),
		settled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settled_amount_total",
			Help:      "Amount paid to merchants by settlement mode.",
		}, []string{"mode"}),
		completions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "obligations_completed_total",
			Help:      "Obligations that reached COMPLETED.",
		}),
		openObligations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_obligations",
			Help:      "Open obligations as of the last committed write.",
		}),
		totalStaked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "total_staked",
			Help:      "Principal staked into the reserve.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	m.registry.MustRegister(
		m.operations,
		m.settled,
		m.completions,
		m.openObligations,
		m.totalStaked,
		m.requests,
		m.durations,
		prometheus.NewGoCollector(),
	)
	return m
}

// ObserveOperation counts one operation outcome. Successful calls are
// labeled "OK"; failures carry their error code.
func (m *Protocol) ObserveOperation(operation string, err error) {
	m.operations.WithLabelValues(operation, resultCode(err)).Inc()
}

func (m *Protocol) ObserveSettlement(mode domain.SettlementMode, paid int64, completed bool) {
	m.settled.WithLabelValues(string(mode)).Add(float64(paid))
	if completed {
		m.completions.Inc()
	}
}

func (m *Protocol) SetOpenObligations(n int64) { m.openObligations.Set(float64(n)) }

func (m *Protocol) SetTotalStaked(n int64) { m.totalStaked.Set(float64(n)) }

// Handler serves the registry in the Prometheus exposition format.
func (m *Protocol) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency by route template.
func (m *Protocol) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.durations.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

func resultCode(err error) string {
	if err == nil {
		return "OK"
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// Nop discards all observations.
type Nop struct{}

func (Nop) ObserveOperation(string, error)                       {}
func (Nop) ObserveSettlement(domain.SettlementMode, int64, bool) {}
func (Nop) SetOpenObligations(int64)                             {}
func (Nop) SetTotalStaked(int64)                                 {}

package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds the HTTP-level Prometheus metrics. Each server carries
// its own registry so parallel test servers never collide on
// registration.
type Metrics struct {
	registry *prometheus.Registry
	logger   *zap.Logger

	requestsTotal *prometheus.CounterVec
	requestDur    *prometheus.HistogramVec
	inFlight      prometheus.Gauge
}

// NewMetrics creates the metric set on a fresh registry.
func NewMetrics(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		logger:   logger,
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docqd_http_requests_total",
			Help: "Total HTTP requests by method, route, and status code.",
		}, []string{"method", "route", "status"}),
		requestDur: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docqd_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds by method and route.",
			Buckets: []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"method", "route"}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "docqd_http_in_flight_requests",
			Help: "Number of HTTP requests currently being served.",
		}),
	}
}

// Middleware records request count, duration, and in-flight gauge.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			m.inFlight.Inc()

			err := next(c)

			m.inFlight.Dec()
			route := c.Path()
			if route == "" {
				route = "/"
			}
			method := c.Request().Method
			status := strconv.Itoa(responseStatus(c, err))

			m.requestsTotal.WithLabelValues(method, route, status).Inc()
			m.requestDur.WithLabelValues(method, route).Observe(time.Since(start).Seconds())

			return err
		}
	}
}

// responseStatus reports the status a request will be served with.
// Handler errors are committed by echo's error handler only after the
// middleware chain returns, so the response status still reads 200 at
// that point and the status must come from the error itself.
func responseStatus(c echo.Context, err error) int {
	if err == nil {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

package echoapi

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsPath = "/metrics"

// httpMetrics holds the prometheus collectors of the HTTP server.
type httpMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

func newHTTPMetrics(reg prometheus.Registerer) (*httpMetrics, error) {
	m := &httpMetrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests processed.",
			},
			[]string{"method", "path", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests being served.",
		}),
	}

	for _, c := range []prometheus.Collector{m.requests, m.duration, m.inFlight} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "registering http metrics")
		}
	}
	return m, nil
}

// middleware records every request but the metrics scrapes. Errors are handled here so that
// the final status is known.
func (m *httpMetrics) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if ctx.Request().URL.Path == metricsPath {
				return next(ctx)
			}

			m.inFlight.Inc()
			defer m.inFlight.Dec()
			start := time.Now()

			if err := next(ctx); err != nil {
				ctx.Error(err)
			}

			path := ctx.Path() // route pattern, eg: /api/users/:id
			if path == "" {
				path = "unmatched"
			}
			method := ctx.Request().Method
			m.requests.WithLabelValues(method, path, strconv.Itoa(ctx.Response().Status)).Inc()
			m.duration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

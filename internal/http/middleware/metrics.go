// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file exports the HTTP series scraped from /metrics:
//
//	hr_http_requests_total{method,route,status}
//	hr_http_request_duration_seconds{method,route}
//	hr_http_requests_inflight
//	hr_http_response_size_bytes{method,route}
//	hr_http_rate_limited_total{limiter}
//
// route is the registered pattern (/api/v1/units/:id/history), never the raw
// URL, and requests that match no route share the "unmatched" label.
// Domain counters (unit mutations, assistant outcomes) live in the
// observability package.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// UnmatchedRoute labels requests that hit no registered route.
const UnmatchedRoute = "unmatched"

const (
	metricsNamespace = "hr"
	metricsSubsystem = "http"
)

var (
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	// Buckets reach 30s: POST /chat waits on the completion API.
	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"method", "route"})

	httpInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "requests_inflight",
		Help:      "HTTP requests currently being served.",
	})

	// Up to 4 MiB: SVG diagrams of large subtrees.
	httpRespSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "response_size_bytes",
		Help:      "HTTP response body size in bytes.",
		Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
	}, []string{"method", "route"})

	rateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "rate_limited_total",
		Help:      "Requests rejected with 429 by limiter.",
	}, []string{"limiter"})
)

func init() {
	prometheus.MustRegister(httpRequests, httpDuration, httpInflight, httpRespSize, rateLimited)
}

// routeLabel is the matched route pattern or UnmatchedRoute.
func routeLabel(c *gin.Context) string {
	if r := c.FullPath(); r != "" {
		return r
	}
	return UnmatchedRoute
}

// Metrics records the hr_http_* series for every request passing through.
// Bodiless responses (Gin reports size -1) are not observed for size.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		method, route := c.Request.Method, routeLabel(c)
		httpRequests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		if n := c.Writer.Size(); n >= 0 {
			httpRespSize.WithLabelValues(method, route).Observe(float64(n))
		}
	}
}

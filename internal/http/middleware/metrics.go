// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file holds the HTTP Prometheus collectors. Labels use the matched Gin
// route (e.g. /api/v1/cart/items/:productId) so cardinality stays bounded;
// unmatched requests are labelled "unmatched". WebSocket upgrades are tracked
// as streams rather than requests because their lifetime is the connection's.
package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	// status is omitted to keep the histogram small.
	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	httpRespSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_response_size_bytes",
			Help: "Size of HTTP responses in bytes.",
			Buckets: []float64{
				200, 500, 1 << 10, 5 << 10, 25 << 10,
				100 << 10, 500 << 10, 1 << 20, 5 << 20,
			},
		},
		[]string{"method", "path"},
	)

	httpRateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		},
		[]string{"path"},
	)

	wsStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_websocket_streams",
			Help: "Open WebSocket event streams.",
		},
	)

	wsStreamDur = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "http_websocket_stream_duration_seconds",
			Help:    "Lifetime of WebSocket event streams.",
			Buckets: []float64{1, 10, 60, 300, 900, 1800, 3600, 4 * 3600},
		},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpRespSize, httpRateLimited, wsStreams, wsStreamDur)
}

// isWebSocketUpgrade reports whether the request asks to switch to WebSocket.
func isWebSocketUpgrade(c *gin.Context) bool {
	return strings.EqualFold(c.GetHeader("Upgrade"), "websocket")
}

// routeLabel returns the matched route or "unmatched".
func routeLabel(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return "unmatched"
}

// Metrics instruments requests. Mount /metrics with promhttp next to it.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		if isWebSocketUpgrade(c) {
			wsStreams.Inc()
			defer func() {
				wsStreams.Dec()
				wsStreamDur.Observe(time.Since(start).Seconds())
			}()
			c.Next()
			httpReqs.WithLabelValues(c.Request.Method, routeLabel(c), strconv.Itoa(c.Writer.Status())).Inc()
			return
		}

		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		method, path := c.Request.Method, routeLabel(c)
		httpReqs.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpLat.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		if size := c.Writer.Size(); size >= 0 {
			httpRespSize.WithLabelValues(method, path).Observe(float64(size))
		}
	}
}

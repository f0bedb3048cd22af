// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	WsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "adoptchat_ws_connections",
		Help: "Current number of live websocket connections",
	})
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "adoptchat_messages_total",
		Help: "Messages appended to room logs",
	}, []string{"kind"})
	DispatchFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "adoptchat_dispatch_failures_total",
		Help: "System message dispatch steps that failed and were dropped",
	}, []string{"stage"})
	NotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "adoptchat_notifications_total",
		Help: "Notification routing outcomes",
	}, []string{"channel", "outcome"})
	UnreadRecomputeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "adoptchat_unread_recompute_seconds",
		Help:    "Time spent recomputing unread counts from the message log",
		Buckets: prometheus.DefBuckets,
	})
	HttpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HttpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(
		WsConnections,
		MessagesTotal,
		DispatchFailures,
		NotificationsTotal,
		UnreadRecomputeDuration,
		HttpRequestsTotal,
		HttpRequestDuration,
	)
}

// GinMiddleware records request counts and latency per route.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		labels := prometheus.Labels{
			"method": c.Request.Method,
			"path":   path,
			"status": strconv.Itoa(c.Writer.Status()),
		}
		HttpRequestsTotal.With(labels).Inc()
		HttpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}

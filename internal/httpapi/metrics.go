package httpapi

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	rosterMembersTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "roster_members_total",
		Help: "Number of members in the directory.",
	})

	rosterRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roster_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	rosterRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "roster_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	rosterProfileUpdatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roster_profile_updates_total",
		Help: "Total successful profile updates.",
	})

	rosterPictureOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roster_picture_operations_total",
		Help: "Picture uploads and deletes by result.",
	}, []string{"op", "result"})

	rosterCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roster_roster_cache_total",
		Help: "Roster cache lookups by result.",
	}, []string{"result"})

	rosterDependencyChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roster_dependency_checks_total",
		Help: "Dependency health probes by dependency and result.",
	}, []string{"dependency", "result"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		rosterRequestsTotal.WithLabelValues(method, path, status).Inc()
		rosterRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordProfileEvent records a profile service event. It matches
// profiles.MetricsRecordFunc.
func RecordProfileEvent(event string) {
	switch event {
	case "member_created":
		rosterMembersTotal.Inc()
	case "profile_updated":
		rosterProfileUpdatesTotal.Inc()
	case "roster_cache_hit":
		rosterCacheTotal.WithLabelValues("hit").Inc()
	case "roster_cache_miss":
		rosterCacheTotal.WithLabelValues("miss").Inc()
	}
}

// RecordPictureOperation records a picture upload or delete. It matches
// pictures.MetricsRecordFunc.
func RecordPictureOperation(op string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	rosterPictureOpsTotal.WithLabelValues(op, result).Inc()
}

// RecordDependencyCheck records a dependency probe result. It matches
// health.MetricsRecordFunc.
func RecordDependencyCheck(dependency string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	rosterDependencyChecksTotal.WithLabelValues(dependency, result).Inc()
}

// SetMembersGauge sets the member count gauge.
func SetMembersGauge(count int) {
	rosterMembersTotal.Set(float64(count))
}

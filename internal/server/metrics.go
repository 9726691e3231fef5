package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "carevoice"

// serverMetrics holds the Prometheus instruments for the HTTP server and the
// engine operations it fronts.
type serverMetrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
	retrievalsTotal     *prometheus.CounterVec
	retrievalDuration   prometheus.Histogram
	conversationsStored prometheus.Counter
	feedbackTotal       *prometheus.CounterVec
	promotionsTotal     prometheus.Counter
}

func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)
	return &serverMetrics{
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, path and status code.",
		}, []string{"method", "path", "code"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by path.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path"}),
		retrievalsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "retrieval",
			Name:      "requests_total",
			Help:      "Retrieval requests by search mode and outcome.",
		}, []string{"mode", "outcome"}),
		retrievalDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "End-to-end retrieval latency, embedding included.",
			Buckets:   prometheus.DefBuckets,
		}),
		conversationsStored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "learning",
			Name:      "conversations_stored_total",
			Help:      "Conversations recorded in the learning index.",
		}),
		feedbackTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "learning",
			Name:      "feedback_total",
			Help:      "Feedback updates by value.",
		}, []string{"feedback"}),
		promotionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "learning",
			Name:      "promotions_total",
			Help:      "Conversations promoted into the knowledge base.",
		}),
	}
}

// instrument wraps next with request counting and latency observation.
// The path label uses the matched route pattern, not the raw URL, so
// per-conversation routes do not explode label cardinality.
func (m *serverMetrics) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		m.httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.status)).Inc()
		m.httpDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	})
}

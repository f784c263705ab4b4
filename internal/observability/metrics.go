package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	activeSessions       prometheus.Gauge
	sessionsCreatedTotal prometheus.Counter
	sessionsEvictedTotal *prometheus.CounterVec

	classificationsTotal   *prometheus.CounterVec
	classificationDuration prometheus.Histogram

	agentRepliesTotal  *prometheus.CounterVec
	agentReplyDuration *prometheus.HistogramVec

	chatRequestsTotal   *prometheus.CounterVec
	chatRequestDuration prometheus.Histogram
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "active_sessions",
					Help: "Current active session count.",
				},
			),
			sessionsCreatedTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "sessions_created_total",
					Help: "Total sessions created.",
				},
			),
			sessionsEvictedTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sessions_evicted_total",
					Help: "Total sessions evicted by reason.",
				},
				[]string{"reason"},
			),
			classificationsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "classifications_total",
					Help: "Total message classifications by course.",
				},
				[]string{"course"},
			),
			classificationDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "classification_duration_seconds",
					Help:    "Classification call duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			agentRepliesTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agent_replies_total",
					Help: "Total tutor replies by agent and status.",
				},
				[]string{"agent", "status"},
			),
			agentReplyDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "agent_reply_duration_seconds",
					Help:    "Tutor reply duration in seconds by agent.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"agent"},
			),
			chatRequestsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "chat_requests_total",
					Help: "Total chat requests by status.",
				},
				[]string{"status"},
			),
			chatRequestDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "chat_request_duration_seconds",
					Help:    "End-to-end chat request duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
		}

		prometheus.MustRegister(
			m.activeSessions,
			m.sessionsCreatedTotal,
			m.sessionsEvictedTotal,
			m.classificationsTotal,
			m.classificationDuration,
			m.agentRepliesTotal,
			m.agentReplyDuration,
			m.chatRequestsTotal,
			m.chatRequestDuration,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func SetActiveSessions(count int) {
	m := getMetrics()
	m.activeSessions.Set(float64(count))
}

func RecordSessionCreated() {
	m := getMetrics()
	m.sessionsCreatedTotal.Inc()
}

func RecordSessionEvicted(reason string) {
	m := getMetrics()
	m.sessionsEvictedTotal.WithLabelValues(reason).Inc()
}

func RecordClassification(course string, duration time.Duration) {
	m := getMetrics()
	m.classificationsTotal.WithLabelValues(course).Inc()
	m.classificationDuration.Observe(duration.Seconds())
}

func RecordAgentReply(agent string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.agentRepliesTotal.WithLabelValues(agent, status).Inc()
	m.agentReplyDuration.WithLabelValues(agent).Observe(duration.Seconds())
}

func RecordChatRequest(duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.chatRequestsTotal.WithLabelValues(status).Inc()
	m.chatRequestDuration.Observe(duration.Seconds())
}

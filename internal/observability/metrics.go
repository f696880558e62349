package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce            sync.Once
	httpRequestsTotal       *prometheus.CounterVec
	httpLatencySeconds      *prometheus.HistogramVec
	httpErrorsTotal         *prometheus.CounterVec
	lifecycleTransitions    *prometheus.CounterVec
	submissionsTotal        *prometheus.CounterVec
	gradesTotal             *prometheus.CounterVec
	eventsPublishedTotal    *prometheus.CounterVec
	eventSubscribersActive  prometheus.Gauge
	statsCacheLookupsTotal  *prometheus.CounterVec
	notificationsCreatedTot *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors exposed by the portal.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "portal_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		lifecycleTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_assignment_transitions_total",
			Help: "Assignment lifecycle transitions by target state.",
		}, []string{"transition"})

		submissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_submissions_total",
			Help: "Submission attempts by outcome.",
		}, []string{"outcome"})

		gradesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_grades_total",
			Help: "Grading calls by outcome.",
		}, []string{"outcome"})

		eventsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_events_published_total",
			Help: "Lifecycle events published on the event bus.",
		}, []string{"type", "source"})

		eventSubscribersActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portal_event_subscribers_active",
			Help: "Currently connected event stream subscribers.",
		})

		statsCacheLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_stats_cache_lookups_total",
			Help: "Statistics cache lookups by result.",
		}, []string{"view", "result"})

		notificationsCreatedTot = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_notifications_created_total",
			Help: "Notifications stored per type.",
		}, []string{"type"})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			lifecycleTransitions,
			submissionsTotal,
			gradesTotal,
			eventsPublishedTotal,
			eventSubscribersActive,
			statsCacheLookupsTotal,
			notificationsCreatedTot,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// LifecycleTransitions counts archive, restore and delete operations.
func LifecycleTransitions() *prometheus.CounterVec {
	RegisterMetrics()
	return lifecycleTransitions
}

// Submissions counts submit outcomes (created, existing, rejected).
func Submissions() *prometheus.CounterVec {
	RegisterMetrics()
	return submissionsTotal
}

// Grades counts grading outcomes.
func Grades() *prometheus.CounterVec {
	RegisterMetrics()
	return gradesTotal
}

// EventsPublished counts events fanned out locally or received from the bridge.
func EventsPublished() *prometheus.CounterVec {
	RegisterMetrics()
	return eventsPublishedTotal
}

// EventSubscribers tracks connected stream clients.
func EventSubscribers() prometheus.Gauge {
	RegisterMetrics()
	return eventSubscribersActive
}

// StatsCacheLookups counts hits and misses of the statistics cache.
func StatsCacheLookups() *prometheus.CounterVec {
	RegisterMetrics()
	return statsCacheLookupsTotal
}

// NotificationsCreated counts stored notifications.
func NotificationsCreated() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsCreatedTot
}

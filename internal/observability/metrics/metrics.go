package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bizdesk_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bizdesk_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	invoiceTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bizdesk_invoice_transitions_total",
		Help: "Invoice lifecycle transitions by target status",
	}, []string{"status"})

	subscriptionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bizdesk_subscription_transitions_total",
		Help: "Organization subscription transitions by target status",
	}, []string{"status"})

	storageOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bizdesk_storage_operations_total",
		Help: "Object storage operations by operation and result",
	}, []string{"operation", "result"})

	workerRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bizdesk_worker_sweeps_total",
		Help: "Background sweep runs by sweep and result",
	}, []string{"sweep", "result"})

	workerAffected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bizdesk_worker_rows_affected_total",
		Help: "Rows changed by background sweeps",
	}, []string{"sweep"})

	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bizdesk_events_published_total",
		Help: "Organization events published by type and result",
	}, []string{"type", "result"})

	websocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bizdesk_websocket_clients",
		Help: "Connected organization event stream clients",
	})

	dashboardCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bizdesk_dashboard_cache_total",
		Help: "Dashboard cache lookups by result",
	}, []string{"result"})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, route, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

// ObserveInvoiceTransition counts an invoice entering status
func ObserveInvoiceTransition(status string) {
	invoiceTransitions.WithLabelValues(status).Inc()
}

// ObserveSubscriptionTransition counts an organization entering status
func ObserveSubscriptionTransition(status string) {
	subscriptionTransitions.WithLabelValues(status).Inc()
}

// ObserveStorage counts an object storage call
func ObserveStorage(operation string, err error) {
	storageOperations.WithLabelValues(operation, result(err)).Inc()
}

// ObserveSweep records one worker sweep and the rows it changed
func ObserveSweep(sweep string, affected int, err error) {
	workerRuns.WithLabelValues(sweep, result(err)).Inc()
	if affected > 0 {
		workerAffected.WithLabelValues(sweep).Add(float64(affected))
	}
}

// ObserveEvent counts a published organization event
func ObserveEvent(eventType string, err error) {
	eventsPublished.WithLabelValues(eventType, result(err)).Inc()
}

// WebsocketConnected tracks stream clients
func WebsocketConnected() { websocketClients.Inc() }

// WebsocketDisconnected tracks stream clients
func WebsocketDisconnected() { websocketClients.Dec() }

// ObserveDashboardCache counts a dashboard cache hit or miss
func ObserveDashboardCache(hit bool) {
	if hit {
		dashboardCache.WithLabelValues("hit").Inc()
		return
	}
	dashboardCache.WithLabelValues("miss").Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

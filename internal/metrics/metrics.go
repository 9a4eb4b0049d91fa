package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// EventsIngested counts normalized events by category
	EventsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "events_ingested_total", Help: "Normalized events by category."},
		[]string{"category"},
	)
	// EventsDropped counts raw records the normalizer had to skip
	EventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "events_dropped_total", Help: "Raw event records dropped as malformed."},
	)
	// PushRefetches counts push-triggered refetches by outcome
	PushRefetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "push_refetches_total", Help: "Push-triggered refetches by outcome."},
		[]string{"outcome"},
	)
	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to the registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(EventsIngested)
		Registry.MustRegister(EventsDropped)
		Registry.MustRegister(PushRefetches)
		Registry.MustRegister(WebhookDeliveries)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once

// Package metrics holds the Prometheus collectors of the bioprotocol service.
//
// Collectors are registered on the default registry at package initialization; the API server
// exposes them on /metrics through Handler.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bioprotocol"

// Ingest item outcomes.
const (
	OutcomeSuccessful      = "successful"
	OutcomeProcessingError = "processing_error"
	OutcomeValidationError = "validation_error"
)

// Listener event outcomes.
const (
	EventDelivered   = "delivered"
	EventSkipped     = "skipped"
	EventIgnored     = "ignored"
	EventUnparseable = "unparseable"
	EventFailed      = "failed"
)

var (
	ingestItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "items_total",
		Help:      "Partner protocol rows processed, by outcome",
	}, []string{"outcome"})

	ingestBatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "batch_duration_seconds",
		Help:      "Time to normalize, validate and store one partner batch",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})

	listenerEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "listener",
		Name:      "events_total",
		Help:      "Article update events consumed, by outcome",
	}, []string{"outcome"})

	outboundRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "client",
		Name:      "requests_total",
		Help:      "Outbound HTTP requests to the publisher and partner, by target and status code",
	}, []string{"target", "code"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Inbound HTTP requests, by route and status code",
	}, []string{"route", "code"})
)

// IngestRecorder records ingest pipeline outcomes.
type IngestRecorder struct{}

// NewIngestRecorder returns a recorder backed by the package collectors.
func NewIngestRecorder() *IngestRecorder {
	return &IngestRecorder{}
}

// RecordItem counts one processed row.
func (IngestRecorder) RecordItem(outcome string) {
	ingestItems.WithLabelValues(outcome).Inc()
}

// RecordBatch observes the duration of one batch.
func (IngestRecorder) RecordBatch(duration time.Duration) {
	ingestBatchDuration.Observe(duration.Seconds())
}

// RecordEvent counts one consumed queue event.
func RecordEvent(outcome string) {
	listenerEvents.WithLabelValues(outcome).Inc()
}

// RecordOutbound counts one outbound request. A code of 0 means the request never got a response.
func RecordOutbound(target string, code int) {
	outboundRequests.WithLabelValues(target, strconv.Itoa(code)).Inc()
}

// RecordHTTPRequest counts one inbound request.
func RecordHTTPRequest(route string, code int) {
	httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// Handler serves the default registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

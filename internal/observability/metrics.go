package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	apiRequestsTotal  *prometheus.CounterVec
	apiLatencySeconds *prometheus.HistogramVec
	apiErrorsTotal    *prometheus.CounterVec

	messagesCreatedTotal    *prometheus.CounterVec
	messageRejectionsTotal  *prometheus.CounterVec
	moderationOutcomesTotal *prometheus.CounterVec
	moderationLatency       prometheus.Histogram
	liveViewers             prometheus.Gauge
	broadcastFramesTotal    *prometheus.CounterVec
	domainEventsTotal       *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the API and the guidance engine.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guidance_api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "guidance_api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guidance_api_errors_total",
			Help: "Total number of error responses returned by API endpoints.",
		}, []string{"method", "route", "status"})

		messagesCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guidance_messages_created_total",
			Help: "Guidance messages persisted, by kind (question or reply).",
		}, []string{"kind"})

		messageRejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guidance_message_rejections_total",
			Help: "Guidance message submissions refused before persistence, by reason.",
		}, []string{"reason"})

		moderationOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guidance_moderation_outcomes_total",
			Help: "Moderation gate outcomes by verdict and source.",
		}, []string{"outcome", "source"})

		moderationLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "guidance_moderation_latency_seconds",
			Help:    "Time spent in the moderation gate including cache lookups.",
			Buckets: []float64{0.005, 0.05, 0.25, 0.5, 1, 2.5, 5, 10},
		})

		liveViewers = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "guidance_live_viewers",
			Help: "Number of websocket viewers currently registered with the broadcast hub.",
		})

		broadcastFramesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guidance_broadcast_frames_total",
			Help: "Broadcast frames handed to viewers, by result (sent, dropped, skipped).",
		}, []string{"result"})

		domainEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guidance_domain_events_total",
			Help: "Domain events published to the message bus, by result.",
		}, []string{"subject", "result"})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			messagesCreatedTotal,
			messageRejectionsTotal,
			moderationOutcomesTotal,
			moderationLatency,
			liveViewers,
			broadcastFramesTotal,
			domainEventsTotal,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// MessagesCreated exposes the counter of persisted guidance messages.
func MessagesCreated() *prometheus.CounterVec {
	RegisterMetrics()
	return messagesCreatedTotal
}

// MessageRejections exposes the counter of refused submissions.
func MessageRejections() *prometheus.CounterVec {
	RegisterMetrics()
	return messageRejectionsTotal
}

// ModerationOutcomes exposes the counter of moderation verdicts.
func ModerationOutcomes() *prometheus.CounterVec {
	RegisterMetrics()
	return moderationOutcomesTotal
}

// ModerationLatency exposes the moderation latency histogram.
func ModerationLatency() prometheus.Histogram {
	RegisterMetrics()
	return moderationLatency
}

// LiveViewers exposes the registered viewers gauge.
func LiveViewers() prometheus.Gauge {
	RegisterMetrics()
	return liveViewers
}

// BroadcastFrames exposes the broadcast frame counter.
func BroadcastFrames() *prometheus.CounterVec {
	RegisterMetrics()
	return broadcastFramesTotal
}

// DomainEvents exposes the domain event publish counter.
func DomainEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return domainEventsTotal
}

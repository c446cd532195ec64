package observability

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	scrapeMaxInFlight = 4
	scrapeTimeout     = 5 * time.Second
)

// MetricsHandler serves the default registry. A collector that fails is reported in the scrape
// instead of failing it, so one broken series never hides the guidance metrics.
func MetricsHandler() fiber.Handler {
	RegisterMetrics()

	handler := promhttp.InstrumentMetricHandler(
		prometheus.DefaultRegisterer,
		promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
			ErrorHandling:       promhttp.ContinueOnError,
			MaxRequestsInFlight: scrapeMaxInFlight,
			Timeout:             scrapeTimeout,
		}),
	)
	return adaptor.HTTPHandler(handler)
}

// ObserveRequest records one API request against the route template.
func ObserveRequest(method, route string, status int, duration time.Duration) {
	statusLabel := strconv.Itoa(status)

	APIRequests().WithLabelValues(method, route, statusLabel).Inc()
	APILatency().WithLabelValues(method, route).Observe(duration.Seconds())
	if status >= fiber.StatusBadRequest {
		APIErrors().WithLabelValues(method, route, statusLabel).Inc()
	}
}

// Package metrics exposes Prometheus collectors for the idle monitor, the
// session API and the event broker.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "worktrack"

// Collector records worktrack metrics. It satisfies monitor.Recorder.
type Collector struct {
	ticks                *prometheus.CounterVec
	tickDuration         prometheus.Histogram
	ticksSkipped         prometheus.Counter
	idleWarnings         prometheus.Counter
	autoStops            prometheus.Counter
	notificationFailures *prometheus.CounterVec
	sessionStarts        *prometheus.CounterVec
	httpRequests         *prometheus.CounterVec
	httpLatency          *prometheus.HistogramVec
	registerer           prometheus.Registerer
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "idle_ticks_total",
			Help:      "Idle monitor ticks by result.",
		}, []string{"result"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "idle_tick_duration_seconds",
			Help:      "Duration of idle monitor ticks.",
			Buckets:   prometheus.DefBuckets,
		}),
		ticksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "idle_ticks_skipped_total",
			Help:      "Ticks skipped because the previous tick was still running.",
		}),
		idleWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "idle_warnings_total",
			Help:      "Idle warnings recorded on sessions.",
		}),
		autoStops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "idle_auto_stops_total",
			Help:      "Sessions stopped for inactivity.",
		}),
		notificationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Alert notifications that could not be delivered.",
		}, []string{"kind"}),
		sessionStarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_starts_total",
			Help:      "Session start attempts by outcome.",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP responses by method, route and status code.",
		}, []string{"method", "route", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		registerer: reg,
	}

	reg.MustRegister(
		c.ticks,
		c.tickDuration,
		c.ticksSkipped,
		c.idleWarnings,
		c.autoStops,
		c.notificationFailures,
		c.sessionStarts,
		c.httpRequests,
		c.httpLatency,
	)

	return c
}

func (c *Collector) TickCompleted(duration time.Duration, failed bool) {
	result := "ok"
	if failed {
		result = "error"
	}
	c.ticks.WithLabelValues(result).Inc()
	c.tickDuration.Observe(duration.Seconds())
}

func (c *Collector) TickSkipped() {
	c.ticksSkipped.Inc()
}

func (c *Collector) IdleWarningSent() {
	c.idleWarnings.Inc()
}

func (c *Collector) SessionAutoStopped() {
	c.autoStops.Inc()
}

func (c *Collector) NotificationFailed(kind string) {
	c.notificationFailures.WithLabelValues(kind).Inc()
}

// RecordSessionStart counts a start attempt by outcome: started, denied,
// rejected or error.
func (c *Collector) RecordSessionStart(outcome string) {
	c.sessionStarts.WithLabelValues(outcome).Inc()
}

// RecordHTTPRequest records one served request.
func (c *Collector) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	c.httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

// BrokerStats is implemented by events.Broker.
type BrokerStats interface {
	Dropped() uint64
	Subscribers() int
}

// ObserveBroker exports the broker's subscriber count and dropped deliveries.
func (c *Collector) ObserveBroker(b BrokerStats) {
	c.registerer.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_subscribers",
			Help:      "Open event stream subscriptions.",
		}, func() float64 { return float64(b.Subscribers()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Event deliveries dropped because a subscriber fell behind.",
		}, func() float64 { return float64(b.Dropped()) }),
	)
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

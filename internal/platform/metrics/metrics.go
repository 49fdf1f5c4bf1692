package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the live session orchestrator.
// All methods are safe on a nil receiver so components can run without metrics.
type Metrics struct {
	registry             *prometheus.Registry
	requestsTotal        prometheus.Counter
	errorsTotal          prometheus.Counter
	streamsStartedTotal  prometheus.Counter
	streamsStoppedTotal  prometheus.Counter
	eventsPublishedTotal *prometheus.CounterVec
	subscribersPruned    prometheus.Counter
	scheduleFiresTotal   *prometheus.CounterVec
	subscribers          prometheus.Gauge
	liveStreams          prometheus.Gauge
}

// New creates and registers Prometheus metrics for the orchestrator.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "live_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "live_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		streamsStartedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "live_streams_started_total",
			Help: "Total number of idle to live transitions",
		}),
		streamsStoppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "live_streams_stopped_total",
			Help: "Total number of live to idle transitions, including preemptions",
		}),
		eventsPublishedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "live_events_published_total",
			Help: "Total number of events fanned out, by event type",
		}, []string{"type"}),
		subscribersPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "live_subscribers_pruned_total",
			Help: "Subscribers dropped because their connection was not writable or silent",
		}),
		scheduleFiresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "live_schedule_actions_total",
			Help: "Scheduler tick outcomes that changed state, by action",
		}, []string{"action"}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "live_subscribers",
			Help: "Number of connected event channel subscribers",
		}),
		liveStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "live_streams_live",
			Help: "Number of streams currently live (0 or 1)",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.streamsStartedTotal,
		m.streamsStoppedTotal,
		m.eventsPublishedTotal,
		m.subscribersPruned,
		m.scheduleFiresTotal,
		m.subscribers,
		m.liveStreams,
	)

	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	if m == nil {
		return
	}
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	if m == nil {
		return
	}
	m.errorsTotal.Inc()
}

func (m *Metrics) IncStreamsStarted() {
	if m == nil {
		return
	}
	m.streamsStartedTotal.Inc()
}

func (m *Metrics) IncStreamsStopped() {
	if m == nil {
		return
	}
	m.streamsStoppedTotal.Inc()
}

// IncEventsPublished counts one fan-out of the given event type.
func (m *Metrics) IncEventsPublished(eventType string) {
	if m == nil {
		return
	}
	m.eventsPublishedTotal.WithLabelValues(eventType).Inc()
}

func (m *Metrics) AddSubscribersPruned(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.subscribersPruned.Add(float64(n))
}

// IncScheduleAction records a scheduler outcome ("started", "stopped", "stale", "failed").
func (m *Metrics) IncScheduleAction(action string) {
	if m == nil {
		return
	}
	m.scheduleFiresTotal.WithLabelValues(action).Inc()
}

// SetSubscribers sets the connected subscribers gauge.
func (m *Metrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(n))
}

// SetLiveStreams sets the live streams gauge.
func (m *Metrics) SetLiveStreams(n int) {
	if m == nil {
		return
	}
	m.liveStreams.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}

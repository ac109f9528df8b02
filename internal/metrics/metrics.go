package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vaulttrust"

const (
	EventStored    = "stored"
	EventDuplicate = "duplicate"
	EventSkipped   = "skipped"
	EventFailed    = "failed"
)

type Metrics struct {
	gatherer prometheus.Gatherer

	HTTPRequests   *prometheus.CounterVec
	TrackerEvents  *prometheus.CounterVec
	TrackerBlock   prometheus.Gauge
	TrackerPolls   prometheus.Counter
	PublishFailure prometheus.Counter
}

// New registers the collectors on registry. A nil registry yields working but
// unregistered collectors.
func New(registry *prometheus.Registry) *Metrics {
	var registerer prometheus.Registerer
	var gatherer prometheus.Gatherer = prometheus.NewRegistry()
	if registry != nil {
		registerer = registry
		gatherer = registry
	}

	factory := promauto.With(registerer)
	return &Metrics{
		gatherer: gatherer,
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code",
		}, []string{"method", "route", "status"}),
		TrackerEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracker_events_total",
			Help:      "ReserveSubmitted events handled by outcome",
		}, []string{"result"}),
		TrackerBlock: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracker_last_block",
			Help:      "last block fully processed by the tracker",
		}),
		TrackerPolls: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracker_polls_total",
			Help:      "tracker poll iterations",
		}),
		PublishFailure: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_publish_failures_total",
			Help:      "audit events that could not be published",
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

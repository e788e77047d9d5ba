package report

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusConfig configures a PrometheusSink.
type PrometheusConfig struct {
	// Namespace prefixes every metric. Default: swarm.
	Namespace string
	// Buckets for the request duration histogram. Default: prometheus.DefBuckets.
	Buckets []float64
}

// PrometheusSink exports records as metrics on a dedicated registry.
type PrometheusSink struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	bytesTotal      prometheus.Counter
	usersStarted    prometheus.Counter
	activeUsers     prometheus.Gauge
}

// NewPrometheusSink creates the sink and registers its collectors.
func NewPrometheusSink(cfg PrometheusConfig) *PrometheusSink {
	if cfg.Namespace == "" {
		cfg.Namespace = "swarm"
	}
	if len(cfg.Buckets) == 0 {
		cfg.Buckets = prometheus.DefBuckets
	}

	s := &PrometheusSink{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "requests_total",
			Help:      "Total number of requests sent by virtual users.",
		}, []string{"action", "status", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "request_duration_seconds",
			Help:      "Duration of requests in seconds.",
			Buckets:   cfg.Buckets,
		}, []string{"action"}),
		bytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "response_bytes_total",
			Help:      "Total bytes received.",
		}),
		usersStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "users_started_total",
			Help:      "Total number of virtual users spawned.",
		}),
		activeUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "active_users",
			Help:      "Number of virtual users currently walking the scenario.",
		}),
	}
	s.registry.MustRegister(s.requestsTotal, s.requestDuration, s.bytesTotal, s.usersStarted, s.activeUsers)
	return s
}

func (s *PrometheusSink) Record(r Record) {
	switch r.Kind {
	case KindUserStart:
		s.usersStarted.Inc()
		s.activeUsers.Inc()
	case KindUserEnd:
		s.activeUsers.Dec()
	case KindRequest:
		outcome := string(r.Outcome)
		if outcome == "" {
			outcome = string(OutcomePass)
		}
		s.requestsTotal.WithLabelValues(r.Action, strconv.Itoa(r.Status), outcome).Inc()
		s.requestDuration.WithLabelValues(r.Action).Observe(r.Duration.Seconds())
		s.bytesTotal.Add(float64(r.Bytes))
	}
}

// Registry returns the sink's registry.
func (s *PrometheusSink) Registry() *prometheus.Registry { return s.registry }

// Handler serves the registry in the Prometheus exposition format.
func (s *PrometheusSink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Package metrics exposes Prometheus counters for the resolver, the feed
// cache and the upstream client on a private registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	FeedCacheRequests *prometheus.CounterVec // result: hit|miss
	UpstreamFetches   *prometheus.CounterVec // outcome: ok|error
	UpstreamDuration  prometheus.Histogram
	ResolverMatches   *prometheus.CounterVec // strategy
	StopsLoaded       prometheus.Gauge

	EventsPublished  prometheus.Counter
	EventPublishErrs prometheus.Counter
	NATSConnected    prometheus.Gauge
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		FeedCacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tfibus_feed_cache_requests_total",
			Help: "Feed cache lookups by result.",
		}, []string{"result"}),
		UpstreamFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tfibus_upstream_fetches_total",
			Help: "Upstream realtime feed fetches by outcome.",
		}, []string{"outcome"}),
		UpstreamDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tfibus_upstream_fetch_duration_seconds",
			Help:    "Duration of upstream feed fetches including retries.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		ResolverMatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tfibus_resolver_matches_total",
			Help: "Stop queries by the strategy that answered.",
		}, []string{"strategy"}),
		StopsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tfibus_stops_loaded",
			Help: "Number of stops in the registry.",
		}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tfibus_nats_published_total",
			Help: "Feed refreshed events published.",
		}),
		EventPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tfibus_nats_publish_errors_total",
			Help: "Feed refreshed events that failed to publish.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tfibus_nats_connected",
			Help: "1 if the NATS connection is established, 0 otherwise.",
		}),
	}

	reg.MustRegister(
		c.FeedCacheRequests, c.UpstreamFetches, c.UpstreamDuration,
		c.ResolverMatches, c.StopsLoaded,
		c.EventsPublished, c.EventPublishErrs, c.NATSConnected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Registry is exposed for tests.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) FeedCacheResult(result string) {
	c.FeedCacheRequests.WithLabelValues(result).Inc()
}

func (c *Collector) UpstreamFetch(ok bool, elapsed time.Duration) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	c.UpstreamFetches.WithLabelValues(outcome).Inc()
	c.UpstreamDuration.Observe(elapsed.Seconds())
}

func (c *Collector) ResolverMatch(strategy string) {
	c.ResolverMatches.WithLabelValues(strategy).Inc()
}

func (c *Collector) SetStopsLoaded(n int) { c.StopsLoaded.Set(float64(n)) }

func (c *Collector) EventPublished(err error) {
	if err != nil {
		c.EventPublishErrs.Inc()
		return
	}
	c.EventsPublished.Inc()
}

func (c *Collector) NATSSetConnected(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
		return
	}
	c.NATSConnected.Set(0)
}

// Package metrics exposes replication counters and gauges through a
// Prometheus registry owned by each Collector.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Drop reasons recorded by FrameDropped.
const (
	DropUndecodable = "undecodable"
	DropSelfOrigin  = "self_origin"
	DropDuplicate   = "duplicate"
)

// Collector holds the metrics for one replica. A nil *Collector is valid
// and records nothing.
type Collector struct {
	registry *prometheus.Registry

	EventsApplied   *prometheus.CounterVec
	EventsIgnored   *prometheus.CounterVec
	FramesDropped   *prometheus.CounterVec
	SeqReordered    prometheus.Counter
	Published       *prometheus.CounterVec
	PublishFailures prometheus.Counter
	PersistFailures *prometheus.CounterVec
	ApplyDuration   prometheus.Histogram

	Posts    prometheus.Gauge
	Messages prometheus.Gauge
	Peers    prometheus.Gauge
	Watched  prometheus.Gauge
	Live     prometheus.Gauge
}

// NewCollector creates a Collector with its own registry.
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		EventsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_applied_total",
			Help:      "Inbound events that changed local state.",
		}, []string{"kind"}),
		EventsIgnored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_ignored_total",
			Help:      "Inbound events that were valid but changed nothing.",
		}, []string{"kind"}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Inbound frames discarded before reaching a handler.",
		}, []string{"reason"}),
		SeqReordered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "seq_reordered_total",
			Help:      "Inbound frames whose sequence number did not advance for their origin.",
		}),
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Events handed to the bus.",
		}, []string{"kind"}),
		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_failures_total",
			Help:      "Bus publishes that returned an error.",
		}),
		PersistFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Snapshot writes that returned an error.",
		}, []string{"key"}),
		ApplyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "apply_duration_seconds",
			Help:      "Time spent applying one inbound event, persistence included.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		Posts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "posts",
			Help:      "Posts in the local forest, replies included.",
		}),
		Messages: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "messages",
			Help:      "Direct messages in the local log.",
		}),
		Peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_peers",
			Help:      "Peers in the presence roster.",
		}),
		Watched: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watched_posts",
			Help:      "Posts with at least one live viewer.",
		}),
		Live: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live",
			Help:      "1 once the replica has left the syncing state.",
		}),
	}

	c.registry.MustRegister(
		c.EventsApplied,
		c.EventsIgnored,
		c.FramesDropped,
		c.SeqReordered,
		c.Published,
		c.PublishFailures,
		c.PersistFailures,
		c.ApplyDuration,
		c.Posts,
		c.Messages,
		c.Peers,
		c.Watched,
		c.Live,
	)
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// EventApplied records the outcome of one inbound event.
func (c *Collector) EventApplied(kind string, changed bool, took time.Duration) {
	if c == nil {
		return
	}
	if changed {
		c.EventsApplied.WithLabelValues(kind).Inc()
	} else {
		c.EventsIgnored.WithLabelValues(kind).Inc()
	}
	c.ApplyDuration.Observe(took.Seconds())
}

// FrameDropped records a discarded inbound frame.
func (c *Collector) FrameDropped(reason string) {
	if c == nil {
		return
	}
	c.FramesDropped.WithLabelValues(reason).Inc()
}

// Reordered records a frame whose seq did not advance.
func (c *Collector) Reordered() {
	if c == nil {
		return
	}
	c.SeqReordered.Inc()
}

// PublishResult records one outbound publish.
func (c *Collector) PublishResult(kind string, err error) {
	if c == nil {
		return
	}
	c.Published.WithLabelValues(kind).Inc()
	if err != nil {
		c.PublishFailures.Inc()
	}
}

// PersistFailed records a failed snapshot write.
func (c *Collector) PersistFailed(key string) {
	if c == nil {
		return
	}
	c.PersistFailures.WithLabelValues(key).Inc()
}

// Sizes is the state snapshot reported by SetSizes.
type Sizes struct {
	Posts    int
	Messages int
	Peers    int
	Watched  int
	Live     bool
}

// SetSizes updates the state gauges.
func (c *Collector) SetSizes(s Sizes) {
	if c == nil {
		return
	}
	c.Posts.Set(float64(s.Posts))
	c.Messages.Set(float64(s.Messages))
	c.Peers.Set(float64(s.Peers))
	c.Watched.Set(float64(s.Watched))
	if s.Live {
		c.Live.Set(1)
	} else {
		c.Live.Set(0)
	}
}

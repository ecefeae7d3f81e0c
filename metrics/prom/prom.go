// Package prom exports cache metrics to Prometheus.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/shardkv/cache"
)

// Adapter implements cache.Metrics and exports Prometheus counters and
// gauges. Safe for concurrent use; all Prometheus metric types are
// goroutine-safe.
//
// Note that the entries/bytes gauges carry per-shard samples (the
// cache reports the shard that just mutated); scrape cache.Count and
// cache.Size for exact totals.
type Adapter struct {
	hits    prometheus.Counter
	misses  prometheus.Counter
	evicts  *prometheus.CounterVec
	swept   prometheus.Counter
	kept    prometheus.Gauge
	entries prometheus.Gauge
	bytes   prometheus.Gauge
}

// New constructs a Prometheus metrics adapter.
//   - reg:         registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:     Prometheus namespace and subsystem
//   - constLabels: static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "hits_total",
			Help:        "Cache hits",
			ConstLabels: constLabels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "misses_total",
			Help:        "Cache misses",
			ConstLabels: constLabels,
		}),
		evicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "evictions_total",
				Help:        "Cache evictions by reason",
				ConstLabels: constLabels,
			},
			[]string{"reason"},
		),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "swept_total",
			Help:        "Expired entries removed by sweeps",
			ConstLabels: constLabels,
		}),
		kept: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "sweep_kept",
			Help:        "Live entries remaining after the last sweep",
			ConstLabels: constLabels,
		}),
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "shard_entries",
			Help:        "Resident entries in the last mutated shard",
			ConstLabels: constLabels,
		}),
		bytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "shard_bytes",
			Help:        "Approximate byte footprint of the last mutated shard",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.hits, a.misses, a.evicts, a.swept, a.kept, a.entries, a.bytes)
	return a
}

// Hit increments the hit counter.
func (a *Adapter) Hit() { a.hits.Inc() }

// Miss increments the miss counter.
func (a *Adapter) Miss() { a.misses.Inc() }

// Evict increments the eviction counter with a reason label.
func (a *Adapter) Evict(r cache.Reason) {
	a.evicts.WithLabelValues(r.String()).Inc()
}

// Sweep records the outcome of a sweep pass.
func (a *Adapter) Sweep(swept, kept int) {
	a.swept.Add(float64(swept))
	a.kept.Set(float64(kept))
}

// Size updates the per-shard entry and byte gauges.
func (a *Adapter) Size(entries int, bytes int64) {
	a.entries.Set(float64(entries))
	a.bytes.Set(float64(bytes))
}

// Compile-time check: ensure Adapter implements cache.Metrics.
var _ cache.Metrics = (*Adapter)(nil)

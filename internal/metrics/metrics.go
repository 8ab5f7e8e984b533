// Package metrics holds the Prometheus collectors of the provenance core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "lineage"

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	GhostLoads       prometheus.Counter
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	Commits          prometheus.Counter
	Discards         prometheus.Counter
	DatasetMutations *prometheus.CounterVec
	SoftWarnings     *prometheus.CounterVec
	PlansInserted    prometheus.Counter
	PlansDeduped     prometheus.Counter
	Activities       prometheus.Counter
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		GhostLoads: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entitystore",
			Name:      "ghost_loads_total",
			Help:      "Objects materialized from the persistence backend",
		}),
		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entitystore",
			Name:      "cache_hits_total",
			Help:      "Materializations served from the object cache",
		}),
		CacheMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entitystore",
			Name:      "cache_misses_total",
			Help:      "Materializations that had to decode a persisted record",
		}),
		Commits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entitystore",
			Name:      "commits_total",
			Help:      "Committed snapshots",
		}),
		Discards: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entitystore",
			Name:      "discards_total",
			Help:      "Discarded uncommitted changes",
		}),
		DatasetMutations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "datasets",
			Name:      "mutations_total",
			Help:      "Dataset registry mutations by operation",
		}, []string{"operation"}),
		SoftWarnings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "datasets",
			Name:      "soft_warnings_total",
			Help:      "Best-effort operations on inconsistent history",
		}, []string{"code"}),
		PlansInserted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "plans_inserted_total",
			Help:      "Plans inserted as new graph nodes",
		}),
		PlansDeduped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "plans_deduplicated_total",
			Help:      "Plan insertions resolved to an existing structurally equal node",
		}),
		Activities: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execlog",
			Name:      "activities_total",
			Help:      "Activities appended to the execution log",
		}),
	}
}

func inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

func (m *Metrics) GhostLoaded() {
	if m != nil {
		inc(m.GhostLoads)
	}
}

func (m *Metrics) CacheHit() {
	if m != nil {
		inc(m.CacheHits)
	}
}

func (m *Metrics) CacheMiss() {
	if m != nil {
		inc(m.CacheMisses)
	}
}

func (m *Metrics) Committed() {
	if m != nil {
		inc(m.Commits)
	}
}

func (m *Metrics) Discarded() {
	if m != nil {
		inc(m.Discards)
	}
}

func (m *Metrics) DatasetMutated(operation string) {
	if m != nil && m.DatasetMutations != nil {
		m.DatasetMutations.WithLabelValues(operation).Inc()
	}
}

func (m *Metrics) SoftWarning(code string) {
	if m != nil && m.SoftWarnings != nil {
		m.SoftWarnings.WithLabelValues(code).Inc()
	}
}

func (m *Metrics) PlanInserted() {
	if m != nil {
		inc(m.PlansInserted)
	}
}

func (m *Metrics) PlanDeduped() {
	if m != nil {
		inc(m.PlansDeduped)
	}
}

func (m *Metrics) ActivityAppended() {
	if m != nil {
		inc(m.Activities)
	}
}

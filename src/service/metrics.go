package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tanglevis/tanglevis/src/graph"
)

// Metrics exposes graph counters to Prometheus. The engine observes the
// graph's stats after each batch; nothing here touches the graph directly.
type Metrics struct {
	registry *prometheus.Registry

	nodes      prometheus.Gauge
	edges      prometheus.Gauge
	milestones prometheus.Gauge
	batches    prometheus.Counter
	evicted    prometheus.Counter
	pruned     prometheus.Counter
	resets     prometheus.Counter

	lastBatches uint64
	lastEvicted uint64
	lastPruned  uint64
	lastResets  uint64
}

// NewMetrics ...
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		nodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tanglevis_graph_nodes",
			Help: "Number of nodes currently retained in the graph",
		}),
		edges: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tanglevis_graph_edges",
			Help: "Number of edges currently retained in the graph",
		}),
		milestones: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tanglevis_milestone_entries",
			Help: "Number of entries in the milestone index",
		}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tanglevis_batches_total",
			Help: "Total number of feed batches applied to the graph",
		}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tanglevis_nodes_evicted_total",
			Help: "Total number of nodes evicted by the FIFO cap",
		}),
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tanglevis_nodes_pruned_total",
			Help: "Total number of nodes removed by small-component pruning",
		}),
		resets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tanglevis_graph_resets_total",
			Help: "Total number of full graph resets after an invariant violation",
		}),
	}

	registry.MustRegister(
		m.nodes,
		m.edges,
		m.milestones,
		m.batches,
		m.evicted,
		m.pruned,
		m.resets,
	)

	return m
}

// Observe folds a stats snapshot into the metrics. Counters advance by the
// delta since the previous observation.
func (m *Metrics) Observe(stats graph.Stats) {
	m.nodes.Set(float64(stats.Nodes))
	m.edges.Set(float64(stats.Edges))
	m.milestones.Set(float64(stats.Milestones))

	m.batches.Add(float64(stats.Batches - m.lastBatches))
	m.evicted.Add(float64(stats.Evicted - m.lastEvicted))
	m.pruned.Add(float64(stats.Pruned - m.lastPruned))
	m.resets.Add(float64(stats.Resets - m.lastResets))

	m.lastBatches = stats.Batches
	m.lastEvicted = stats.Evicted
	m.lastPruned = stats.Pruned
	m.lastResets = stats.Resets
}

// Package metrics counts the tuples flowing out of graph vertices with
// Prometheus counters installed as peeks.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zoobzio/edgez/graph"
)

// TupleCounters counts tuples per vertex output port.
type TupleCounters struct {
	tuples *prometheus.CounterVec
}

// NewTupleCounters registers the tuple counter with reg.
func NewTupleCounters(reg prometheus.Registerer, namespace string) (*TupleCounters, error) {
	tuples := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "vertex_output_tuples_total",
		Help:      "Tuples submitted on a vertex output port.",
	}, []string{"job", "vertex", "kind", "port"})
	if err := reg.Register(tuples); err != nil {
		return nil, err
	}
	return &TupleCounters{tuples: tuples}, nil
}

// Install peeks every connected output of the vertices chosen by selector.
// A nil selector counts all vertices.
func (t *TupleCounters) Install(g *graph.Graph, jobName string, selector func(graph.VertexInfo) bool) error {
	return g.PeekAll(func(v graph.VertexInfo, port int) func(any) {
		c := t.tuples.WithLabelValues(jobName, v.ID, v.Kind, strconv.Itoa(port))
		return func(any) {
			c.Inc()
		}
	}, selector)
}

// Collector exposes the underlying counter vector.
func (t *TupleCounters) Collector() *prometheus.CounterVec {
	return t.tuples
}

// Package edgez is an embeddable streaming dataflow engine for edge devices.
//
// A Topology is built from typed streams. Each stream operation adds a vertex
// to the topology's graph; connecting a stream a second time inserts a
// fan-out, and peeks run before any downstream vertex. Windows buffer tuples
// per key and hand partition contents to an aggregation function.
//
// Basic usage:
//
//	top := edgez.NewTopology("sensors")
//	readings := edgez.Map(edgez.Of(top, "A1", "B7", "A4"), parse)
//	last2, _ := edgez.Last(readings, 2, func(r Reading) string { return r.Sensor })
//	mins := edgez.Aggregate(last2, edgez.Min[Reading, string](Reading.Value))
//	mins.Sink(func(m edgez.Measure[string]) error {
//		fmt.Println(m.Key, m.Value)
//		return nil
//	})
//
//	j, err := top.Submit(ctx)
//	if err != nil {
//		return err
//	}
//	return j.Complete(ctx)
package edgez

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/zoobzio/edgez/executor"
	"github.com/zoobzio/edgez/graph"
	"github.com/zoobzio/edgez/job"
	"github.com/zoobzio/edgez/logging"
	"github.com/zoobzio/edgez/metrics"
	"github.com/zoobzio/edgez/window"
)

// ErrInvalidArgument is returned for invalid counts, periods and durations.
var ErrInvalidArgument = window.ErrInvalidArgument

// ErrSubmitted is returned when a topology is submitted twice.
var ErrSubmitted = errors.New("topology already submitted")

// Topology is a named graph under construction.
//
//nolint:govet // fieldalignment: struct layout optimized for readability
type Topology struct {
	name        string
	graph       *graph.Graph
	clock       Clock
	logger      *zap.SugaredLogger
	concurrency int64
	registry    prometheus.Registerer

	mu        sync.Mutex
	err       error
	submitted bool
}

// Option configures a Topology.
type Option func(*Topology)

// WithClock sets the clock used by time windows and the executor.
func WithClock(clock Clock) Option {
	return func(t *Topology) {
		t.clock = clock
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(t *Topology) {
		t.logger = logger
	}
}

// WithConcurrency bounds the number of tasks running at once.
func WithConcurrency(n int64) Option {
	return func(t *Topology) {
		t.concurrency = n
	}
}

// WithMetrics counts the tuples of every vertex output in reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(t *Topology) {
		t.registry = reg
	}
}

// NewTopology creates an empty topology.
func NewTopology(name string, opts ...Option) *Topology {
	t := &Topology{name: name, clock: RealClock}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = logging.NewLogger()
	}
	t.logger = t.logger.With("topology", name)
	t.graph = graph.New(graph.WithLogger(t.logger))
	return t
}

// Name returns the topology name.
func (t *Topology) Name() string { return t.name }

// Graph returns the underlying graph.
func (t *Topology) Graph() *graph.Graph { return t.graph }

// Clock returns the topology clock.
func (t *Topology) Clock() Clock { return t.clock }

// Err returns the errors recorded while building the topology.
func (t *Topology) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Topology) record(err error) {
	if err == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.err = multierr.Append(t.err, err)
}

// Submit creates a job for the topology and runs it. Streams may still be
// added while the job runs; new vertices start immediately.
func (t *Topology) Submit(ctx context.Context) (*job.Job, error) {
	t.mu.Lock()
	if t.err != nil {
		defer t.mu.Unlock()
		return nil, t.err
	}
	if t.submitted {
		t.mu.Unlock()
		return nil, ErrSubmitted
	}
	t.submitted = true
	t.mu.Unlock()

	execOpts := []executor.Option{
		executor.WithClock(t.clock),
		executor.WithLogger(t.logger),
	}
	if t.concurrency > 0 {
		execOpts = append(execOpts, executor.WithConcurrency(t.concurrency))
	}
	j := job.New(t.graph,
		job.WithName(t.name),
		job.WithLogger(t.logger),
		job.WithExecutor(executor.New(execOpts...)),
	)

	if t.registry != nil {
		counters, err := metrics.NewTupleCounters(t.registry, "edgez")
		if err != nil {
			return nil, multierr.Append(err, j.Close(ctx))
		}
		if err := counters.Install(t.graph, j.Name(), nil); err != nil {
			return nil, multierr.Append(err, j.Close(ctx))
		}
	}

	if err := j.Run(ctx); err != nil {
		return nil, multierr.Append(err, j.Close(ctx))
	}
	return j, nil
}

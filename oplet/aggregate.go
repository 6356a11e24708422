package oplet

import (
	"github.com/zoobzio/edgez/window"
)

// AggregateFunc turns a partition's contents into at most one output tuple.
// Returning false emits nothing.
type AggregateFunc[K comparable, L, U any] func(contents L, key K) (U, bool, error)

// Aggregate feeds its input into a window and emits the result of every
// partition processing.
//
// The window decides when partitions are processed: on every insert for a
// sliding window, once per batch for a batch window, or on a schedule for
// time windows. The window uses the job's executor for its timers.
//
//nolint:govet // fieldalignment: struct layout optimized for readability
type Aggregate[T any, K comparable, L window.List[T], U any] struct {
	Base[U]
	window *window.Window[T, K, L]
	fn     AggregateFunc[K, L, U]
}

// NewAggregate creates an aggregation stage over w.
//
// When to use:
//   - Rolling statistics over the last N readings per sensor
//   - Batching tuples per key before writing them out
//   - Summaries over the last minute of events
//
// Example:
//
//	w, _ := window.LastN(10, func(r Reading) string { return r.Sensor })
//	avg := oplet.NewAggregate(w, func(l *window.Tuples[Reading], sensor string) (Summary, bool, error) {
//		return summarize(sensor, l.Items()), true, nil
//	})
func NewAggregate[T any, K comparable, L window.List[T], U any](w *window.Window[T, K, L], fn AggregateFunc[K, L, U]) *Aggregate[T, K, L, U] {
	return &Aggregate[T, K, L, U]{window: w, fn: fn}
}

// Window returns the aggregated window.
func (a *Aggregate[T, K, L, U]) Window() *window.Window[T, K, L] {
	return a.window
}

func (a *Aggregate[T, K, L, U]) Initialize(ctx Context[U]) error {
	if err := a.Base.Initialize(ctx); err != nil {
		return err
	}
	if err := a.window.RegisterScheduler(ctx.Executor()); err != nil {
		return err
	}
	return a.window.RegisterPartitionProcessor(a.process)
}

func (a *Aggregate[T, K, L, U]) Inputs() []func(T) error {
	return []func(T) error{a.window.Insert}
}

func (a *Aggregate[T, K, L, U]) process(contents L, key K) error {
	out, ok, err := a.fn(contents, key)
	if err != nil {
		return NewStageError(a.Context(), key, err)
	}
	if !ok {
		return nil
	}
	return a.Submit(out)
}

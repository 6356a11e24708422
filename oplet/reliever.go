package oplet

import (
	"fmt"

	"go.uber.org/atomic"

	"github.com/zoobzio/edgez/window"
)

// drainLatch names the partition value marking a drain task in flight.
type drainLatch struct{}

// PressureReliever decouples a slow downstream from its producers. It keeps
// the last count tuples per key and drains them downstream on the executor.
// When tuples arrive faster than they drain, the oldest are dropped.
//
// Each key has at most one drain task in flight. The partition goes from
// idle to draining when a tuple arrives and back to idle when the drain task
// finds it empty. Both transitions happen under the partition lock, and a
// draining partition stays pinned so its latch outlives empty moments.
//
//nolint:govet // fieldalignment: struct layout optimized for readability
type PressureReliever[T any, K comparable] struct {
	Base[T]
	window  *window.Window[T, K, *window.Tuples[T]]
	drops   *window.PartitionedState[K, *atomic.Int64]
	dropped atomic.Int64
	onDrop  func(T)
}

// NewPressureReliever creates a lossy buffer of count tuples per key.
//
// When to use:
//   - Sensors producing faster than a remote sink accepts
//   - Dashboards that only need the latest values
//
// Example:
//
//	relief, _ := oplet.NewPressureReliever(5, func(r Reading) string { return r.Sensor })
//	relief.OnDrop(func(r Reading) { dropped.Inc() })
func NewPressureReliever[T any, K comparable](count int, key func(T) K) (*PressureReliever[T, K], error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: count must be positive, got %d", window.ErrInvalidArgument, count)
	}
	p := &PressureReliever[T, K]{
		drops: window.NewPartitionedState[K](func() *atomic.Int64 {
			return atomic.NewInt64(0)
		}),
	}
	w, err := window.New(window.Config[T, K, *window.Tuples[T]]{
		Insertion: window.AlwaysInsert[T, K, *window.Tuples[T]](),
		Contents:  window.Append[T, K, *window.Tuples[T]](),
		Evict: func(part *window.Partition[T, K, *window.Tuples[T]]) error {
			for part.Contents().Len() > count {
				old, _ := part.Contents().RemoveFirst()
				p.dropped.Inc()
				p.drops.Get(part.Key()).Inc()
				if p.onDrop != nil {
					p.onDrop(old)
				}
			}
			return nil
		},
		Trigger:     p.wake,
		Key:         key,
		NewContents: window.NewTuples[T],
	})
	if err != nil {
		return nil, err
	}
	p.window = w
	return p, nil
}

// OnDrop sets a callback for every dropped tuple. It runs under the
// partition lock and must not submit to the same stage.
func (p *PressureReliever[T, K]) OnDrop(fn func(T)) *PressureReliever[T, K] {
	p.onDrop = fn
	return p
}

// Dropped returns the number of tuples dropped so far.
func (p *PressureReliever[T, K]) Dropped() int64 {
	return p.dropped.Load()
}

// DroppedFor returns the number of tuples of key dropped so far.
func (p *PressureReliever[T, K]) DroppedFor(key K) int64 {
	return p.drops.Get(key).Load()
}

func (p *PressureReliever[T, K]) Inputs() []func(T) error {
	return []func(T) error{p.window.Insert}
}

func draining[T any, K comparable](part *window.Partition[T, K, *window.Tuples[T]]) bool {
	v, _ := part.Value(drainLatch{})
	busy, _ := v.(bool)
	return busy
}

// wake runs under the partition lock after every insert.
func (p *PressureReliever[T, K]) wake(part *window.Partition[T, K, *window.Tuples[T]], _ T) error {
	if draining(part) {
		return nil
	}
	part.SetValue(drainLatch{}, true)
	part.Pin()
	key := part.Key()
	p.Context().Executor().Execute(func() error { return p.drain(key) })
	return nil
}

// drain submits the oldest tuple of key and schedules itself again until
// the partition is empty. A failing or panicking downstream does not stop
// the drain.
func (p *PressureReliever[T, K]) drain(key K) error {
	var (
		item T
		ok   bool
	)
	_ = p.window.Access(key, func(part *window.Partition[T, K, *window.Tuples[T]]) error {
		item, ok = part.Contents().RemoveFirst()
		if !ok {
			part.SetValue(drainLatch{}, false)
			part.Unpin()
		}
		return nil
	})
	if !ok {
		return nil
	}
	err := deliver(p.Submit, item)
	p.Context().Executor().Execute(func() error { return p.drain(key) })
	return err
}

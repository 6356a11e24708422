package edgez

import (
	"context"
	"fmt"
	"time"

	"github.com/zoobzio/edgez/graph"
	"github.com/zoobzio/edgez/oplet"
)

// Stream is a typed output of a topology vertex. Streams are stable
// handles: peeks and fan-outs inserted later do not change them.
//
// A stream whose vertex could not be added carries no connector; operations
// on it are ignored and the failure is reported by Topology.Err and Submit.
type Stream[T any] struct {
	t *Topology
	c *graph.Connector[T]
}

// Topology returns the owning topology.
func (s *Stream[T]) Topology() *Topology { return s.t }

// Connector returns the underlying graph connector.
func (s *Stream[T]) Connector() *graph.Connector[T] { return s.c }

func source[T any](t *Topology, op oplet.Oplet[oplet.Void, T]) *Stream[T] {
	v, err := graph.Source(t.graph, op)
	if err != nil {
		t.record(err)
		return &Stream[T]{t: t}
	}
	return &Stream[T]{t: t, c: v.Connectors()[0]}
}

func pipe[I, O any](s *Stream[I], op oplet.Oplet[I, O]) *Stream[O] {
	if s.c == nil {
		return &Stream[O]{t: s.t}
	}
	c, err := graph.Pipe(s.c, op)
	if err != nil {
		s.t.record(err)
		return &Stream[O]{t: s.t}
	}
	return &Stream[O]{t: s.t, c: c}
}

// Of creates a stream emitting items once, in order.
func Of[T any](t *Topology, items ...T) *Stream[T] {
	return source[T](t, oplet.NewValues(items...))
}

// Generate creates a stream fed by fn. fn runs once when the job starts and
// its context is canceled when the job closes.
func Generate[T any](t *Topology, fn func(ctx context.Context, submit func(T) error) error) *Stream[T] {
	return source[T](t, oplet.NewGenerator(fn))
}

// Poll creates a stream polling fn every period. fn reports false to emit
// nothing for a poll.
func Poll[T any](t *Topology, period time.Duration, fn func() (T, bool, error)) (*Stream[T], error) {
	op, err := oplet.NewPeriodic(period, fn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return source[T](t, op), nil
}

// Events creates a stream fed by callbacks. setup is called when the job
// starts with the function to submit tuples with. The job stays alive until
// it is closed.
func Events[T any](t *Topology, setup func(submit func(T) error) error) *Stream[T] {
	return source[T](t, oplet.NewEvents(setup))
}

// Map transforms each tuple. An error is returned to the submitter wrapped
// in an oplet.StageError.
func Map[T, U any](s *Stream[T], fn func(T) (U, error)) *Stream[U] {
	return pipe[T, U](s, oplet.NewMap(fn))
}

// FlatMap transforms each tuple into zero or more tuples.
func FlatMap[T, U any](s *Stream[T], fn func(T) ([]U, error)) *Stream[U] {
	return pipe[T, U](s, oplet.NewFlatMap(fn))
}

// Filter keeps the tuples matching predicate.
func (s *Stream[T]) Filter(predicate func(T) bool) *Stream[T] {
	return pipe[T, T](s, oplet.NewFilter(predicate))
}

// Peek calls fn with every tuple before it reaches any downstream vertex,
// and returns the same stream.
func (s *Stream[T]) Peek(fn func(T)) *Stream[T] {
	if s.c != nil {
		s.t.record(s.c.Peek(oplet.NewPeek(fn)))
	}
	return s
}

// Tag adds tags to the stream's edges and returns the same stream.
func (s *Stream[T]) Tag(tags ...string) *Stream[T] {
	if s.c != nil {
		s.c.Tag(tags...)
	}
	return s
}

// Tags returns the stream's tags.
func (s *Stream[T]) Tags() []string {
	if s.c == nil {
		return nil
	}
	return s.c.Tags()
}

// Sink terminates the stream with fn.
func (s *Stream[T]) Sink(fn func(T) error) {
	if s.c == nil {
		return
	}
	_, err := graph.Sink(s.c, oplet.NewSink(fn))
	s.t.record(err)
}

// Isolate hands tuples to the executor so the upstream submitter does not
// wait for downstream processing. Order is preserved.
func (s *Stream[T]) Isolate() *Stream[T] {
	return pipe[T, T](s, oplet.NewIsolate[T]())
}

// UnorderedIsolate is Isolate without the ordering guarantee.
func (s *Stream[T]) UnorderedIsolate() *Stream[T] {
	return pipe[T, T](s, oplet.NewUnorderedIsolate[T]())
}

// Split routes each tuple to one of n streams chosen by splitter. The index
// is reduced modulo n; a negative index drops the tuple.
func (s *Stream[T]) Split(n int, splitter func(T) int) ([]*Stream[T], error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: split into %d streams", ErrInvalidArgument, n)
	}
	if s.c == nil {
		return nil, s.t.Err()
	}
	v, err := graph.Insert(s.t.graph, oplet.NewSplit(splitter), 1, n)
	if err != nil {
		return nil, err
	}
	if err := s.c.Connect(v, 0); err != nil {
		return nil, err
	}
	conns := v.Connectors()
	out := make([]*Stream[T], len(conns))
	for i, c := range conns {
		out[i] = &Stream[T]{t: s.t, c: c}
	}
	return out, nil
}

// Union merges streams of the same topology into one.
func Union[T any](streams ...*Stream[T]) (*Stream[T], error) {
	if len(streams) == 0 {
		return nil, fmt.Errorf("%w: union of no streams", ErrInvalidArgument)
	}
	t := streams[0].t
	for _, s := range streams {
		if s.t != t {
			return nil, graph.ErrForeignVertex
		}
		if s.c == nil {
			return nil, t.Err()
		}
	}
	v, err := graph.Insert(t.graph, oplet.NewUnion[T](), len(streams), 1)
	if err != nil {
		return nil, err
	}
	for i, s := range streams {
		if err := s.c.Connect(v, i); err != nil {
			return nil, err
		}
	}
	return &Stream[T]{t: t, c: v.Connectors()[0]}, nil
}

// PressureRelieve keeps the last count tuples per key and delivers them
// downstream on the executor. When the downstream is slower than the
// upstream, the oldest tuples of a key are dropped.
func PressureRelieve[T any, K comparable](s *Stream[T], count int, key func(T) K) (*Stream[T], error) {
	op, err := oplet.NewPressureReliever(count, key)
	if err != nil {
		return nil, err
	}
	return pipe[T, T](s, op), nil
}

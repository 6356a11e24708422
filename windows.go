package edgez

import (
	"fmt"
	"time"

	"github.com/zoobzio/edgez/oplet"
	"github.com/zoobzio/edgez/window"
)

// Window is a keyed window declared on a stream. Tuples are partitioned by
// key and each partition holds either the last count tuples or the tuples
// of the last span. A window does nothing until Aggregate or Batch consumes
// it.
type Window[T any, K comparable] struct {
	stream *Stream[T]
	key    func(T) K
	count  int
	span   time.Duration
}

// Last declares a window holding the last count tuples of each key.
func Last[T any, K comparable](s *Stream[T], count int, key func(T) K) (*Window[T, K], error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: count must be positive, got %d", ErrInvalidArgument, count)
	}
	if key == nil {
		return nil, fmt.Errorf("%w: nil key function", ErrInvalidArgument)
	}
	return &Window[T, K]{stream: s, key: key, count: count}, nil
}

// LastTime declares a window holding the tuples of each key received in
// the last span.
func LastTime[T any, K comparable](s *Stream[T], span time.Duration, key func(T) K) (*Window[T, K], error) {
	if span <= 0 {
		return nil, fmt.Errorf("%w: span must be positive, got %s", ErrInvalidArgument, span)
	}
	if key == nil {
		return nil, fmt.Errorf("%w: nil key function", ErrInvalidArgument)
	}
	return &Window[T, K]{stream: s, key: key, span: span}, nil
}

// Unpartitioned keys every tuple to the same partition.
func Unpartitioned[T any](T) int {
	return 0
}

// AggregateFunc reduces the tuples of one partition to at most one result.
// Returning false emits nothing.
type AggregateFunc[T any, K comparable, U any] func(items []T, key K) (U, bool, error)

// Aggregate emits fn's result every time a partition changes: on every
// tuple for a count window, and on every tuple and every expiry for a time
// window. Tuples stay in the window until they are evicted.
func Aggregate[T any, K comparable, U any](w *Window[T, K], fn AggregateFunc[T, K, U]) *Stream[U] {
	if w.span > 0 {
		win, err := window.LastTime(w.span, w.key, w.stream.t.clock)
		if err != nil {
			w.stream.t.record(err)
			return &Stream[U]{t: w.stream.t}
		}
		return pipe[T, U](w.stream, oplet.NewAggregate(win, listFunc[T, K, *window.InsertionTimeList[T], U](fn)))
	}
	win, err := window.LastN(w.count, w.key)
	if err != nil {
		w.stream.t.record(err)
		return &Stream[U]{t: w.stream.t}
	}
	return pipe[T, U](w.stream, oplet.NewAggregate(win, listFunc[T, K, *window.Tuples[T], U](fn)))
}

// Batch emits fn's result once per batch and empties the partition: when
// count tuples of a key have arrived for a count window, or span after the
// first tuple of a batch for a time window. An incomplete count batch is
// never emitted.
func Batch[T any, K comparable, U any](w *Window[T, K], fn AggregateFunc[T, K, U]) *Stream[U] {
	var (
		win *window.Window[T, K, *window.Tuples[T]]
		err error
	)
	if w.span > 0 {
		win, err = window.TimeBatch(w.span, w.key)
	} else {
		win, err = window.Batch(w.count, w.key)
	}
	if err != nil {
		w.stream.t.record(err)
		return &Stream[U]{t: w.stream.t}
	}
	return pipe[T, U](w.stream, oplet.NewAggregate(win, listFunc[T, K, *window.Tuples[T], U](fn)))
}

func listFunc[T any, K comparable, L window.List[T], U any](fn AggregateFunc[T, K, U]) oplet.AggregateFunc[K, L, U] {
	return func(contents L, key K) (U, bool, error) {
		return fn(contents.Items(), key)
	}
}

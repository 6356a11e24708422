package window

import (
	"time"

	"github.com/zoobzio/clockz"
)

// List is the per-partition contents collection. Implementations are only
// touched while the owning partition is locked, so they need no locking of
// their own.
type List[T any] interface {
	Append(t T)
	Len() int
	// Items returns a copy of the contents in insertion order.
	Items() []T
	RemoveFirst() (T, bool)
	Clear()
}

// TimedList is a List that knows when each tuple was inserted.
type TimedList[T any] interface {
	List[T]
	// EvictOlderThan removes every tuple inserted at or before cutoff and
	// returns how many were removed.
	EvictOlderThan(cutoff time.Time) int
	// NextEvictDelay returns how long until the oldest tuple is older than
	// span. It returns false when the list is empty.
	NextEvictDelay(span time.Duration) (time.Duration, bool)
}

// Tuples is a slice-backed List.
type Tuples[T any] struct {
	items []T
}

// NewTuples returns an empty Tuples list.
func NewTuples[T any]() *Tuples[T] {
	return &Tuples[T]{}
}

func (l *Tuples[T]) Append(t T) { l.items = append(l.items, t) }

func (l *Tuples[T]) Len() int { return len(l.items) }

func (l *Tuples[T]) Items() []T {
	out := make([]T, len(l.items))
	copy(out, l.items)
	return out
}

func (l *Tuples[T]) RemoveFirst() (T, bool) {
	var zero T
	if len(l.items) == 0 {
		return zero, false
	}
	first := l.items[0]
	l.items[0] = zero
	l.items = l.items[1:]
	return first, true
}

func (l *Tuples[T]) Clear() {
	clear(l.items)
	l.items = l.items[:0]
}

// InsertionTimeList records the clock time each tuple was appended.
//
//nolint:govet // fieldalignment: struct layout optimized for readability
type InsertionTimeList[T any] struct {
	clock clockz.Clock
	items []T
	times []time.Time
}

// NewInsertionTimeList returns an empty list stamped by clock.
func NewInsertionTimeList[T any](clock clockz.Clock) *InsertionTimeList[T] {
	if clock == nil {
		clock = clockz.RealClock
	}
	return &InsertionTimeList[T]{clock: clock}
}

func (l *InsertionTimeList[T]) Append(t T) {
	l.items = append(l.items, t)
	l.times = append(l.times, l.clock.Now())
}

func (l *InsertionTimeList[T]) Len() int { return len(l.items) }

func (l *InsertionTimeList[T]) Items() []T {
	out := make([]T, len(l.items))
	copy(out, l.items)
	return out
}

func (l *InsertionTimeList[T]) RemoveFirst() (T, bool) {
	var zero T
	if len(l.items) == 0 {
		return zero, false
	}
	first := l.items[0]
	l.items[0] = zero
	l.items = l.items[1:]
	l.times = l.times[1:]
	return first, true
}

func (l *InsertionTimeList[T]) Clear() {
	clear(l.items)
	l.items = l.items[:0]
	l.times = l.times[:0]
}

// InsertedAt returns the insertion time of the i-th tuple.
func (l *InsertionTimeList[T]) InsertedAt(i int) time.Time {
	return l.times[i]
}

func (l *InsertionTimeList[T]) EvictOlderThan(cutoff time.Time) int {
	n := 0
	for n < len(l.times) && !l.times[n].After(cutoff) {
		n++
	}
	if n == 0 {
		return 0
	}
	clear(l.items[:n])
	l.items = l.items[n:]
	l.times = l.times[n:]
	return n
}

func (l *InsertionTimeList[T]) NextEvictDelay(span time.Duration) (time.Duration, bool) {
	if len(l.times) == 0 {
		return 0, false
	}
	delay := l.times[0].Add(span).Sub(l.clock.Now())
	if delay < 0 {
		delay = 0
	}
	return delay, true
}

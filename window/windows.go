package window

import (
	"fmt"
	"time"

	"github.com/zoobzio/clockz"
)

// LastN returns a sliding count window: each partition keeps the count most
// recent tuples and is processed after every insert.
func LastN[T any, K comparable](count int, key func(T) K) (*Window[T, K, *Tuples[T]], error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: count must be positive, got %d", ErrInvalidArgument, count)
	}
	return New(Config[T, K, *Tuples[T]]{
		Insertion:   AlwaysInsert[T, K, *Tuples[T]](),
		Contents:    Append[T, K, *Tuples[T]](),
		Evict:       EvictOldestOver[T, K, *Tuples[T]](count),
		Trigger:     ProcessOnInsert[T, K, *Tuples[T]](),
		Key:         key,
		NewContents: NewTuples[T],
	})
}

// Batch returns a count batch window: a partition is processed once it
// holds size tuples and is then emptied. A partial batch is never processed.
func Batch[T any, K comparable](size int, key func(T) K) (*Window[T, K, *Tuples[T]], error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidArgument, size)
	}
	return New(Config[T, K, *Tuples[T]]{
		Insertion:   AlwaysInsert[T, K, *Tuples[T]](),
		Contents:    Append[T, K, *Tuples[T]](),
		Evict:       EvictAllWhenFull[T, K, *Tuples[T]](size),
		Trigger:     DoNothing[T, K, *Tuples[T]](),
		Key:         key,
		NewContents: NewTuples[T],
	})
}

// LastTime returns a sliding time window holding the tuples inserted in the
// last d. The partition is processed on every insert and whenever expired
// tuples are evicted. Insertion times come from clock.
func LastTime[T any, K comparable](d time.Duration, key func(T) K, clock clockz.Clock) (*Window[T, K, *InsertionTimeList[T]], error) {
	if d <= 0 {
		return nil, fmt.Errorf("%w: window duration must be positive, got %s", ErrInvalidArgument, d)
	}
	return New(Config[T, K, *InsertionTimeList[T]]{
		Insertion:   AlwaysInsert[T, K, *InsertionTimeList[T]](),
		Contents:    ScheduleEvictIfEmpty[T, K, *InsertionTimeList[T]](d),
		Evict:       EvictOlderWithProcess[T, K, *InsertionTimeList[T]](d),
		Trigger:     ProcessOnInsert[T, K, *InsertionTimeList[T]](),
		Key:         key,
		NewContents: func() *InsertionTimeList[T] { return NewInsertionTimeList[T](clock) },
	})
}

// TimeBatch returns a time batch window: the first tuple of a batch starts a
// d timer, and when it fires the collected tuples are processed together and
// the partition emptied.
func TimeBatch[T any, K comparable](d time.Duration, key func(T) K) (*Window[T, K, *Tuples[T]], error) {
	if d <= 0 {
		return nil, fmt.Errorf("%w: batch duration must be positive, got %s", ErrInvalidArgument, d)
	}
	return New(Config[T, K, *Tuples[T]]{
		Insertion:   AlwaysInsert[T, K, *Tuples[T]](),
		Contents:    ScheduleEvictOnFirstInsert[T, K, *Tuples[T]](d),
		Evict:       EvictAllAndScheduleEvict[T, K, *Tuples[T]](d),
		Trigger:     DoNothing[T, K, *Tuples[T]](),
		Key:         key,
		NewContents: NewTuples[T],
	})
}

// Unpartitioned is a key function placing every tuple in one partition.
func Unpartitioned[T any](T) int {
	return 0
}

package window

import (
	"fmt"
	"time"
)

// The policy constructors below panic on invalid arguments. The window
// factories and the topology API validate their inputs first and return
// ErrInvalidArgument instead.

func mustPositive(name string, n int) {
	if n <= 0 {
		panic(fmt.Sprintf("%v: %s must be positive, got %d", ErrInvalidArgument, name, n))
	}
}

func mustPositiveDuration(name string, d time.Duration) {
	if d <= 0 {
		panic(fmt.Sprintf("%v: %s must be positive, got %s", ErrInvalidArgument, name, d))
	}
}

// AlwaysInsert accepts every tuple.
func AlwaysInsert[T any, K comparable, L List[T]]() InsertionPolicy[T, K, L] {
	return func(*Partition[T, K, L], T) bool { return true }
}

// InsertUnlessKey rejects tuples that map to one of the excluded keys.
func InsertUnlessKey[T any, K comparable, L List[T]](excluded ...K) InsertionPolicy[T, K, L] {
	skip := make(map[K]struct{}, len(excluded))
	for _, k := range excluded {
		skip[k] = struct{}{}
	}
	return func(p *Partition[T, K, L], _ T) bool {
		_, found := skip[p.Key()]
		return !found
	}
}

// Append adds the tuple to the end of the contents.
func Append[T any, K comparable, L List[T]]() ContentsPolicy[T, K, L] {
	return func(p *Partition[T, K, L], t T) error {
		p.Contents().Append(t)
		return nil
	}
}

// ScheduleEvictIfEmpty appends the tuple, first scheduling an eviction after
// d when the partition was empty and none is pending.
func ScheduleEvictIfEmpty[T any, K comparable, L List[T]](d time.Duration) ContentsPolicy[T, K, L] {
	mustPositiveDuration("eviction delay", d)
	return func(p *Partition[T, K, L], t T) error {
		if p.Contents().Len() == 0 && !p.EvictPending() {
			if err := p.ScheduleEvict(d); err != nil {
				return err
			}
		}
		p.Contents().Append(t)
		return nil
	}
}

// ScheduleEvictOnFirstInsert appends the tuple, scheduling an eviction after
// d whenever none is pending. This starts a batch on the first tuple after
// the previous batch was evicted.
func ScheduleEvictOnFirstInsert[T any, K comparable, L List[T]](d time.Duration) ContentsPolicy[T, K, L] {
	mustPositiveDuration("eviction delay", d)
	return func(p *Partition[T, K, L], t T) error {
		if !p.EvictPending() {
			if err := p.ScheduleEvict(d); err != nil {
				return err
			}
		}
		p.Contents().Append(t)
		return nil
	}
}

// EvictOldestOver removes tuples from the front until at most count remain.
func EvictOldestOver[T any, K comparable, L List[T]](count int) EvictDeterminer[T, K, L] {
	mustPositive("count", count)
	return func(p *Partition[T, K, L]) error {
		for p.Contents().Len() > count {
			p.Contents().RemoveFirst()
		}
		return nil
	}
}

// EvictAllWhenFull processes and then clears the partition once it holds
// count tuples.
func EvictAllWhenFull[T any, K comparable, L List[T]](count int) EvictDeterminer[T, K, L] {
	mustPositive("count", count)
	return func(p *Partition[T, K, L]) error {
		if p.Contents().Len() < count {
			return nil
		}
		err := p.Process()
		p.Contents().Clear()
		return err
	}
}

// EvictOlderWithProcess removes tuples inserted more than d ago and
// processes the partition when any were removed. While tuples remain and no
// eviction is pending, it schedules the next eviction for when the oldest
// remaining tuple expires.
func EvictOlderWithProcess[T any, K comparable, L TimedList[T]](d time.Duration) EvictDeterminer[T, K, L] {
	mustPositiveDuration("window duration", d)
	return func(p *Partition[T, K, L]) error {
		s := p.Window().Scheduler()
		if s == nil {
			return ErrNoScheduler
		}
		var err error
		if p.Contents().EvictOlderThan(s.Now().Add(-d)) > 0 {
			err = p.Process()
		}
		if !p.EvictPending() {
			if delay, ok := p.Contents().NextEvictDelay(d); ok {
				if serr := p.ScheduleEvict(delay); err == nil {
					err = serr
				}
			}
		}
		return err
	}
}

// EvictAllAndScheduleEvict is the time-batch determiner. It does nothing
// while an eviction is pending. When a scheduled eviction fires on a
// non-empty partition it processes the contents, clears them and schedules
// the next eviction after d.
func EvictAllAndScheduleEvict[T any, K comparable, L List[T]](d time.Duration) EvictDeterminer[T, K, L] {
	mustPositiveDuration("batch duration", d)
	return func(p *Partition[T, K, L]) error {
		if p.EvictPending() || p.Contents().Len() == 0 {
			return nil
		}
		err := p.Process()
		p.Contents().Clear()
		if serr := p.ScheduleEvict(d); err == nil {
			err = serr
		}
		return err
	}
}

// ProcessOnInsert processes the partition after every insert.
func ProcessOnInsert[T any, K comparable, L List[T]]() TriggerPolicy[T, K, L] {
	return func(p *Partition[T, K, L], _ T) error {
		return p.Process()
	}
}

// ProcessWhenFull processes the partition when it holds exactly count tuples.
func ProcessWhenFull[T any, K comparable, L List[T]](count int) TriggerPolicy[T, K, L] {
	mustPositive("count", count)
	return func(p *Partition[T, K, L], _ T) error {
		if p.Contents().Len() == count {
			return p.Process()
		}
		return nil
	}
}

// DoNothing is a trigger policy that never processes.
func DoNothing[T any, K comparable, L List[T]]() TriggerPolicy[T, K, L] {
	return func(*Partition[T, K, L], T) error { return nil }
}

// NoEviction is an evict determiner that never removes tuples.
func NoEviction[T any, K comparable, L List[T]]() EvictDeterminer[T, K, L] {
	return func(*Partition[T, K, L]) error { return nil }
}

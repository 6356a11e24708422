package window

import (
	"fmt"
	"sync"
	"time"

	"github.com/zoobzio/edgez/executor"
)

// FixedRateTrigger processes every partition it has seen on a fixed period.
// The first insert into a partition starts its recurring task and pins the
// partition so it outlives empty intervals.
//
//nolint:govet // fieldalignment: struct layout optimized for readability
type FixedRateTrigger[T any, K comparable, L List[T]] struct {
	mu      sync.Mutex
	period  time.Duration
	window  *Window[T, K, L]
	futures map[K]executor.Future
}

// NewFixedRateTrigger returns a trigger firing every period.
func NewFixedRateTrigger[T any, K comparable, L List[T]](period time.Duration) (*FixedRateTrigger[T, K, L], error) {
	if period <= 0 {
		return nil, fmt.Errorf("%w: trigger period must be positive, got %s", ErrInvalidArgument, period)
	}
	return &FixedRateTrigger[T, K, L]{
		period:  period,
		futures: make(map[K]executor.Future),
	}, nil
}

// Policy returns the trigger policy to place in a window Config.
func (f *FixedRateTrigger[T, K, L]) Policy() TriggerPolicy[T, K, L] {
	return func(p *Partition[T, K, L], _ T) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.futures[p.Key()]; ok {
			return nil
		}
		f.window = p.Window()
		fut, err := f.scheduleLocked(p.Key())
		if err != nil {
			return err
		}
		p.Pin()
		f.futures[p.Key()] = fut
		return nil
	}
}

// Period returns the current period.
func (f *FixedRateTrigger[T, K, L]) Period() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.period
}

// SetPeriod changes the period. Each partition's recurring task is canceled
// and rescheduled with the new period before SetPeriod returns, so a
// partition never has two recurring tasks.
func (f *FixedRateTrigger[T, K, L]) SetPeriod(period time.Duration) error {
	if period <= 0 {
		return fmt.Errorf("%w: trigger period must be positive, got %s", ErrInvalidArgument, period)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.period = period
	for key, fut := range f.futures {
		fut.Cancel()
		next, err := f.scheduleLocked(key)
		if err != nil {
			delete(f.futures, key)
			return err
		}
		f.futures[key] = next
	}
	return nil
}

// Stop cancels every recurring task and unpins the partitions. A later
// insert into a partition starts its task again.
func (f *FixedRateTrigger[T, K, L]) Stop() {
	f.mu.Lock()
	w := f.window
	keys := make([]K, 0, len(f.futures))
	for key, fut := range f.futures {
		fut.Cancel()
		delete(f.futures, key)
		keys = append(keys, key)
	}
	f.mu.Unlock()

	// Policy takes f.mu under the partition lock, so unpin in that order.
	for _, key := range keys {
		_ = w.Access(key, func(p *Partition[T, K, L]) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			// An insert since the cancel started a new task that keeps the pin.
			if _, ok := f.futures[key]; !ok {
				p.Unpin()
			}
			return nil
		})
	}
}

func (f *FixedRateTrigger[T, K, L]) scheduleLocked(key K) (executor.Future, error) {
	s := f.window.Scheduler()
	if s == nil {
		return nil, ErrNoScheduler
	}
	w := f.window
	return s.ScheduleAtFixedRate(f.period, f.period, func() error {
		return w.Access(key, func(p *Partition[T, K, L]) error {
			return p.Process()
		})
	})
}

package window

import (
	"sync"
	"time"

	"github.com/zoobzio/edgez/executor"
)

// Partition holds the contents and extension state for one key.
//
// Policies and processors receive a Partition while its lock is held; its
// methods must not be called from anywhere else.
//
//nolint:govet // fieldalignment: struct layout optimized for readability
type Partition[T any, K comparable, L List[T]] struct {
	window   *Window[T, K, L]
	key      K
	contents L

	mu          sync.Mutex
	removed     bool
	evictFuture executor.Future
	evictGen    uint64
	pins        int
	values      map[any]any
}

// Key returns the partition key.
func (p *Partition[T, K, L]) Key() K {
	return p.key
}

// Contents returns the partition contents.
func (p *Partition[T, K, L]) Contents() L {
	return p.contents
}

// Window returns the owning window.
func (p *Partition[T, K, L]) Window() *Window[T, K, L] {
	return p.window
}

// Process invokes the registered processor with the current contents.
func (p *Partition[T, K, L]) Process() error {
	return p.window.process(p)
}

// Evict runs the window's evict determiner.
func (p *Partition[T, K, L]) Evict() error {
	return p.window.evict(p)
}

// ScheduleEvict arranges for Evict to run after delay on the window's
// scheduler, replacing any eviction already pending for this partition. It
// returns executor.ErrShutdown when the scheduler no longer accepts tasks.
func (p *Partition[T, K, L]) ScheduleEvict(delay time.Duration) error {
	s := p.window.Scheduler()
	if s == nil {
		return ErrNoScheduler
	}
	p.CancelEvict()
	p.evictGen++
	gen := p.evictGen
	f := s.Schedule(delay, func() error {
		return p.window.scheduledEvict(p, gen)
	})
	// The eviction needs p.mu, so a future done already was rejected.
	if f.Done() {
		return executor.ErrShutdown
	}
	p.evictFuture = f
	return nil
}

// EvictPending reports whether a scheduled eviction is outstanding.
func (p *Partition[T, K, L]) EvictPending() bool {
	return p.evictFuture != nil
}

// CancelEvict cancels the pending scheduled eviction, if any.
func (p *Partition[T, K, L]) CancelEvict() {
	if p.evictFuture == nil {
		return
	}
	p.evictFuture.Cancel()
	p.evictFuture = nil
	p.evictGen++
}

// Pin keeps the partition alive while it is empty. Every Pin needs a
// matching Unpin.
func (p *Partition[T, K, L]) Pin() {
	p.pins++
}

// Unpin releases a Pin.
func (p *Partition[T, K, L]) Unpin() {
	if p.pins > 0 {
		p.pins--
	}
}

// Value returns extension state stored under name. Extension state lives as
// long as the partition; pin the partition to keep it across empty moments.
func (p *Partition[T, K, L]) Value(name any) (any, bool) {
	v, ok := p.values[name]
	return v, ok
}

// SetValue stores extension state under name.
func (p *Partition[T, K, L]) SetValue(name, v any) {
	if p.values == nil {
		p.values = make(map[any]any)
	}
	p.values[name] = v
}

func (p *Partition[T, K, L]) insert(t T) error {
	w := p.window
	if !w.insertion(p, t) {
		return nil
	}
	if err := w.contents(p, t); err != nil {
		return err
	}
	if err := w.evict(p); err != nil {
		return err
	}
	return w.trigger(p, t)
}

// Package window implements keyed, policy-driven windows over a stream of
// tuples.
//
// A Window maps every tuple to a partition key and keeps one Partition per
// key. Each insert runs the window's policies in a fixed order while holding
// the partition's lock:
//
//	insertion policy -> contents policy -> evict determiner -> trigger policy
//
// The registered processor is called under that same lock, so at most one
// goroutine ever reads or mutates a partition's contents at a time. Inserts
// for different keys only contend on the short lookup of the partition map.
package window

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/atomic"

	"github.com/zoobzio/edgez/executor"
)

var (
	// ErrInvalidArgument marks configuration rejected at construction time.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNoScheduler is returned by time-based policies used before a
	// scheduler was registered.
	ErrNoScheduler = errors.New("window has no scheduler")
	// ErrProcessorRegistered is returned when a second processor is registered.
	ErrProcessorRegistered = errors.New("partition processor already registered")
)

// InsertionPolicy decides whether a tuple is added to the partition.
type InsertionPolicy[T any, K comparable, L List[T]] func(p *Partition[T, K, L], t T) bool

// ContentsPolicy adds an accepted tuple to the partition contents.
type ContentsPolicy[T any, K comparable, L List[T]] func(p *Partition[T, K, L], t T) error

// EvictDeterminer removes tuples from the partition. It runs after every
// insert and on every scheduled eviction, and calls Partition.Process when
// the eviction should produce output.
type EvictDeterminer[T any, K comparable, L List[T]] func(p *Partition[T, K, L]) error

// TriggerPolicy decides after an insert whether to process the partition.
type TriggerPolicy[T any, K comparable, L List[T]] func(p *Partition[T, K, L], t T) error

// Processor receives a partition's contents and key. It runs with exclusive
// access to the partition and may mutate contents.
type Processor[K comparable, L any] func(contents L, key K) error

// Config assembles a Window. Every field is required.
type Config[T any, K comparable, L List[T]] struct {
	Insertion   InsertionPolicy[T, K, L]
	Contents    ContentsPolicy[T, K, L]
	Evict       EvictDeterminer[T, K, L]
	Trigger     TriggerPolicy[T, K, L]
	Key         func(T) K
	NewContents func() L
}

// Window is the keyed partition engine.
//
//nolint:govet // fieldalignment: struct layout optimized for readability
type Window[T any, K comparable, L List[T]] struct {
	insertion   InsertionPolicy[T, K, L]
	contents    ContentsPolicy[T, K, L]
	evict       EvictDeterminer[T, K, L]
	trigger     TriggerPolicy[T, K, L]
	key         func(T) K
	newContents func() L

	processor atomic.Pointer[Processor[K, L]]
	scheduler atomic.Value

	mu         sync.Mutex
	partitions map[K]*Partition[T, K, L]
}

// New creates a Window from cfg.
func New[T any, K comparable, L List[T]](cfg Config[T, K, L]) (*Window[T, K, L], error) {
	switch {
	case cfg.Insertion == nil:
		return nil, fmt.Errorf("%w: nil insertion policy", ErrInvalidArgument)
	case cfg.Contents == nil:
		return nil, fmt.Errorf("%w: nil contents policy", ErrInvalidArgument)
	case cfg.Evict == nil:
		return nil, fmt.Errorf("%w: nil evict determiner", ErrInvalidArgument)
	case cfg.Trigger == nil:
		return nil, fmt.Errorf("%w: nil trigger policy", ErrInvalidArgument)
	case cfg.Key == nil:
		return nil, fmt.Errorf("%w: nil key function", ErrInvalidArgument)
	case cfg.NewContents == nil:
		return nil, fmt.Errorf("%w: nil contents factory", ErrInvalidArgument)
	}
	return &Window[T, K, L]{
		insertion:   cfg.Insertion,
		contents:    cfg.Contents,
		evict:       cfg.Evict,
		trigger:     cfg.Trigger,
		key:         cfg.Key,
		newContents: cfg.NewContents,
		partitions:  make(map[K]*Partition[T, K, L]),
	}, nil
}

// Insert adds t to the partition for its key and runs the window policies.
// Errors from policies and the processor are returned unchanged.
func (w *Window[T, K, L]) Insert(t T) error {
	return w.withPartition(w.key(t), func(p *Partition[T, K, L]) error {
		return p.insert(t)
	})
}

// Access runs fn with exclusive access to the partition for key, creating
// the partition if needed.
func (w *Window[T, K, L]) Access(key K, fn func(p *Partition[T, K, L]) error) error {
	return w.withPartition(key, fn)
}

// withPartition runs fn holding the lock of the live partition for key.
// The lock is released and the partition considered for removal even when
// fn panics.
func (w *Window[T, K, L]) withPartition(key K, fn func(p *Partition[T, K, L]) error) error {
	for {
		p := w.partition(key)
		if ok, err := w.runLocked(p, fn); ok {
			return err
		}
	}
}

// runLocked reports false when p was removed before its lock was taken.
func (w *Window[T, K, L]) runLocked(p *Partition[T, K, L], fn func(p *Partition[T, K, L]) error) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.removed {
		return false, nil
	}
	defer w.release(p)
	return true, fn(p)
}

// RegisterPartitionProcessor sets the processor. It may be set only once.
func (w *Window[T, K, L]) RegisterPartitionProcessor(fn Processor[K, L]) error {
	if fn == nil {
		return fmt.Errorf("%w: nil processor", ErrInvalidArgument)
	}
	if !w.processor.CompareAndSwap(nil, &fn) {
		return ErrProcessorRegistered
	}
	return nil
}

// RegisterScheduler supplies the timer facility used by time-based policies.
func (w *Window[T, K, L]) RegisterScheduler(s executor.Scheduler) error {
	if s == nil {
		return fmt.Errorf("%w: nil scheduler", ErrInvalidArgument)
	}
	w.scheduler.Store(&s)
	return nil
}

// Scheduler returns the registered scheduler or nil.
func (w *Window[T, K, L]) Scheduler() executor.Scheduler {
	if s, ok := w.scheduler.Load().(*executor.Scheduler); ok {
		return *s
	}
	return nil
}

// Keys returns the keys of the live partitions.
func (w *Window[T, K, L]) Keys() []K {
	w.mu.Lock()
	defer w.mu.Unlock()
	keys := make([]K, 0, len(w.partitions))
	for k := range w.partitions {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of live partitions.
func (w *Window[T, K, L]) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.partitions)
}

// partition looks up or creates the partition for key.
func (w *Window[T, K, L]) partition(key K) *Partition[T, K, L] {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.partitions[key]
	if !ok {
		p = &Partition[T, K, L]{
			window:   w,
			key:      key,
			contents: w.newContents(),
		}
		w.partitions[key] = p
	}
	return p
}

// release drops p from the map once it is empty and nothing is scheduled
// for it. Must hold p.mu.
func (w *Window[T, K, L]) release(p *Partition[T, K, L]) {
	if p.removed || p.contents.Len() > 0 || p.evictFuture != nil || p.pins > 0 {
		return
	}
	w.mu.Lock()
	if w.partitions[p.key] == p {
		delete(w.partitions, p.key)
	}
	w.mu.Unlock()
	p.removed = true
}

func (w *Window[T, K, L]) process(p *Partition[T, K, L]) error {
	fn := w.processor.Load()
	if fn == nil {
		return nil
	}
	return (*fn)(p.contents, p.key)
}

// scheduledEvict is the body of a scheduled eviction armed with generation gen.
func (w *Window[T, K, L]) scheduledEvict(p *Partition[T, K, L], gen uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.removed || p.evictGen != gen {
		return nil
	}
	p.evictFuture = nil
	defer w.release(p)
	return w.evict(p)
}

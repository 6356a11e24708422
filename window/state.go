package window

import "sync"

// PartitionedState is a per-key state store whose values are created lazily
// by a factory. Each key gets its own value from its own factory call.
//
//nolint:govet // fieldalignment: struct layout optimized for readability
type PartitionedState[K comparable, S any] struct {
	mu      sync.Mutex
	factory func() S
	states  map[K]S
}

// NewPartitionedState returns a store creating initial values with factory.
// It panics if factory is nil.
func NewPartitionedState[K comparable, S any](factory func() S) *PartitionedState[K, S] {
	if factory == nil {
		panic("window: nil partitioned state factory")
	}
	return &PartitionedState[K, S]{
		factory: factory,
		states:  make(map[K]S),
	}
}

// Get returns the state for key, creating it on first use.
func (s *PartitionedState[K, S]) Get(key K) S {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(key)
}

// Set replaces the state for key and returns what Get would have returned
// before the call.
func (s *PartitionedState[K, S]) Set(key K, value S) S {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.getLocked(key)
	s.states[key] = value
	return prev
}

// Remove deletes the state for key and returns what Get would have returned
// before the call. The next Get creates a fresh value.
func (s *PartitionedState[K, S]) Remove(key K) S {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.getLocked(key)
	delete(s.states, key)
	return prev
}

// Len returns the number of keys holding state.
func (s *PartitionedState[K, S]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

func (s *PartitionedState[K, S]) getLocked(key K) S {
	v, ok := s.states[key]
	if !ok {
		v = s.factory()
		s.states[key] = v
	}
	return v
}

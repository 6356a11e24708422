package oplet

import "github.com/spaolacci/murmur3"

// Split routes each tuple to one output port chosen by a splitter.
//
// The splitter returns a port index; it is reduced modulo the number of
// outputs. A negative index drops the tuple.
type Split[T any] struct {
	Base[T]
	splitter func(T) int
}

// NewSplit creates a routing stage.
//
// Example:
//
//	// Route readings by severity: 0 normal, 1 warning, 2 alarm.
//	split := oplet.NewSplit(func(r Reading) int {
//		switch {
//		case r.Value > 90:
//			return 2
//		case r.Value > 70:
//			return 1
//		}
//		return 0
//	})
func NewSplit[T any](splitter func(T) int) *Split[T] {
	return &Split[T]{splitter: splitter}
}

func (s *Split[T]) Inputs() []func(T) error {
	return []func(T) error{s.accept}
}

func (s *Split[T]) accept(t T) error {
	idx := s.splitter(t)
	if idx < 0 {
		return nil
	}
	outs := s.Context().Outputs()
	if len(outs) == 0 {
		return nil
	}
	return outs[idx%len(outs)](t)
}

// HashSplitter returns a splitter sending tuples with equal keys to the same
// port, using the murmur3 hash of the key.
func HashSplitter[T any](key func(T) string) func(T) int {
	return func(t T) int {
		return int(murmur3.Sum32([]byte(key(t))) & 0x7fffffff)
	}
}

// Union merges all of its input ports into output port 0.
type Union[T any] struct {
	Base[T]
}

// NewUnion creates a merging stage.
func NewUnion[T any]() *Union[T] {
	return &Union[T]{}
}

func (u *Union[T]) Inputs() []func(T) error {
	inputs := make([]func(T) error, u.Context().InputCount())
	for i := range inputs {
		inputs[i] = u.Submit
	}
	return inputs
}

package sharedstream

// StateReadable is the read-only view of a State: a Readable[T] that also
// exposes its current value synchronously, without going through Collect.
type StateReadable[T comparable] interface {
	Readable[T]
	Value() T
}

// State is the degenerate single-value configuration of a Stream: replay 1,
// drop-oldest overflow, and a SetValue that short-circuits when the
// incoming value equals the current one (distinct-by-equality), the same
// role a broadcast/state variable plays relative to a general multicast
// stream.
type State[T comparable] struct {
	*Stream[T]
}

// NewState constructs a State seeded with initial.
func NewState[T comparable](initial T, opts ...Option[T]) (*State[T], error) {
	s, err := New[T](Config[T]{
		Replay:      1,
		OnOverflow:  OverflowDropOldest,
		InitialValue: &initial,
	}, opts...)
	if err != nil {
		return nil, err
	}
	return &State[T]{Stream: s}, nil
}

// Value returns the current value.
func (s *State[T]) Value() T {
	snap := s.ReplaySnapshot()
	if len(snap) == 0 {
		var zero T
		return zero
	}
	return snap[len(snap)-1]
}

// SetValue is equivalent to TryEmit(v), except it is a no-op when v equals
// the current value.
func (s *State[T]) SetValue(v T) {
	if s.Value() == v {
		return
	}
	s.TryEmit(v)
}

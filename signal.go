package sharedstream

import "sync"

// intSignal is a small observable int: readers can poll Value or Watch for
// the next change. It backs Stream's subscription-count observable (§4.D's
// "count signal" input to a StartPolicy). Changes are coalesced — setting
// the same value twice in a row does not wake watchers a second time — and
// delivery to watchers is eventually consistent, never required to
// happen-before the write the way the instance lock's wakeups are.
//
// The "swap a channel, close the old one" idiom is the same one-shot
// wakeup pattern used for per-slot/per-emitter suspension elsewhere in this
// package, generalized here to a repeatable signal by replacing the channel
// on every change instead of consuming it once.
type intSignal struct {
	mu    sync.Mutex
	value int
	ch    chan struct{}
}

func newIntSignal(initial int) *intSignal {
	return &intSignal{value: initial, ch: make(chan struct{})}
}

func (s *intSignal) Value() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

func (s *intSignal) set(v int) {
	s.mu.Lock()
	if v == s.value {
		s.mu.Unlock()
		return
	}
	s.value = v
	ch := s.ch
	s.ch = make(chan struct{})
	s.mu.Unlock()
	close(ch)
}

// Watch returns the current value and a channel that closes the next time
// the value changes.
func (s *intSignal) Watch() (int, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.ch
}

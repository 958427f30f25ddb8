package sharedstream

import (
	"context"
	"sync"
)

// OverflowPolicy selects what happens when a value arrives while the buffer
// is at capacity and the slowest subscriber has not yet read past the start
// of the replay window.
type OverflowPolicy uint8

const (
	// OverflowSuspend parks the producer until a subscriber frees space.
	OverflowSuspend OverflowPolicy = iota
	// OverflowDropOldest evicts the single oldest buffered value to make
	// room, snapping any subscriber still behind it forward.
	OverflowDropOldest
	// OverflowDropLatest silently discards the incoming value.
	OverflowDropLatest
)

func (p OverflowPolicy) String() string {
	switch p {
	case OverflowSuspend:
		return "suspend"
	case OverflowDropOldest:
		return "drop_oldest"
	case OverflowDropLatest:
		return "drop_latest"
	default:
		return "overflow_policy(?)"
	}
}

// Config describes a Stream's fixed buffering behaviour.
type Config[T any] struct {
	// Replay is how many of the most recently buffered values a new
	// subscriber observes immediately on attaching.
	Replay int
	// ExtraBuffer is additional buffering beyond Replay for slow
	// subscribers that haven't fallen behind the replay window.
	ExtraBuffer int
	// OnOverflow selects behaviour when the buffer is full. Zero total
	// capacity (Replay+ExtraBuffer == 0) requires OverflowSuspend — that
	// configuration is rendezvous mode, where every emit is handed
	// directly to a waiting subscriber.
	OnOverflow OverflowPolicy
	// InitialValue, if non-nil, seeds the replay window at construction
	// and is re-seeded whenever ResetReplay is called. Requires Replay >= 1.
	InitialValue *T
}

// Readable is the read-only view of a Stream: anything a subscriber or a
// late-replay reader needs.
type Readable[T any] interface {
	Collect(ctx context.Context, c Collector[T]) error
	ReplaySnapshot() []T
	SubscriptionCount() int
}

// Mutable is a Readable that also accepts values.
type Mutable[T any] interface {
	Readable[T]
	TryEmit(v T) bool
	Emit(ctx context.Context, v T) error
	ResetReplay()
}

// Stream is a bounded, slot-indexed, multicast, replay-capable value
// stream. All mutation is serialized through one lock; continuations for
// resumed producers and woken subscribers are always gathered inside that
// lock and fired after it is released, so nothing downstream ever runs
// while the lock is held.
type Stream[T any] struct {
	mu sync.Mutex

	ring ring[T]

	// replayIndex only ever moves forward. minCollectorIndex moves forward
	// too, except that Collect lowers it to a new subscriber's starting
	// cursor (replayIndex) when that is smaller.
	replayIndex       int64
	minCollectorIndex int64
	bufferSize        int
	queueSize         int

	replay         int
	bufferCapacity int
	onOverflow     OverflowPolicy

	hasInitial          bool
	initialValue        T
	replayIsJustInitial bool

	registry slotRegistry[T]
	subCount *intSignal

	logger *Logger
}

// New constructs a Stream. It returns a *ConfigError (wrapping one of the
// sentinel errors in errors.go) rather than panicking, since a Stream is
// typically built from caller-supplied, not hard-coded, configuration.
func New[T any](cfg Config[T], opts ...Option[T]) (*Stream[T], error) {
	if cfg.Replay < 0 {
		return nil, newConfigError("replay", ErrNegativeReplay)
	}
	if cfg.ExtraBuffer < 0 {
		return nil, newConfigError("extra_buffer", ErrNegativeBuffer)
	}
	if cfg.InitialValue != nil && cfg.Replay == 0 {
		return nil, newConfigError("initial_value", ErrInitialValueWithoutReplay)
	}
	capacity := saturatingAdd(cfg.Replay, cfg.ExtraBuffer)
	if cfg.OnOverflow != OverflowSuspend && capacity == 0 {
		return nil, newConfigError("on_overflow", ErrZeroCapacitySuspend)
	}

	o := resolveOptions(opts)
	s := &Stream[T]{
		replay:         cfg.Replay,
		bufferCapacity: capacity,
		onOverflow:     cfg.OnOverflow,
		subCount:       newIntSignal(0),
		logger:         loggerFor(o),
	}

	if cfg.InitialValue != nil {
		s.hasInitial = true
		s.initialValue = *cfg.InitialValue
		s.ring.Grow(0, 1)
		s.ring.Set(0, entry[T]{kind: entryValue, value: *cfg.InitialValue})
		s.bufferSize = 1
		s.replayIsJustInitial = true
	}

	s.logger.Debug().Int64("replay", int64(cfg.Replay)).Int64("extra_buffer", int64(cfg.ExtraBuffer)).
		Str("on_overflow", cfg.OnOverflow.String()).Log("stream constructed")

	return s, nil
}

func saturatingAdd(a, b int) int {
	const maxInt = int(^uint(0) >> 1)
	if a > maxInt-b {
		return maxInt
	}
	return a + b
}

func (s *Stream[T]) head() int64 {
	if s.minCollectorIndex < s.replayIndex {
		return s.minCollectorIndex
	}
	return s.replayIndex
}

// TryEmit attempts to admit v without suspending, returning false only
// under OverflowSuspend when the buffer is full. In rendezvous mode that
// means: true (v is discarded) when there are no subscribers, false whenever
// at least one subscriber is attached.
func (s *Stream[T]) TryEmit(v T) bool {
	s.mu.Lock()
	wakes, ok, dropped := s.tryEmitLocked(v)
	s.mu.Unlock()
	fireConsumerWakes(wakes)
	if dropped {
		s.logger.Debug().Log("dropped value under overflow policy")
	}
	return ok
}

// Emit admits v, suspending the caller if the buffer is full under
// OverflowSuspend (or always, in rendezvous mode) until a subscriber frees
// space or ctx is cancelled. Cancellation is not treated as a stream error;
// it is simply returned to the caller via ctx.Err().
func (s *Stream[T]) Emit(ctx context.Context, v T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.bufferCapacity > 0 {
		wakes, ok, dropped := s.tryEmitLocked(v)
		if ok {
			s.mu.Unlock()
			fireConsumerWakes(wakes)
			if dropped {
				s.logger.Debug().Log("dropped value under overflow policy")
			}
			return nil
		}
	}

	head := s.head()
	idx := head + int64(s.bufferSize) + int64(s.queueSize)
	s.ring.Grow(head, int(idx-head)+1)
	rec := &emitterRecord[T]{stream: s, index: idx, value: v, resume: make(chan error, 1)}
	s.ring.Set(idx, entry[T]{kind: entryEmitter, emitter: rec})
	s.queueSize++
	wakes := s.collectConsumerWakesLocked()
	s.mu.Unlock()
	fireConsumerWakes(wakes)

	select {
	case err := <-rec.resume:
		return err
	case <-ctx.Done():
		rec.cancel()
		return ctx.Err()
	}
}

// tryEmitLocked implements the non-suspending admission algorithm. It never
// creates an emitter record: the caller (Emit) falls back to enqueuing one
// itself when ok is false.
func (s *Stream[T]) tryEmitLocked(v T) (wakes []chan struct{}, ok bool, dropped bool) {
	s.replayIsJustInitial = false

	if s.registry.activeCount() == 0 {
		if s.replay == 0 {
			return nil, true, false
		}
		s.appendValueLocked(v)
		for s.bufferSize > s.replay {
			s.dropOldestLocked()
		}
		s.minCollectorIndex = s.head() + int64(s.bufferSize)
		return nil, true, false
	}

	notFull := s.bufferSize < s.bufferCapacity || s.minCollectorIndex > s.replayIndex
	if notFull {
		s.appendValueLocked(v)
		if s.bufferSize > s.bufferCapacity {
			s.dropOldestLocked()
		}
		if replaySize := s.head() + int64(s.bufferSize) - s.replayIndex; replaySize > int64(s.replay) {
			s.advanceReplayIndexLocked(s.replayIndex + 1)
		}
		return s.collectConsumerWakesLocked(), true, false
	}

	switch s.onOverflow {
	case OverflowSuspend:
		return nil, false, false
	case OverflowDropLatest:
		return nil, true, true
	case OverflowDropOldest:
		s.appendValueLocked(v)
		s.dropOldestLocked()
		if replaySize := s.head() + int64(s.bufferSize) - s.replayIndex; replaySize > int64(s.replay) {
			s.advanceReplayIndexLocked(s.replayIndex + 1)
		}
		return s.collectConsumerWakesLocked(), true, false
	default:
		return nil, false, false
	}
}

func (s *Stream[T]) appendValueLocked(v T) {
	idx := s.head() + int64(s.bufferSize)
	head := s.head()
	s.ring.Grow(head, int(idx-head)+1)
	s.ring.Set(idx, entry[T]{kind: entryValue, value: v})
	s.bufferSize++
}

// advanceReplayIndexLocked moves replayIndex forward to idx. When that moves
// head, bufferSize shrinks by the same amount and the vacated ring slots are
// cleared, keeping head+bufferSize at the same buffer end.
func (s *Stream[T]) advanceReplayIndexLocked(idx int64) {
	head := s.head()
	s.replayIndex = idx
	if newHead := s.head(); newHead > head {
		s.bufferSize -= int(newHead - head)
		for i := head; i < newHead; i++ {
			s.ring.Clear(i)
		}
	}
}

func (s *Stream[T]) dropOldestLocked() {
	head := s.head()
	s.ring.Clear(head)
	s.bufferSize--
	newHead := head + 1
	if s.replayIndex < newHead {
		s.replayIndex = newHead
	}
	if s.minCollectorIndex < newHead {
		s.registry.forEachActive(func(h *slotHandle) {
			if h.cursor < newHead {
				h.cursor = newHead
			}
		})
		s.minCollectorIndex = newHead
	}
}

// collectConsumerWakesLocked gathers, without firing, the wakeups for every
// suspended slot that now has something peekable.
func (s *Stream[T]) collectConsumerWakesLocked() []chan struct{} {
	var wakes []chan struct{}
	s.registry.forEachActive(func(h *slotHandle) {
		if h.wake == nil {
			return
		}
		if _, has := s.tryPeekLocked(h); has {
			wakes = append(wakes, h.wake)
			h.wake = nil
		}
	})
	return wakes
}

// tryPeekLocked reports the logical index a slot would read next, and
// whether one is currently available. Rendezvous mode (bufferCapacity == 0)
// allows a slot to read directly from the queue once its cursor has caught
// up to head, so a suspended emitter can hand off without the value ever
// occupying buffer storage.
func (s *Stream[T]) tryPeekLocked(h *slotHandle) (int64, bool) {
	bufferEnd := s.head() + int64(s.bufferSize)
	if h.cursor < bufferEnd {
		return h.cursor, true
	}
	if s.bufferCapacity > 0 {
		return 0, false
	}
	if h.cursor > s.head() {
		return 0, false
	}
	if s.queueSize == 0 {
		return 0, false
	}
	return h.cursor, true
}

// peekTakeLocked delivers the next logical value to h, transparently
// skipping over tombstones left by cancelled emitters: a tombstone is not a
// value, so it is retired (advancing the cursor and re-running the resume
// bookkeeping) and the search continues rather than being reported to the
// caller as "nothing available".
func (s *Stream[T]) peekTakeLocked(h *slotHandle) (v T, ok bool, resumes []chan error, wakes []chan struct{}) {
	for {
		idx, has := s.tryPeekLocked(h)
		if !has {
			return v, false, resumes, wakes
		}
		e := s.ring.Get(idx)
		switch e.kind {
		case entryValue:
			v = e.value
		case entryEmitter:
			v = e.emitter.value
		case entryTombstone:
			h.cursor = idx + 1
			r, w := s.updateCollectorIndexLocked()
			resumes = append(resumes, r...)
			wakes = append(wakes, w...)
			continue
		default:
			return v, false, resumes, wakes
		}
		h.cursor = idx + 1
		r, w := s.updateCollectorIndexLocked()
		resumes = append(resumes, r...)
		wakes = append(wakes, w...)
		return v, true, resumes, wakes
	}
}

func (s *Stream[T]) recomputeMinCollectorLocked() int64 {
	bufferEnd := s.head() + int64(s.bufferSize)
	min := bufferEnd
	any := false
	s.registry.forEachActive(func(h *slotHandle) {
		if !any || h.cursor < min {
			min = h.cursor
			any = true
		}
	})
	return min
}

// updateCollectorIndexLocked must be called whenever a slot's cursor
// advances or a slot is released: it recomputes minCollectorIndex and, if
// that freed space, resumes as many queued emitters as now fit.
//
// Rendezvous streams (bufferCapacity == 0) never hold a buffered value —
// tryPeekLocked hands a queued emitter's payload straight to the slowest
// subscriber's cursor, so by the time minCollectorIndex passes an index the
// value has already been delivered. Resuming there means only retiring the
// entry and waking its producer, never promoting it into buffer storage.
func (s *Stream[T]) updateCollectorIndexLocked() (resumes []chan error, wakes []chan struct{}) {
	newMin := s.recomputeMinCollectorLocked()
	if newMin <= s.minCollectorIndex {
		return nil, nil
	}

	if s.bufferCapacity == 0 {
		for s.minCollectorIndex < newMin {
			idx := s.minCollectorIndex
			switch e := s.ring.Get(idx); e.kind {
			case entryEmitter:
				resumes = append(resumes, e.emitter.resume)
				s.ring.Clear(idx)
				s.queueSize--
			case entryTombstone:
				s.ring.Clear(idx)
				s.queueSize--
			}
			s.minCollectorIndex++
		}
		s.replayIndex = s.minCollectorIndex
		wakes = s.collectConsumerWakesLocked()
		return resumes, wakes
	}

	head := s.head()
	bufferEnd := head + int64(s.bufferSize)

	var resumable int
	if s.registry.activeCount() > 0 {
		slack := s.bufferCapacity - int(bufferEnd-newMin)
		if slack < 0 {
			slack = 0
		}
		resumable = min(s.queueSize, slack)
	} else {
		resumable = s.queueSize
	}

	delivered := 0
	for delivered < resumable && s.queueSize > 0 {
		idx := bufferEnd
		e := s.ring.Get(idx)
		switch e.kind {
		case entryTombstone:
			s.ring.Clear(idx)
			s.queueSize--
			bufferEnd++
		case entryEmitter:
			rec := e.emitter
			s.ring.Set(idx, entry[T]{kind: entryValue, value: rec.value})
			s.queueSize--
			s.bufferSize++
			bufferEnd++
			resumes = append(resumes, rec.resume)
			delivered++
		default:
			delivered = resumable
		}
	}

	s.minCollectorIndex = newMin

	if newReplayIndex := bufferEnd - int64(min(s.replay, s.bufferSize)); newReplayIndex > s.replayIndex {
		s.replayIndex = newReplayIndex
	}

	newHead := s.head()
	if newHead > head {
		s.bufferSize -= int(newHead - head)
		for i := head; i < newHead; i++ {
			s.ring.Clear(i)
		}
	}

	wakes = s.collectConsumerWakesLocked()
	return resumes, wakes
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// cleanupTailLocked strips trailing tombstones from the queue, used after a
// producer cancels to keep queueEnd from drifting ahead of live work.
func (s *Stream[T]) cleanupTailLocked() {
	head := s.head()
	bufferEnd := head + int64(s.bufferSize)
	queueEnd := bufferEnd + int64(s.queueSize)
	for queueEnd > bufferEnd {
		e := s.ring.Get(queueEnd - 1)
		if e.kind != entryTombstone {
			break
		}
		s.ring.Clear(queueEnd - 1)
		s.queueSize--
		queueEnd--
	}
}

// cancel tombstones a suspended emitter, or drops it outright if it is
// still at the tail of the queue. It is called from outside the lock (by
// Emit, on context cancellation) and takes the lock itself.
func (rec *emitterRecord[T]) cancel() {
	s := rec.stream
	s.mu.Lock()
	if rec.cancelled {
		s.mu.Unlock()
		return
	}
	rec.cancelled = true
	e := s.ring.Get(rec.index)
	if e.kind == entryEmitter && e.emitter == rec {
		s.ring.Set(rec.index, entry[T]{kind: entryTombstone})
		s.cleanupTailLocked()
	}
	s.mu.Unlock()
}

// Collector receives values delivered by Stream.Collect.
type Collector[T any] interface {
	Collect(v T) error
}

// CollectorFunc adapts a plain function to Collector.
type CollectorFunc[T any] func(v T) error

func (f CollectorFunc[T]) Collect(v T) error { return f(v) }

// Collect subscribes c to the stream, delivering the current replay window
// followed by every subsequently admitted value, until c (or a subscription
// hook) returns an error or ctx is cancelled. It suspends only when no value
// is currently peekable.
func (s *Stream[T]) Collect(ctx context.Context, c Collector[T]) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	id, h := s.registry.allocate()
	h.cursor = s.replayIndex
	if h.cursor < s.minCollectorIndex {
		s.minCollectorIndex = h.cursor
	}
	s.subCount.set(s.registry.activeCount())
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.registry.release(id)
		resumes, wakes := s.updateCollectorIndexLocked()
		s.subCount.set(s.registry.activeCount())
		s.mu.Unlock()
		fireResumes(resumes)
		fireConsumerWakes(wakes)
	}()

	if err := runSubscriptionHooks[T](c); err != nil {
		return err
	}

	for {
		s.mu.Lock()
		v, has, resumes, wakes := s.peekTakeLocked(h)
		if !has {
			wake := make(chan struct{})
			h.wake = wake
			s.mu.Unlock()
			select {
			case <-wake:
			case <-ctx.Done():
				s.mu.Lock()
				h.wake = nil
				s.mu.Unlock()
				return ctx.Err()
			}
			continue
		}
		s.mu.Unlock()
		fireResumes(resumes)
		fireConsumerWakes(wakes)

		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.Collect(v); err != nil {
			return err
		}
	}
}

// ReplaySnapshot returns a copy of the current replay window, oldest first.
func (s *Stream[T]) ReplaySnapshot() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	bufferEnd := s.head() + int64(s.bufferSize)
	n := bufferEnd - s.replayIndex
	if n <= 0 {
		return nil
	}
	out := make([]T, 0, n)
	for i := s.replayIndex; i < bufferEnd; i++ {
		e := s.ring.Get(i)
		switch e.kind {
		case entryValue:
			out = append(out, e.value)
		case entryEmitter:
			out = append(out, e.emitter.value)
		}
	}
	return out
}

// SubscriptionCount returns the current number of attached subscribers.
func (s *Stream[T]) SubscriptionCount() int {
	return s.subCount.Value()
}

func (s *Stream[T]) subscriptionSignal() *intSignal {
	return s.subCount
}

// ResetReplay clears the replay window down to (re-seeding with, if
// configured) the initial value. Two consecutive calls with no intervening
// emit leave identical state: the second is a no-op.
func (s *Stream[T]) ResetReplay() {
	s.mu.Lock()
	wakes := s.resetReplayLocked()
	s.mu.Unlock()
	fireConsumerWakes(wakes)
	s.logger.Debug().Log("replay window reset")
}

func (s *Stream[T]) resetReplayLocked() []chan struct{} {
	bufferEnd := s.head() + int64(s.bufferSize)
	replaySize := bufferEnd - s.replayIndex

	if !s.hasInitial {
		if replaySize <= 0 {
			return nil
		}
		s.advanceReplayIndexLocked(bufferEnd)
		return s.collectConsumerWakesLocked()
	}

	if s.replayIsJustInitial {
		return nil
	}

	s.advanceReplayIndexLocked(bufferEnd)
	s.insertInitialValueLocked()
	s.replayIsJustInitial = true
	return s.collectConsumerWakesLocked()
}

// insertInitialValueLocked enqueues the initial value at the current
// buffer frontier, compacting past any queued emitters by shifting them one
// slot to the right and rewriting their recorded index, then drops the
// oldest buffered values while more than bufferCapacity are held, whatever
// the configured overflow policy. The initial value counts against
// bufferCapacity the same as any other buffered value; queued emitters are
// preserved, never dropped to make room for it.
func (s *Stream[T]) insertInitialValueLocked() {
	head := s.head()
	bufferEnd := head + int64(s.bufferSize)
	queueEnd := bufferEnd + int64(s.queueSize)

	if s.queueSize > 0 {
		s.ring.Grow(head, int(queueEnd-head)+1)
		for i := queueEnd; i > bufferEnd; i-- {
			e := s.ring.Get(i - 1)
			s.ring.Clear(i - 1)
			if e.kind == entryEmitter {
				e.emitter.index = i
			}
			s.ring.Set(i, e)
		}
	} else {
		s.ring.Grow(head, int(bufferEnd-head)+1)
	}

	s.ring.Set(bufferEnd, entry[T]{kind: entryValue, value: s.initialValue})
	s.bufferSize++

	for s.bufferSize > s.bufferCapacity {
		s.dropOldestLocked()
	}
}

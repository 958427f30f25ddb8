package sharedstream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errStopCollect = errors.New("stop collecting")

func collectN[T any](ctx context.Context, s *Stream[T], n int) ([]T, <-chan error) {
	done := make(chan error, 1)
	got := make([]T, n)
	go func() {
		i := 0
		done <- s.Collect(ctx, CollectorFunc[T](func(v T) error {
			got[i] = v
			i++
			if i == n {
				return errStopCollect
			}
			return nil
		}))
	}()
	return got, done
}

func TestNew_ValidatesConfig(t *testing.T) {
	_, err := New[int](Config[int]{Replay: -1})
	require.ErrorIs(t, err, ErrNegativeReplay)

	_, err = New[int](Config[int]{ExtraBuffer: -1})
	require.ErrorIs(t, err, ErrNegativeBuffer)

	initial := 5
	_, err = New[int](Config[int]{Replay: 0, InitialValue: &initial})
	require.ErrorIs(t, err, ErrInitialValueWithoutReplay)

	_, err = New[int](Config[int]{Replay: 0, ExtraBuffer: 0, OnOverflow: OverflowDropOldest})
	require.ErrorIs(t, err, ErrZeroCapacitySuspend)

	var cfgErr *ConfigError
	_, err = New[int](Config[int]{Replay: -1})
	require.True(t, errors.As(err, &cfgErr))
	require.Equal(t, "replay", cfgErr.Field)
}

func TestTryEmit_NoSubscribersNoReplayDiscardsValue(t *testing.T) {
	s, err := New[string](Config[string]{Replay: 0})
	require.NoError(t, err)

	require.True(t, s.TryEmit("OK"))
	require.Empty(t, s.ReplaySnapshot())
}

func TestCollect_ReplayDeliversBufferedValue(t *testing.T) {
	s, err := New[string](Config[string]{Replay: 1})
	require.NoError(t, err)
	require.True(t, s.TryEmit("OK"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got, done := collectN(ctx, s, 1)

	select {
	case err := <-done:
		require.ErrorIs(t, err, errStopCollect)
	case <-time.After(time.Second):
		t.Fatal("collect never observed the replayed value")
	}
	require.Equal(t, []string{"OK"}, got)
}

// S1 — zero replay, no subscribers at emit time: none of ten late
// subscribers observes the value, and the replay snapshot stays empty.
func TestScenario_S1_ZeroReplayNoSubscribers(t *testing.T) {
	s, err := New[string](Config[string]{Replay: 0})
	require.NoError(t, err)
	require.True(t, s.TryEmit("OK"))
	require.Empty(t, s.ReplaySnapshot())

	var wg sync.WaitGroup
	var mu sync.Mutex
	var observed []string
	for i := 0; i < 10; i++ {
		wg.Add(1)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		go func() {
			defer wg.Done()
			defer cancel()
			_ = s.Collect(ctx, CollectorFunc[string](func(v string) error {
				mu.Lock()
				observed = append(observed, v)
				mu.Unlock()
				return nil
			}))
		}()
	}
	wg.Wait()
	require.Empty(t, observed)
	require.Empty(t, s.ReplaySnapshot())
}

// S2 — replay of one: a subscriber attached before the first value sees both
// values; nine more subscribers attaching between the two emits each see
// exactly the same two values in order.
func TestScenario_S2_ReplayOneLateSubscribers(t *testing.T) {
	s, err := New[string](Config[string]{Replay: 1})
	require.NoError(t, err)

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	gotA, doneA := collectN(ctxA, s, 2)

	require.True(t, s.TryEmit("OK"))
	require.Eventually(t, func() bool {
		return len(s.ReplaySnapshot()) == 1
	}, time.Second, time.Millisecond)

	type lateSub struct {
		got  []string
		done <-chan error
	}
	late := make([]*lateSub, 9)
	for i := range late {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		got, done := collectN(ctx, s, 2)
		late[i] = &lateSub{got: got, done: done}
	}

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.registry.activeCount() == 10 && s.minCollectorIndex == 1
	}, time.Second, time.Millisecond, "all ten subscribers must attach and take \"OK\" before \"DONE\" is emitted")

	require.True(t, s.TryEmit("DONE"))

	select {
	case err := <-doneA:
		require.ErrorIs(t, err, errStopCollect)
	case <-time.After(time.Second):
		t.Fatal("subscriber A never completed")
	}
	require.Equal(t, []string{"OK", "DONE"}, gotA)

	for i, sub := range late {
		select {
		case err := <-sub.done:
			require.ErrorIs(t, err, errStopCollect, "subscriber %d", i)
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d never completed", i)
		}
		require.Equal(t, []string{"OK", "DONE"}, sub.got, "subscriber %d", i)
	}
}

// S4 — backpressure with DROP_OLDEST: a subscriber parked at the very start
// of the stream has its cursor snapped forward as the producer races ahead
// without ever suspending, and resumes from the two values still in the
// buffer once it finally reads.
func TestScenario_S4_BackpressureDropOldest(t *testing.T) {
	s, err := New[int](Config[int]{Replay: 0, ExtraBuffer: 2, OnOverflow: OverflowDropOldest})
	require.NoError(t, err)

	s.mu.Lock()
	id, h := s.registry.allocate()
	s.subCount.set(s.registry.activeCount())
	s.mu.Unlock()

	for i := 0; i < 10; i++ {
		require.True(t, s.TryEmit(i))
	}

	s.mu.Lock()
	cursor := h.cursor
	s.mu.Unlock()
	require.Equal(t, int64(8), cursor, "slow subscriber's cursor must be snapped to the new head")

	var got []int
	for len(got) < 2 {
		s.mu.Lock()
		v, ok, resumes, wakes := s.peekTakeLocked(h)
		s.mu.Unlock()
		fireResumes(resumes)
		fireConsumerWakes(wakes)
		require.True(t, ok)
		got = append(got, v)
	}
	require.Equal(t, []int{8, 9}, got)

	s.mu.Lock()
	s.registry.release(id)
	s.mu.Unlock()
}

// S5 — rendezvous emitter cancellation: five producers suspend with no
// subscribers present; cancelling the third's Emit call tombstones it, and a
// subscriber attaching afterward observes the remaining four in order with
// the cancelled value silently skipped.
func TestScenario_S5_RendezvousEmitterCancellation(t *testing.T) {
	s, err := New[string](Config[string]{Replay: 0, ExtraBuffer: 0, OnOverflow: OverflowSuspend})
	require.NoError(t, err)

	type pending struct {
		val  string
		done chan error
	}
	ctx3, cancel3 := context.WithCancel(context.Background())
	defer cancel3()

	p1 := pending{"v1", make(chan error, 1)}
	p2 := pending{"v2", make(chan error, 1)}
	p3 := pending{"v3", make(chan error, 1)}
	p4 := pending{"v4", make(chan error, 1)}
	p5 := pending{"v5", make(chan error, 1)}

	// each producer is started only after the previous one has queued, so
	// the queue holds v1..v5 in that order.
	queued := func(n int) func() bool {
		return func() bool {
			s.mu.Lock()
			defer s.mu.Unlock()
			return s.queueSize == n
		}
	}
	go func() { p1.done <- s.Emit(context.Background(), p1.val) }()
	require.Eventually(t, queued(1), time.Second, time.Millisecond)
	go func() { p2.done <- s.Emit(context.Background(), p2.val) }()
	require.Eventually(t, queued(2), time.Second, time.Millisecond)
	go func() { p3.done <- s.Emit(ctx3, p3.val) }()
	require.Eventually(t, queued(3), time.Second, time.Millisecond)
	go func() { p4.done <- s.Emit(context.Background(), p4.val) }()
	require.Eventually(t, queued(4), time.Second, time.Millisecond)
	go func() { p5.done <- s.Emit(context.Background(), p5.val) }()

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.queueSize == 5
	}, time.Second, time.Millisecond, "all five emitters must suspend with no subscribers")

	cancel3()
	select {
	case err := <-p3.done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled emitter never observed its context error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got, done := collectN(ctx, s, 4)

	select {
	case err := <-done:
		require.ErrorIs(t, err, errStopCollect)
	case <-time.After(time.Second):
		t.Fatal("subscriber never observed the remaining four values")
	}
	require.Equal(t, []string{"v1", "v2", "v4", "v5"}, got)

	for _, p := range []pending{p1, p2, p4, p5} {
		select {
		case err := <-p.done:
			require.NoError(t, err, "emitter for %s must resume cleanly", p.val)
		case <-time.After(time.Second):
			t.Fatalf("emitter for %s never resumed", p.val)
		}
	}
}

func TestResetReplay_IsIdempotentWithoutAnEmit(t *testing.T) {
	initial := 0
	s, err := New[int](Config[int]{Replay: 1, InitialValue: &initial})
	require.NoError(t, err)
	require.Equal(t, []int{0}, s.ReplaySnapshot())

	s.ResetReplay()
	snap1 := s.ReplaySnapshot()
	s.ResetReplay()
	snap2 := s.ReplaySnapshot()
	require.Equal(t, snap1, snap2)
	require.Equal(t, []int{0}, snap2)
}

func TestResetReplay_ClearsBufferedValues(t *testing.T) {
	s, err := New[int](Config[int]{Replay: 2})
	require.NoError(t, err)
	require.True(t, s.TryEmit(1))
	require.True(t, s.TryEmit(2))
	require.Equal(t, []int{1, 2}, s.ReplaySnapshot())

	s.ResetReplay()
	require.Empty(t, s.ReplaySnapshot())
}

func TestSubscriptionCount_TracksActiveCollectors(t *testing.T) {
	s, err := New[int](Config[int]{Replay: 0})
	require.NoError(t, err)
	require.Equal(t, 0, s.SubscriptionCount())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = s.Collect(ctx, CollectorFunc[int](func(v int) error { return nil }))
	}()

	require.Eventually(t, func() bool { return s.SubscriptionCount() == 1 }, time.Second, time.Millisecond)
	cancel()
	require.Eventually(t, func() bool { return s.SubscriptionCount() == 0 }, time.Second, time.Millisecond)
}

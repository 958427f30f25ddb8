package sharedstream

// slotHandle is one subscriber's cursor into the ring, plus the wakeup
// channel for a collector currently suspended with nothing left to peek.
// wake is nil whenever the slot is not currently suspended.
type slotHandle struct {
	cursor int64
	free   bool
	wake   chan struct{}
}

// slotRegistry is a grow-only array of slot handles with a free list,
// mirroring the indexed-store-plus-scavenging shape used for callback
// registries elsewhere in the pack, minus the weak-pointer GC scavenging —
// this registry frees slots explicitly, when Collect returns, rather than
// waiting on a finalizer. It carries no lock of its own: every method here
// is called with the owning Stream's instance lock already held, per the
// single-lock discipline that governs the whole shared-stream core.
type slotRegistry[T any] struct {
	slots  []*slotHandle
	free   []int
	active int
}

func (r *slotRegistry[T]) allocate() (id int, h *slotHandle) {
	r.active++
	if n := len(r.free); n > 0 {
		id = r.free[n-1]
		r.free = r.free[:n-1]
		h = r.slots[id]
		h.free = false
		h.wake = nil
		return id, h
	}
	h = &slotHandle{}
	id = len(r.slots)
	r.slots = append(r.slots, h)
	return id, h
}

func (r *slotRegistry[T]) release(id int) {
	h := r.slots[id]
	if h.free {
		return
	}
	h.free = true
	h.cursor = 0
	h.wake = nil
	r.free = append(r.free, id)
	r.active--
}

func (r *slotRegistry[T]) activeCount() int {
	return r.active
}

func (r *slotRegistry[T]) forEachActive(f func(h *slotHandle)) {
	for _, h := range r.slots {
		if !h.free {
			f(h)
		}
	}
}

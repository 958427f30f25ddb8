package sharedstream

// entryKind tags what occupies a logical slot in the ring: an already
// delivered/replayable value, a suspended producer still waiting for its
// value to be admitted, or a cancelled producer's tombstone.
type entryKind uint8

const (
	entryEmpty entryKind = iota
	entryValue
	entryEmitter
	entryTombstone
)

// entry is the tagged-union element stored in ring. Only one of value /
// emitter is meaningful, selected by kind.
type entry[T any] struct {
	kind    entryKind
	value   T
	emitter *emitterRecord[T]
}

// emitterRecord backs a suspended Emit call: once the value is admitted the
// stream writes nil to resume exactly once, from outside the instance lock.
// Cancellation never goes through resume; Emit observes it on its own ctx.
type emitterRecord[T any] struct {
	stream    *Stream[T]
	index     int64
	value     T
	resume    chan error
	cancelled bool
}

// fireResumes fires a batch of producer continuations collected under the
// lock, after it has been released. A resumed emitter's value has already
// been admitted to the buffer by the time its continuation fires, so
// success is unconditional.
func fireResumes(resumes []chan error) {
	for _, ch := range resumes {
		ch <- nil
	}
}

func fireConsumerWakes(wakes []chan struct{}) {
	for _, w := range wakes {
		close(w)
	}
}

// Package sharedstream implements a hot, multicast, replay-capable value
// stream (a "shared stream") and the sharing driver that turns a cold,
// single-shot producer into one under a configurable start/stop policy.
//
// # Architecture
//
// A [Stream] is built around a bounded, slot-indexed circular buffer that
// simultaneously retains the most recent values for late subscribers
// (replay), buffers additional values for slow subscribers, and — under the
// [OverflowSuspend] policy — suspends producers until a subscriber frees
// space. A single instance lock serializes every mutation; continuations
// for resumed producers and woken subscribers are always collected inside
// the lock and fired outside it (see "Concurrency" below).
//
// [Share] drives a [Source] into a [Stream] under a [StartPolicy]: it
// listens to the stream's subscription count, translates it through the
// policy into a command stream ([CommandStart]/[CommandStop]/
// [CommandStopAndReset]), and starts or cancels collection of the upstream
// accordingly, cancelling the previous handler before acting on any new
// command.
//
// [State] is the degenerate single-value configuration (replay 1,
// drop-oldest, distinct-by-equality), analogous to a broadcast variable.
//
// # Concurrency
//
// [Stream] methods are safe for concurrent use. [Stream.Emit] suspends the
// caller only when the buffer is full under [OverflowSuspend] (or always,
// in rendezvous mode — zero total buffer capacity). [Stream.Collect]
// suspends the caller only when no value is yet peekable. Every other
// method is non-blocking. Cancelling the context passed to [Stream.Emit] or
// [Stream.Collect] is observed promptly and is not treated as an error by
// the stream itself.
//
// # Usage
//
//	stream, err := sharedstream.New(sharedstream.Config[int]{Replay: 1})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	scope := sharedstream.NewScope(ctx)
//	sharedstream.Share(ctx, scope, upstream, stream, sharedstream.Lazy())
//
//	err = stream.Collect(ctx, sharedstream.CollectorFunc[int](func(v int) error {
//	    fmt.Println(v)
//	    return nil
//	}))
package sharedstream

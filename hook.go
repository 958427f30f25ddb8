package sharedstream

// hookedCollector wraps a Collector so action runs exactly once, after the
// slot is allocated but before any upstream value is delivered to sink.
type hookedCollector[T any] struct {
	Collector[T]
	action func(sink Collector[T]) error
}

// OnSubscription wraps sink so action runs exactly once per subscription,
// right after the slot is allocated and before any value is drawn from the
// stream. action receives sink itself, so it may emit synthetic values
// ahead of the real stream.
func OnSubscription[T any](sink Collector[T], action func(sink Collector[T]) error) Collector[T] {
	return &hookedCollector[T]{Collector: sink, action: action}
}

// runSubscriptionHooks executes every hook's action exactly once. Hooks
// compose outside-in: the outer action runs first, then (after it returns)
// the wrapped collector's own hook, if any, runs in turn.
func runSubscriptionHooks[T any](c Collector[T]) error {
	h, ok := c.(*hookedCollector[T])
	if !ok {
		return nil
	}
	if err := h.action(h.Collector); err != nil {
		return err
	}
	return runSubscriptionHooks[T](h.Collector)
}

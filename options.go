package sharedstream

// streamOptions collects the optional, non-validated configuration applied
// by Option values — presently just the logger, following the same
// "functional option mutates a private config struct" shape used for the
// event loop's options in the pack.
type streamOptions struct {
	logger *Logger
}

// Option configures a Stream constructed by New, beyond the required
// Config fields.
type Option[T any] func(*streamOptions)

// WithLogger injects a structured logger for the stream to use for its
// Debug-level events (construction, values dropped under
// OverflowDropLatest, replay resets) and for the Info-level command events
// of a sharing driver feeding it. A nil logger is treated the same as
// omitting the option.
func WithLogger[T any](l *Logger) Option[T] {
	return func(o *streamOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

func resolveOptions[T any](opts []Option[T]) streamOptions {
	var o streamOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

package sharedstream

import (
	"context"
	"io"
)

// Source is the Go-level shape of an upstream cold producer: a function
// that, each time it is called, collects values until it is exhausted,
// fails, or ctx is cancelled. emit delivers one value downstream; a Source
// must stop and return emit's error if it returns one.
type Source[T any] func(ctx context.Context, emit func(v T) error) error

// FromChannel adapts a channel into a Source: every value received from ch
// is emitted in order, until ch closes (mirroring the closed-channel
// convention used elsewhere in the pack for a bounded blocking receive) or
// ctx is cancelled. Providing a nil ch panics.
func FromChannel[T any](ch <-chan T) Source[T] {
	if ch == nil {
		panic("sharedstream: nil channel")
	}
	return func(ctx context.Context, emit func(T) error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case v, ok := <-ch:
				if !ok {
					return nil
				}
				if err := emit(v); err != nil {
					return err
				}
			}
		}
	}
}

// FromFunc adapts a repeatable poll function into a Source: fn is called
// repeatedly, each result emitted in turn, until fn returns io.EOF (treated
// as a clean end, not an error) or a non-nil error other than io.EOF, or
// ctx is cancelled. Providing a nil fn panics.
func FromFunc[T any](fn func(ctx context.Context) (T, error)) Source[T] {
	if fn == nil {
		panic("sharedstream: nil func")
	}
	return func(ctx context.Context, emit func(T) error) error {
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			v, err := fn(ctx)
			if err != nil {
				if err == io.EOF {
					return nil
				}
				return err
			}
			if err := emit(v); err != nil {
				return err
			}
		}
	}
}

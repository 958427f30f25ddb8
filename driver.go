package sharedstream

import (
	"context"
	"errors"
)

// Share runs upstream under policy, feeding every value it produces into
// shared, for as long as scope is open. It launches exactly one goroutine
// (via scope.Go); cancelling scope's context, or an upstream/policy
// failure, ends it. Cancel-latest semantics are enforced here: whenever a
// new Command arrives, whatever upstream collection is currently running
// (started by a prior CommandStart) is cancelled and joined before the new
// command is acted on.
func Share[T any](ctx context.Context, scope *Scope, upstream Source[T], shared Mutable[T], policy StartPolicy) {
	type streamLike interface {
		subscriptionSignal() *intSignal
		ResetReplay()
	}

	logger := defaultLogger
	if s, ok := shared.(*Stream[T]); ok {
		logger = s.logger
	}

	scope.Go(func(ctx context.Context) error {
		sl, ok := shared.(streamLike)
		if !ok {
			<-ctx.Done()
			return ctx.Err()
		}
		defer sl.ResetReplay()

		commands := make(chan Command)
		policyErr := make(chan error, 1)
		go func() { policyErr <- policy.Command(ctx, sl.subscriptionSignal(), commands) }()

		upstreamErr := make(chan error, 1)
		var cancelCurrent context.CancelFunc
		var currentDone chan struct{}
		stopCurrent := func() {
			if cancelCurrent != nil {
				cancelCurrent()
				<-currentDone
				cancelCurrent = nil
				currentDone = nil
				select {
				case <-upstreamErr:
				default:
				}
			}
		}
		defer stopCurrent()

		hasLast := false
		var lastCmd Command

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()

			case err := <-policyErr:
				stopCurrent()
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return nil
				}
				return err

			case err := <-upstreamErr:
				stopCurrent()
				return err

			case cmd := <-commands:
				if hasLast && cmd == lastCmd {
					continue
				}
				hasLast = true
				lastCmd = cmd

				stopCurrent()
				logger.Info().Str("command", cmd.String()).Log("sharing driver command")

				switch cmd {
				case CommandStart:
					cctx, cancel := context.WithCancel(ctx)
					done := make(chan struct{})
					cancelCurrent = cancel
					currentDone = done
					go func() {
						defer close(done)
						err := upstream(cctx, func(v T) error {
							return shared.Emit(cctx, v)
						})
						if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
							upstreamErr <- err
						}
					}()
				case CommandStop:
					// already stopped above; replay window is untouched.
				case CommandStopAndReset:
					sl.ResetReplay()
				}
			}
		}
	})
}

// SharedOf constructs a Stream from cfg and immediately shares upstream
// into it under policy, returning the read-only view.
func SharedOf[T any](ctx context.Context, upstream Source[T], scope *Scope, cfg Config[T], policy StartPolicy) (Readable[T], error) {
	s, err := New[T](cfg)
	if err != nil {
		return nil, err
	}
	Share[T](ctx, scope, upstream, s, policy)
	return s, nil
}

// StateOf builds a State seeded with initial and shares upstream into it
// under policy.
func StateOf[T comparable](ctx context.Context, upstream Source[T], scope *Scope, policy StartPolicy, initial T) (StateReadable[T], error) {
	st, err := NewState[T](initial)
	if err != nil {
		return nil, err
	}
	Share[T](ctx, scope, upstream, st.Stream, policy)
	return st, nil
}

var errFirstValueObserved = errors.New("sharedstream: first value observed")

// StateAwaitingFirst shares upstream eagerly, suspending the caller until
// the first value is observed, then returns a state stream rooted at that
// value. It is the Go-level answer to a state stream that has no sensible
// default before upstream produces anything.
func StateAwaitingFirst[T comparable](ctx context.Context, upstream Source[T], scope *Scope) (StateReadable[T], error) {
	core, err := New[T](Config[T]{Replay: 1, OnOverflow: OverflowDropOldest})
	if err != nil {
		return nil, err
	}
	Share[T](ctx, scope, upstream, core, Eager())

	err = core.Collect(ctx, CollectorFunc[T](func(v T) error {
		return errFirstValueObserved
	}))
	if err != nil && !errors.Is(err, errFirstValueObserved) {
		return nil, err
	}
	return &State[T]{Stream: core}, nil
}

package sharedstream

import (
	"context"
	"time"
)

// Command is an instruction the sharing driver issues to start, stop, or
// stop-and-discard the upstream collection it supervises.
type Command uint8

const (
	// CommandStart begins (or resumes) collecting the upstream.
	CommandStart Command = iota
	// CommandStop cancels the current collection, if any, leaving the
	// shared stream's replay window intact.
	CommandStop
	// CommandStopAndReset cancels the current collection and clears the
	// replay window.
	CommandStopAndReset
)

func (c Command) String() string {
	switch c {
	case CommandStart:
		return "start"
	case CommandStop:
		return "stop"
	case CommandStopAndReset:
		return "stop_and_reset"
	default:
		return "command(?)"
	}
}

// StartPolicy turns a stream's subscription-count signal into a stream of
// Commands for the sharing driver to act on. Command must respect
// cancel-latest semantics from the driver's perspective: whenever count
// changes, any commands the policy is about to emit as a result supersede
// ones still in flight from the prior count value. Command returns when ctx
// is cancelled.
type StartPolicy interface {
	Command(ctx context.Context, count *intSignal, out chan<- Command) error
}

// StartPolicyFunc adapts a plain function to StartPolicy.
type StartPolicyFunc func(ctx context.Context, count *intSignal, out chan<- Command) error

func (f StartPolicyFunc) Command(ctx context.Context, count *intSignal, out chan<- Command) error {
	return f(ctx, count, out)
}

func sendCommand(ctx context.Context, out chan<- Command, cmd Command) bool {
	select {
	case out <- cmd:
		return true
	case <-ctx.Done():
		return false
	}
}

// Eager starts collection immediately and never stops it.
func Eager() StartPolicy {
	return StartPolicyFunc(func(ctx context.Context, _ *intSignal, out chan<- Command) error {
		if !sendCommand(ctx, out, CommandStart) {
			return ctx.Err()
		}
		<-ctx.Done()
		return ctx.Err()
	})
}

// Lazy waits for the first subscriber before starting collection, then
// never stops it.
func Lazy() StartPolicy {
	return StartPolicyFunc(func(ctx context.Context, count *intSignal, out chan<- Command) error {
		for {
			val, changed := count.Watch()
			if val > 0 {
				if !sendCommand(ctx, out, CommandStart) {
					return ctx.Err()
				}
				<-ctx.Done()
				return ctx.Err()
			}
			select {
			case <-changed:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
}

// WhileSubscribed starts collection when the first subscriber attaches and
// stops it stopDelay after the last one detaches. If replayExpiration is
// positive, the stream keeps its replay window for that additional
// duration after stopping before it is cleared (CommandStopAndReset);
// otherwise the replay window is cleared immediately on stop. Every count
// change cancels whatever the policy was about to do in response to the
// previous one (cancel-latest / "restart the debounce").
func WhileSubscribed(stopDelay, replayExpiration time.Duration) (StartPolicy, error) {
	if stopDelay < 0 || replayExpiration < 0 {
		return nil, newConfigError("while_subscribed", ErrNegativeDelay)
	}
	return StartPolicyFunc(func(ctx context.Context, count *intSignal, out chan<- Command) error {
		const none Command = 255
		last := none
		started := false

		emit := func(cmd Command) bool {
			if cmd == last {
				return true
			}
			if !sendCommand(ctx, out, cmd) {
				return false
			}
			last = cmd
			return true
		}

		for {
			val, changed := count.Watch()
			branchCtx, cancel := context.WithCancel(ctx)
			done := make(chan struct{})

			go func(val int) {
				defer close(done)
				defer cancel()

				if val > 0 {
					if emit(CommandStart) {
						started = true
					}
					return
				}
				if !started {
					return
				}

				select {
				case <-branchCtx.Done():
					return
				case <-time.After(stopDelay):
				}

				if replayExpiration > 0 {
					if !emit(CommandStop) {
						return
					}
					select {
					case <-branchCtx.Done():
						return
					case <-time.After(replayExpiration):
					}
				}

				emit(CommandStopAndReset)
			}(val)

			select {
			case <-changed:
				cancel()
				<-done
			case <-done:
				cancel()
			case <-ctx.Done():
				cancel()
				<-done
				return ctx.Err()
			}
		}
	}), nil
}

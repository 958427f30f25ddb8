package sharedstream

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// Scope is the minimal task-launching collaborator the sharing driver runs
// under: a context-scoped goroutine launcher with a Wait/Close, modelled on
// the ctx+cancel+done-channel lifecycle used for background work elsewhere
// in the pack, but backed by errgroup so a failure in any launched task is
// captured and surfaced through Wait rather than silently dropped.
type Scope struct {
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewScope derives a Scope from ctx. Cancelling ctx, or calling Close,
// cancels every task launched with Go.
func NewScope(ctx context.Context) *Scope {
	group, gctx := errgroup.WithContext(ctx)
	gctx, cancel := context.WithCancel(gctx)
	return &Scope{ctx: gctx, cancel: cancel, group: group}
}

// Go launches fn in a new goroutine. If fn returns a non-nil error, the
// scope's context is cancelled and the error is returned from Wait.
func (s *Scope) Go(fn func(ctx context.Context) error) {
	s.group.Go(func() error {
		return fn(s.ctx)
	})
}

// Close cancels every task launched by Go.
func (s *Scope) Close() {
	s.cancel()
}

// Wait blocks until every launched task returns, then returns the first
// non-nil, non-context-cancellation error encountered, if any. Cancelling
// the scope (via Close, or the parent context) is ordinary shutdown, not a
// failure, so it is not reported.
func (s *Scope) Wait() error {
	err := s.group.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

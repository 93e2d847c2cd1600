// Package guard provides scope-exit helpers used by the compaction and
// flush coordinators to guarantee cleanup runs exactly once, on every exit
// path including a panicking one.
package guard

import "context"

// Action is a zero-argument cleanup action.
type Action func()

// Deferred holds an action that fires exactly once. Register it immediately
// after the state change it must undo, then `defer d.Run()`: Go's defer runs
// during panic unwinding same as on a normal return, so a single Deferred
// covers every exit path without a recover().
type Deferred struct {
	action Action
}

// New returns a Deferred wrapping action. A nil action is a no-op guard.
func New(action Action) *Deferred {
	return &Deferred{action: action}
}

// Run fires the guarded action if it hasn't already run or been cancelled.
func (d *Deferred) Run() {
	if d == nil || d.action == nil {
		return
	}
	action := d.action
	d.action = nil
	action()
}

// Cancel suppresses the guarded action; a later Run becomes a no-op. Used
// when a caller wants to take over responsibility for the cleanup itself.
func (d *Deferred) Cancel() {
	if d == nil {
		return
	}
	d.action = nil
}

// Notifier is a single-slot wakeup primitive: Notify is idempotent until
// consumed by Wait, matching tokio::sync::Notify's semantics used by the
// reference summary-writer loop.
type Notifier struct {
	ch chan struct{}
}

// NewNotifier returns a ready-to-use Notifier.
func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan struct{}, 1)}
}

// Notify wakes one pending (or future) Wait call. Repeated calls before the
// wakeup is consumed collapse into a single pending notification.
func (n *Notifier) Notify() {
	select {
	case n.ch <- struct{}{}:
	default:
	}
}

// Wait blocks until Notify has been called at least once since the last
// Wait, or ctx is done.
func (n *Notifier) Wait(ctx context.Context) error {
	select {
	case <-n.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

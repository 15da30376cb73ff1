// Package async provides a tagged result type for in-flight computations.
package async

import (
	"context"
	"errors"
	"fmt"
)

// State identifies the active case of a Status.
type State uint8

const (
	StatePending State = iota
	StateResolved
	StateRejected
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateResolved:
		return "resolved"
	case StateRejected:
		return "rejected"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Status is the outcome of one asynchronous operation. Exactly one of
// pending, resolved or rejected is active. Values are immutable; a
// transition produces a new Status.
type Status[T any] struct {
	state State
	data  T
	err   error
}

// Pending returns a status for an operation that has not completed.
func Pending[T any]() Status[T] {
	return Status[T]{state: StatePending}
}

// Resolved returns a successful status carrying data.
func Resolved[T any](data T) Status[T] {
	return Status[T]{state: StateResolved, data: data}
}

// Rejected returns a failed status. A nil error is replaced by ErrNilRejection
// so that a rejected status always carries a cause.
func Rejected[T any](err error) Status[T] {
	if err == nil {
		err = ErrNilRejection
	}
	return Status[T]{state: StateRejected, err: err}
}

// FromResult maps a (value, error) pair onto a terminal status.
func FromResult[T any](data T, err error) Status[T] {
	if err != nil {
		return Rejected[T](err)
	}
	return Resolved(data)
}

// ErrNilRejection marks a status rejected without a cause.
var ErrNilRejection = errors.New("async: rejected without error")

// State returns the active case.
func (s Status[T]) State() State { return s.state }

// IsTerminal reports whether the status is resolved or rejected.
func (s Status[T]) IsTerminal() bool { return s.state != StatePending }

// Then transitions a pending status to next. Terminal statuses never
// transition; in that case the receiver is returned with ok=false.
func (s Status[T]) Then(next Status[T]) (Status[T], bool) {
	if s.state != StatePending || next.state == StatePending {
		return s, false
	}
	return next, true
}

// Match calls exactly one handler according to the active case. Every
// handler must be non-nil: consumers are required to handle all three cases.
func Match[T, R any](s Status[T], onPending func() R, onResolved func(T) R, onRejected func(error) R) R {
	if onPending == nil || onResolved == nil || onRejected == nil {
		panic("async: Match requires a handler for every state")
	}
	switch s.state {
	case StateResolved:
		return onResolved(s.data)
	case StateRejected:
		return onRejected(s.err)
	default:
		return onPending()
	}
}

// Result unwraps a terminal status. Pending statuses return ErrPending.
func (s Status[T]) Result() (T, error) {
	switch s.state {
	case StateResolved:
		return s.data, nil
	case StateRejected:
		var zero T
		return zero, s.err
	default:
		var zero T
		return zero, ErrPending
	}
}

// ErrPending is returned by Result for a status that has not completed.
var ErrPending = errors.New("async: operation pending")

// Go runs fn in its own goroutine and delivers its single terminal status on
// the returned channel.
func Go[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) <-chan Status[T] {
	ch := make(chan Status[T], 1)
	go func() {
		ch <- FromResult(fn(ctx))
	}()
	return ch
}

// ErrNoResult is returned by Await when the channel closes empty.
var ErrNoResult = errors.New("async: channel closed without result")

// Await blocks until a terminal status arrives on ch or ctx is done.
func Await[T any](ctx context.Context, ch <-chan Status[T]) Status[T] {
	select {
	case s, ok := <-ch:
		if !ok {
			return Rejected[T](ErrNoResult)
		}
		return s
	case <-ctx.Done():
		return Rejected[T](ctx.Err())
	}
}

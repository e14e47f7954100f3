// Package session tracks the active session identifier through a
// context-scoped stack, so nested agent invocations restore the
// caller's session when they finish.
package session

import (
	"context"
	"errors"
)

type contextKey int

const stackKey contextKey = iota

// ErrNoSession is returned when an operation needs an active session
// and none has been pushed onto the context.
var ErrNoSession = errors.New("session: no active session")

// ErrEmptyID is returned when a caller tries to activate a session
// with an empty identifier.
var ErrEmptyID = errors.New("session: empty session id")

// Push returns a context with id as the active session. The previously
// active session, if any, stays on the stack and becomes active again
// after a matching Pop.
func Push(ctx context.Context, id string) context.Context {
	stack := stackFrom(ctx)
	next := make([]string, len(stack), len(stack)+1)
	copy(next, stack)
	next = append(next, id)
	return context.WithValue(ctx, stackKey, next)
}

// Current reports the active session id, if any.
func Current(ctx context.Context) (string, bool) {
	stack := stackFrom(ctx)
	if len(stack) == 0 {
		return "", false
	}
	return stack[len(stack)-1], true
}

// Require returns the active session id or ErrNoSession.
func Require(ctx context.Context) (string, error) {
	id, ok := Current(ctx)
	if !ok {
		return "", ErrNoSession
	}
	return id, nil
}

// Pop returns a context with the most recent session removed, making
// whatever was active before the matching Push current again. Popping
// with nothing active returns ctx unchanged.
func Pop(ctx context.Context) context.Context {
	stack := stackFrom(ctx)
	if len(stack) == 0 {
		return ctx
	}
	next := make([]string, len(stack)-1)
	copy(next, stack[:len(stack)-1])
	return context.WithValue(ctx, stackKey, next)
}

// Depth reports how many sessions are stacked on the context.
func Depth(ctx context.Context) int {
	return len(stackFrom(ctx))
}

// Scope runs fn with id as the active session. The activation is
// confined to the derived context handed to fn; the caller's context
// is untouched when Scope returns, even if fn fails.
func Scope(ctx context.Context, id string, fn func(context.Context) error) error {
	if id == "" {
		return ErrEmptyID
	}
	return fn(Push(ctx, id))
}

// stackFrom fetches the stack without copying. Callers must not
// mutate the returned slice in place.
func stackFrom(ctx context.Context) []string {
	stack, _ := ctx.Value(stackKey).([]string)
	return stack
}

// Package middleware provides node function wrappers for cross-cutting
// concerns like logging, metrics, and panic recovery.
package middleware

import (
	"context"
	"fmt"

	"github.com/relayworks/relay"
)

// Middleware wraps a node function to modify its behavior.
type Middleware func(relay.NodeFunc) relay.NodeFunc

// Chain combines multiple middlewares into a single middleware.
// Middlewares are applied in reverse order (like function composition).
func Chain(middlewares ...Middleware) Middleware {
	return func(fn relay.NodeFunc) relay.NodeFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			fn = middlewares[i](fn)
		}
		return fn
	}
}

// Apply applies middleware to a node function.
func Apply(fn relay.NodeFunc, middlewares ...Middleware) relay.NodeFunc {
	for _, mw := range middlewares {
		fn = mw(fn)
	}
	return fn
}

// Recover converts a panicking node into a transient failure so one bad
// node cannot take down the whole process.
func Recover() Middleware {
	return func(fn relay.NodeFunc) relay.NodeFunc {
		return func(ctx context.Context, s *relay.State) (out relay.Outcome, err error) {
			defer func() {
				if r := recover(); r != nil {
					out = relay.Outcome{Success: false, Error: fmt.Sprintf("panic: %v", r)}
					err = nil
				}
			}()
			return fn(ctx, s)
		}
	}
}

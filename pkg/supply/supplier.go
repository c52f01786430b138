// Package supply provides deferred values for request definitions.
//
// A value needed by a request, typically an authorization header, is often
// not known when the request is defined. A Supplier describes how to obtain
// the value at send time. The strategy is fixed when the Supplier is created:
//   - Of - a literal value,
//   - Func - a synchronous producer,
//   - ContextFunc - a producer that may block, it receives the context.
//
// Resolve never caches, each call invokes the producer again, so a retried
// or repeated request gets a fresh value.
package supply

import (
	"context"
)

// Supplier provides a value for a request at send time.
//
// Resolve is the single suspension point for all strategies: the context is
// checked first, so resolving with a canceled context fails fast with
// ctx.Err() and the producer is not invoked.
type Supplier[T any] interface {
	Resolve(ctx context.Context) (T, error)
}

// Of creates a Supplier that resolves to the literal value.
func Of[T any](value T) Supplier[T] {
	return literal[T]{value: value}
}

// Func creates a Supplier backed by a synchronous producer.
// The producer is invoked once per Resolve call, its error is returned as is.
func Func[T any](fn func() (T, error)) Supplier[T] {
	return producer[T]{fn: fn}
}

// ContextFunc creates a Supplier backed by a producer that may block,
// for example a token exchange over the network.
// The producer is invoked and awaited once per Resolve call.
func ContextFunc[T any](fn func(ctx context.Context) (T, error)) Supplier[T] {
	return ctxProducer[T]{fn: fn}
}

type literal[T any] struct {
	value T
}

func (v literal[T]) Resolve(ctx context.Context) (T, error) {
	if err := ctx.Err(); err != nil {
		var empty T
		return empty, err
	}
	return v.value, nil
}

type producer[T any] struct {
	fn func() (T, error)
}

func (v producer[T]) Resolve(ctx context.Context) (T, error) {
	if err := ctx.Err(); err != nil {
		var empty T
		return empty, err
	}
	return v.fn()
}

type ctxProducer[T any] struct {
	fn func(ctx context.Context) (T, error)
}

func (v ctxProducer[T]) Resolve(ctx context.Context) (T, error) {
	if err := ctx.Err(); err != nil {
		var empty T
		return empty, err
	}
	return v.fn(ctx)
}

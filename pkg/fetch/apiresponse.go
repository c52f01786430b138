package fetch

import (
	"context"
	"fmt"
)

// APIResponse is the outcome envelope of a typed request.
//
// It has exactly two variants: a success carrying the mapped result, or a
// failure carrying the error. The variant is decided once, when the envelope
// is created, and the envelope is immutable. Metadata of the received
// response is attached to both variants, a failure lacks it only when no
// response was obtained at all.
type APIResponse[T Result] struct {
	result  T
	err     error
	meta    *ResponseMeta
	success bool
}

// NewSuccess creates a success envelope with the mapped result.
func NewSuccess[T Result](result T, meta *ResponseMeta) APIResponse[T] {
	return APIResponse[T]{result: result, meta: meta, success: true}
}

// NewFailure creates a failure envelope. The error cannot be nil.
func NewFailure[T Result](err error, meta *ResponseMeta) APIResponse[T] {
	if err == nil {
		panic(fmt.Errorf("failure requires an error"))
	}
	return APIResponse[T]{err: err, meta: meta}
}

// IsSuccess method returns true for the success variant.
func (r APIResponse[T]) IsSuccess() bool {
	return r.success
}

// Result method returns the mapped result.
// The boolean is false for the failure variant, the result is then the zero value.
func (r APIResponse[T]) Result() (T, bool) {
	return r.result, r.success
}

// ResultOrErr method returns the mapped result, or the error of the failure variant.
func (r APIResponse[T]) ResultOrErr() (T, error) {
	return r.result, r.err
}

// Err method returns the error of the failure variant, nil for the success variant.
func (r APIResponse[T]) Err() error {
	return r.err
}

// Meta method returns the response metadata.
// It is nil only when no response was obtained, for example on a network
// failure or when a header value could not be resolved.
func (r APIResponse[T]) Meta() *ResponseMeta {
	return r.meta
}

// Send executes the request definition through the fetcher and wraps the
// outcome in a typed envelope.
//
// When the definition has no result target, a new T is allocated and used as
// the mapping target, so a plain GET needs no WithResult call:
//
//	envelope := fetch.Send[Branch](ctx, c, spec)
//	if branch, ok := envelope.Result(); ok {
//		...
//	}
func Send[T Result](ctx context.Context, f Fetcher, spec RequestSpec) APIResponse[T] {
	var target *T
	if spec.ResultDef() == nil {
		target = new(T)
		spec = spec.WithResult(target)
	}

	response, err := spec.Send(ctx, f)
	var meta *ResponseMeta
	if response != nil {
		meta = response.Meta()
	}
	if err != nil {
		return NewFailure[T](err, meta)
	}

	if target != nil {
		return NewSuccess[T](*target, meta)
	}
	if result, ok := response.Result().(*T); ok && result != nil {
		return NewSuccess[T](*result, meta)
	}

	// The caller registered a streaming target (io.Writer, *[]byte, ...),
	// the typed result stays the zero value.
	var empty T
	return NewSuccess[T](empty, meta)
}

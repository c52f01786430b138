// Package fetch provides the HTTP client core that generated SDKs call into.
//
// Use RequestSpec interface to define immutable HTTP requests, see NewRequest function.
// Requests are executed by the Fetcher interface.
//
// Client is a default implementation of the Fetcher interface.
// Client is based on the standard net/http package and contains retry and tracing/telemetry support.
// The transport boundary is the FetchFunc type, so the whole pipeline can run
// on a custom transport, a mock, or an in-memory router.
//
// The outcome of a typed request is the APIResponse[T] envelope with exactly
// two variants, success and failure, see the Send function.
//
// APIRequest[R] is a generic type that contains
// target data type to which the API response will be mapped.
// Use NewAPIRequest function to create an APIRequest from a RequestSpec.
//
// RunGroup and WaitGroup are helpers for concurrent requests.
package fetch

import (
	"context"
	"net/http"
)

// FetchFunc is the transport primitive of the Client: it turns a single
// *http.Request into a *http.Response or an error. The request carries the
// URL, method, headers, body and the context with timeout and cancellation,
// so the function needs no other inputs.
//
// Everything above this boundary (headers, retries, decoding, the envelope)
// belongs to the Client, everything below it (sockets, TLS, pooling) belongs
// to the FetchFunc implementation.
type FetchFunc func(req *http.Request) (*http.Response, error)

// RoundTrip implements the http.RoundTripper interface.
func (f FetchFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// RoundTripper adapts an http.RoundTripper to a FetchFunc.
func RoundTripper(rt http.RoundTripper) FetchFunc {
	return rt.RoundTrip
}

// Fetcher represents an HTTP client, the Client is a default implementation using the standard net/http package.
type Fetcher interface {
	// Execute method sends the defined request and returns the response metadata and the mapped result.
	// Type of the return value "result" must be the same as type of the RequestSpec.ResultDef(), otherwise panic will occur.
	//   In Go, this rule cannot be written using generic types yet, methods cannot have generic types.
	//   Execute[R Result](ctx context.Context, spec RequestSpec[R]) (meta *ResponseMeta, result R, err error)
	Execute(ctx context.Context, spec RequestSpec) (meta *ResponseMeta, result any, err error)
}

// Result - any value.
type Result = any

// NoResult type.
type NoResult struct{}

// Sendable is RequestSpec or APIRequest.
type Sendable interface {
	SendOrErr(ctx context.Context, f Fetcher) error
}

// ReqDefinitionError can be used as the Sendable interface.
// So the error will be returned when you try to send the request.
// This simplifies usage, the error is checked only once, in one place.
type ReqDefinitionError struct {
	error
}

func NewReqDefinitionError(err error) Sendable {
	return ReqDefinitionError{error: err}
}

func (v ReqDefinitionError) SendOrErr(_ context.Context, _ Fetcher) error {
	return v
}

func (v ReqDefinitionError) Unwrap() error {
	return v.error
}

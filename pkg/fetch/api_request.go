package fetch

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelTrace "go.opentelemetry.io/otel/trace"
)

const (
	APIRequestSpanName     = "sdkforge.go.api.client.request"
	apiRequestTracerCtxKey = ctxKey("api-request-tracer")
	// extra attributes for DataDog.
	attrSpanKind            = "span.kind"
	attrSpanKindValueClient = "client"
	attrSpanType            = "span.type"
	attrSpanTypeValueHTTP   = "http"
)

// APIRequest is a logical API operation with the response mapped to the generic type R.
// It is composed of one or more Sendable values, typically RequestSpec definitions,
// that are sent in parallel when the APIRequest is sent.
type APIRequest[R Result] interface {
	// WithBefore method registers callback to be executed before the request.
	// If an error is returned, the request is not sent.
	WithBefore(func(ctx context.Context) error) APIRequest[R]
	// WithOnComplete method registers callback to be executed when the request is completed.
	WithOnComplete(func(ctx context.Context, result R, err error) error) APIRequest[R]
	// WithOnSuccess method registers callback to be executed when the request succeeds.
	WithOnSuccess(func(ctx context.Context, result R) error) APIRequest[R]
	// WithOnError method registers callback to be executed when the request fails.
	WithOnError(func(ctx context.Context, err error) error) APIRequest[R]
	// Send sends the request by the fetcher.
	Send(ctx context.Context, f Fetcher) (result R, err error)
	SendOrErr(ctx context.Context, f Fetcher) error
}

type ParallelAPIRequests []Sendable

type withTracer interface {
	Tracer() otelTrace.Tracer
}

// Parallel wraps parallel requests to one Sendable interface.
func Parallel(requests ...Sendable) ParallelAPIRequests {
	return requests
}

func (v ParallelAPIRequests) SendOrErr(ctx context.Context, f Fetcher) error {
	wg := NewWaitGroup(ctx, f)
	for _, r := range v {
		wg.Send(r)
	}
	return wg.Wait()
}

// APIRequestTracerFromContext returns the tracer of the running APIRequest, if any.
// It can be used by an SDK operation to attach its own spans to the request span.
func APIRequestTracerFromContext(ctx context.Context) (otelTrace.Tracer, bool) {
	tracer, found := ctx.Value(apiRequestTracerCtxKey).(otelTrace.Tracer)
	return tracer, found
}

// NewAPIRequest creates an API request with the result mapped to the R type.
// It is composed of one or multiple Sendable (RequestSpec or APIRequest).
func NewAPIRequest[R Result](result R, requests ...Sendable) APIRequest[R] {
	if len(requests) == 0 {
		panic(fmt.Errorf("at least one request must be provided"))
	}
	return &apiRequest[R]{requests: requests, result: result, definedIn: requestDefinedIn()}
}

// NewNoOperationAPIRequest returns an APIRequest that immediately returns a Result without sending any request.
// It is handy in situations where there is no work to be done.
func NewNoOperationAPIRequest[R Result](result R) APIRequest[R] {
	return &apiRequest[R]{result: result, definedIn: requestDefinedIn()}
}

// requestDefinedIn returns the name of the function that created the request,
// for example "myapi.ListItemsRequest". It names the API operation in the telemetry.
func requestDefinedIn() string {
	pc := make([]uintptr, 16)
	n := runtime.Callers(3, pc) // skip Callers, requestDefinedIn and the constructor
	frames := runtime.CallersFrames(pc[:n])
	for {
		frame, more := frames.Next()
		if fn := frame.Function; fn != "" && !strings.Contains(fn, "/pkg/fetch.") {
			if pos := strings.LastIndexByte(fn, '/'); pos >= 0 {
				fn = fn[pos+1:]
			}
			return fn
		}
		if !more {
			return ""
		}
	}
}

// apiRequest implements the generic APIRequest interface.
type apiRequest[R Result] struct {
	requests  []Sendable
	before    []func(ctx context.Context) error
	after     []func(ctx context.Context, result R, err error) error
	result    R
	definedIn string
}

func (r apiRequest[R]) WithBefore(fn func(ctx context.Context) error) APIRequest[R] {
	before := make([]func(ctx context.Context) error, len(r.before), len(r.before)+1)
	copy(before, r.before)
	r.before = append(before, fn)
	return r
}

func (r apiRequest[R]) WithOnComplete(fn func(ctx context.Context, result R, err error) error) APIRequest[R] {
	return r.andAfterListener(fn)
}

func (r apiRequest[R]) WithOnSuccess(fn func(ctx context.Context, result R) error) APIRequest[R] {
	return r.andAfterListener(func(ctx context.Context, result R, err error) error {
		if err == nil {
			err = fn(ctx, result)
		}
		return err
	})
}

func (r apiRequest[R]) WithOnError(fn func(ctx context.Context, err error) error) APIRequest[R] {
	return r.andAfterListener(func(ctx context.Context, result R, err error) error {
		if err != nil {
			err = fn(ctx, err)
		}
		return err
	})
}

func (r apiRequest[R]) andAfterListener(fn func(ctx context.Context, result R, err error) error) APIRequest[R] {
	after := make([]func(ctx context.Context, result R, err error) error, len(r.after), len(r.after)+1)
	copy(after, r.after)
	r.after = append(after, fn)
	return r
}

func (r apiRequest[R]) Send(ctx context.Context, f Fetcher) (result R, err error) {
	// Telemetry
	if len(r.requests) > 0 {
		if tp, ok := f.(withTracer); ok {
			if tracer := tp.Tracer(); tracer != nil {
				var resultType string
				if v := reflect.TypeOf(r.result); v != nil {
					resultType = v.String()
				}
				attrs := []attribute.KeyValue{
					attribute.String(attrSpanKind, attrSpanKindValueClient),
					attribute.String(attrSpanType, attrSpanTypeValueHTTP),
					attribute.Int("api.requests_count", len(r.requests)),
					attribute.String("http.result_type", resultType),
				}
				if r.definedIn != "" {
					attrs = append(attrs,
						attribute.String("resource.name", r.definedIn),
						attribute.String("api.request_defined_in", r.definedIn),
					)
				}
				var span otelTrace.Span
				ctx, span = tracer.Start(
					ctx,
					APIRequestSpanName,
					otelTrace.WithSpanKind(otelTrace.SpanKindClient),
					otelTrace.WithAttributes(attrs...),
				)
				ctx = context.WithValue(ctx, apiRequestTracerCtxKey, tracer)
				defer func() {
					if err != nil {
						span.RecordError(err)
						span.SetStatus(codes.Error, err.Error())
					}
					span.End()
				}()
			}
		}
	}

	// Stop if context has been cancelled
	if err := ctx.Err(); err != nil {
		return r.result, err
	}

	// Invoke "before" listeners
	for _, fn := range r.before {
		if err := fn(ctx); err != nil {
			return r.result, err
		}
	}

	// Stop if context has been cancelled
	if err := ctx.Err(); err != nil {
		return r.result, err
	}

	// Send requests in parallel
	wg := NewWaitGroup(ctx, f)
	for _, request := range r.requests {
		wg.Send(request)
	}

	// Process error by listener, if any
	err = wg.Wait()

	// Invoke "after" listeners
	for _, fn := range r.after {
		// Stop if context has been cancelled
		if err := ctx.Err(); err != nil {
			return r.result, err
		}
		err = fn(ctx, r.result, err)
	}

	return r.result, err
}

func (r apiRequest[R]) SendOrErr(ctx context.Context, f Fetcher) error {
	_, err := r.Send(ctx, f)
	return err
}

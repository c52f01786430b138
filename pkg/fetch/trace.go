package fetch

import (
	"context"
	"net/http"
	"net/http/httptrace"
	"reflect"
	"time"
)

// TraceFactory creates Trace hooks for one request execution.
// It is called by Client.Execute before the request is built, so it can
// inspect the definition and derive a new context, for example to carry
// a telemetry span. Both the context and the trace may be returned unchanged.
type TraceFactory func(ctx context.Context, spec RequestSpec) (context.Context, *Trace)

// Trace is a set of hooks to run at various stages of an outgoing request.
// Hooks of the embedded httptrace.ClientTrace are registered as well.
// Any hook may be nil.
type Trace struct {
	httptrace.ClientTrace // native, low level trace
	// HTTPRequestStart is called when an attempt begins. It includes redirects and retries.
	HTTPRequestStart func(request *http.Request)
	// HTTPRequestDone is called when an attempt completes. It includes redirects and retries.
	HTTPRequestDone func(response *http.Response, err error)
	// HTTPRequestRetry is called before the retry delay.
	HTTPRequestRetry func(attempt int, delay time.Duration)
	// BodyParseStart is called before the response body is mapped to the result or error value.
	BodyParseStart func(response *http.Response)
	// BodyParseDone is called when the body mapping completes, bytes is the decoded body length.
	BodyParseDone func(response *http.Response, bytes int64, result any, err error, parseError error)
	// RequestProcessed is called when the Client.Execute method is done.
	RequestProcessed func(result any, err error)
}

// compose modifies t such that it respects the previously-registered hooks in old.
// Copy of httptrace.compose. The embedded httptrace.ClientTrace is skipped here,
// its hooks are merged natively by httptrace.WithClientTrace.
func (t *Trace) compose(old *Trace) {
	if old == nil {
		return
	}
	tv := reflect.ValueOf(t).Elem()
	ov := reflect.ValueOf(old).Elem()
	structType := tv.Type()
	for i := 0; i < structType.NumField(); i++ {
		tf := tv.Field(i)
		hookType := tf.Type()
		if hookType.Kind() != reflect.Func {
			continue
		}
		of := ov.Field(i)
		if of.IsNil() {
			continue
		}
		if tf.IsNil() {
			tf.Set(of)
			continue
		}

		// Make a copy of tf for tf to call. (Otherwise it
		// creates a recursive call cycle and stack overflows)
		tfCopy := reflect.ValueOf(tf.Interface())

		// We need to call both tf and of in some order.
		newFunc := reflect.MakeFunc(hookType, func(args []reflect.Value) []reflect.Value {
			of.Call(args)
			return tfCopy.Call(args)
		})
		tv.Field(i).Set(newFunc)
	}
}

package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	otelTrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/sdkforge/go-client/pkg/fetch/counter"
	"github.com/sdkforge/go-client/pkg/fetch/decode"
)

// Client is a default and configurable implementation of the Fetcher interface
// by the Go native http.Client. It supports retry and tracing/telemetry.
type Client struct {
	fn             FetchFunc
	baseURL        *url.URL
	header         http.Header
	retry          RetryConfig
	traceFactories []TraceFactory
	tracer         otelTrace.Tracer
}

// New creates a new Client.
func New() Client {
	c := Client{fn: RoundTripper(DefaultTransport()), header: make(http.Header), retry: DefaultRetry()}
	c.header.Set("User-Agent", "sdkforge-go-client")
	c.header.Set("Accept-Encoding", "gzip, br")
	return c
}

// WithBaseURL returns a clone of the Client with base url set.
func (c Client) WithBaseURL(baseURLStr string) Client {
	baseURL, err := url.Parse(baseURLStr)
	if err != nil {
		panic(fmt.Errorf(`base url "%s" is not valid: %w`, baseURLStr, err))
	}
	c.baseURL = baseURL
	return c
}

// WithUserAgent returns a clone of the Client with user agent set.
func (c Client) WithUserAgent(v string) Client {
	c.header = c.header.Clone()
	c.header.Set("User-Agent", v)
	return c
}

// WithHeader returns a clone of the Client with common header set.
func (c Client) WithHeader(key, value string) Client {
	c.header = c.header.Clone()
	c.header.Set(key, value)
	return c
}

// WithHeaders returns a clone of the Client with common headers set.
func (c Client) WithHeaders(headers map[string]string) Client {
	c.header = c.header.Clone()
	for k, v := range headers {
		c.header.Set(k, v)
	}
	return c
}

// WithFetchFunc returns a clone of the Client with the transport function set.
func (c Client) WithFetchFunc(fn FetchFunc) Client {
	if fn == nil {
		panic(fmt.Errorf("fetch function cannot be nil"))
	}
	c.fn = fn
	return c
}

// WithTransport returns a clone of the Client with a HTTP transport set.
func (c Client) WithTransport(transport http.RoundTripper) Client {
	if transport == nil || transport == http.RoundTripper(nil) {
		panic(fmt.Errorf("transport cannot be nil"))
	}
	c.fn = RoundTripper(transport)
	return c
}

// WithRetry returns a clone of the Client with retry config set.
func (c Client) WithRetry(retry RetryConfig) Client {
	c.retry = retry
	return c
}

// AndTrace returns a clone of the Client with an additional trace factory.
// Hooks of the factory registered last are called first.
func (c Client) AndTrace(fn TraceFactory) Client {
	factories := make([]TraceFactory, len(c.traceFactories), len(c.traceFactories)+1)
	copy(factories, c.traceFactories)
	c.traceFactories = append(factories, fn)
	return c
}

// WithTracer returns a clone of the Client with an OpenTelemetry tracer set.
// The tracer is used by APIRequest to wrap a multi-request operation in a span.
func (c Client) WithTracer(tracer otelTrace.Tracer) Client {
	c.tracer = tracer
	return c
}

// Tracer returns the OpenTelemetry tracer set by the WithTracer method, or nil.
func (c Client) Tracer() otelTrace.Tracer {
	return c.tracer
}

// Execute method sends the request definition and returns the mapped result, it implements the Fetcher interface.
func (c Client) Execute(ctx context.Context, spec RequestSpec) (meta *ResponseMeta, result any, err error) {
	// Method cannot be called on an empty value
	if c.fn == nil {
		panic(fmt.Errorf("client value is not initialized"))
	}

	// If method or url is not set, panic occurs. So we get these values first.
	method := spec.Method()
	reqURLStr := spec.URL()

	// Init trace, in reverse order, so hooks of the factory registered last run first
	var trace *Trace
	for i := len(c.traceFactories) - 1; i >= 0; i-- {
		newCtx, t := c.traceFactories[i](ctx, spec)
		ctx = newCtx
		if t == nil {
			continue
		}
		ctx = httptrace.WithClientTrace(ctx, &t.ClientTrace)
		t.compose(trace)
		trace = t
	}

	// Trace request processed, the hook is called on every exit path below
	if trace != nil && trace.RequestProcessed != nil {
		defer func() {
			trace.RequestProcessed(result, err)
		}()
	}

	// Resolve dynamic header values, before the transport is used
	headers, err := resolveHeaderEntries(ctx, spec.HeaderEntries())
	if err != nil {
		return nil, nil, err
	}

	// Replace path parameters
	for k, v := range spec.PathParams() {
		reqURLStr = strings.ReplaceAll(reqURLStr, url.PathEscape("{"+k+"}"), url.PathEscape(v))
	}

	// Convert to absolute url
	var reqURL *url.URL
	if c.baseURL == nil {
		reqURL, err = url.Parse(reqURLStr)
	} else {
		reqURL, err = c.baseURL.Parse(reqURLStr)
	}
	if err != nil {
		return nil, nil, err
	}

	// Set query parameters
	reqURL.RawQuery = spec.QueryParams().Encode()

	// Create request
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), nil)
	if err != nil {
		return nil, nil, err
	}

	// Global headers
	for k, values := range c.header {
		for _, v := range values {
			req.Header.Set(k, v)
		}
	}

	// Request headers, a later entry replaces earlier entries and the global value
	for _, e := range headers {
		// A dynamic header that resolved to no values is omitted
		if e.Supplier != nil && len(e.Values) == 0 {
			continue
		}
		req.Header.Del(e.Name) // clear global and earlier values
		for _, v := range e.Values {
			req.Header.Add(e.Name, v)
		}
	}

	// Body
	if spec.RequestBody() != nil {
		// GetBody factory is used for requests when a redirect/retry requires reading the body more than once.
		req.GetBody = func() (io.ReadCloser, error) {
			if body, err := requestBody(spec); err == nil {
				return body, nil
			} else {
				return nil, fmt.Errorf(`request %s "%s": cannot prepare request body: %w`, req.Method, req.URL.String(), err)
			}
		}
		req.Body, err = req.GetBody()
		if err != nil {
			return nil, nil, err
		}
	}

	// Per-request retry limit and timeout
	retry := c.retry
	if v, ok := spec.MaxRetries(); ok {
		retry.Count = v
	}
	if v := spec.Timeout(); v > 0 {
		retry.TotalRequestTimeout = v
	}

	// Setup native client
	nativeClient := http.Client{
		Timeout:   retry.TotalRequestTimeout,
		Transport: roundTripper{ctx: ctx, retry: retry, trace: trace, wrapped: c.fn}, // wrapped transport for trace/retry
	}

	// Send request
	startedAt := time.Now()
	res, err := nativeClient.Do(req)
	if err != nil {
		return nil, nil, normalizeTransportError(startedAt, retry.TotalRequestTimeout, req, err)
	}

	// Metadata is available from now on, even if the body processing fails
	meta = newResponseMeta(res)

	// Process body
	result, err = processResponseBody(req, res, spec, trace)
	if err != nil {
		return meta, nil, err
	}
	return meta, result, nil
}

// resolveHeaderEntries resolves all dynamic header entries in parallel.
// A static entry is passed through. The first failure aborts the resolution
// and is returned as a ResolveError.
func resolveHeaderEntries(ctx context.Context, entries []HeaderEntry) ([]HeaderEntry, error) {
	out := make([]HeaderEntry, len(entries))
	grp, groupCtx := errgroup.WithContext(ctx)
	for i, entry := range entries {
		i, entry := i, entry
		if entry.Supplier == nil {
			out[i] = entry
			continue
		}
		grp.Go(func() error {
			values, err := entry.Supplier.Resolve(groupCtx)
			if err != nil {
				return &ResolveError{Name: entry.Name, Err: err}
			}
			out[i] = HeaderEntry{Name: entry.Name, Values: values, Supplier: entry.Supplier}
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func requestBody(spec RequestSpec) (io.ReadCloser, error) {
	contentType := spec.RequestHeader().Get("Content-Type")
	body := spec.RequestBody()
	if v, ok := body.(string); ok {
		return io.NopCloser(strings.NewReader(v)), nil
	}
	if v, ok := body.([]byte); ok {
		return io.NopCloser(bytes.NewReader(v)), nil
	}
	if v, ok := body.(io.ReadSeekCloser); ok {
		// io.ReadSeekCloser stream
		if _, err := v.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		return v, nil
	}
	if v, ok := body.(io.ReadSeeker); ok {
		// io.ReadSeeker stream
		if _, err := v.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		return io.NopCloser(v), nil
	}
	if body != nil && isJSONContentType(contentType) {
		// Json body
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf(`cannot encode JSON body: %w`, err)
		}
		return io.NopCloser(bytes.NewReader(buf)), nil
	}
	// empty body
	return nil, nil
}

// processResponseBody maps the response body to the result or error target of the definition.
//
// An accepted status maps the body to the result target, any other status
// produces a StatusError, with the body mapped to a fresh copy of the error
// target, if one is registered. A body that cannot be processed on an
// accepted response produces a DecodeError.
func processResponseBody(req *http.Request, res *http.Response, spec RequestSpec, trace *Trace) (result any, err error) {
	defer res.Body.Close()

	// Trace body parse
	if trace != nil && trace.BodyParseStart != nil {
		trace.BodyParseStart(res)
	}
	var parsed int64
	var parseErr error
	if trace != nil && trace.BodyParseDone != nil {
		defer func() {
			trace.BodyParseDone(res, parsed, result, err, parseErr)
		}()
	}

	accepted := spec.AcceptedStatus()
	if accepted == nil {
		accepted = func(statusCode int) bool {
			return statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices
		}
	}

	// Status accepted, map the body to the result target
	if accepted(res.StatusCode) {
		// No content
		if res.StatusCode == http.StatusNoContent {
			return nil, nil
		}

		// Process content encoding
		body, decodeErr := decode.Decode(res.Body, res.Header.Get("Content-Encoding"))
		if decodeErr != nil {
			parseErr = decodeErr
			return nil, &DecodeError{Method: req.Method, URL: req.URL.String(), Err: decodeErr}
		}
		counted := counter.NewReadCloser(body, func(bytes int64, _ error) {
			parsed = bytes
		})
		defer counted.Close()

		resultDef := spec.ResultDef()
		if v, ok := resultDef.(*[]byte); ok {
			// Load response body as []byte
			bodyBytes, readErr := io.ReadAll(counted)
			if readErr != nil {
				parseErr = readErr
				return nil, &DecodeError{Method: req.Method, URL: req.URL.String(), Err: readErr}
			}
			*v = bodyBytes
			return v, nil
		} else if v, ok := resultDef.(*string); ok {
			// Load response body as string
			bodyBytes, readErr := io.ReadAll(counted)
			if readErr != nil {
				parseErr = readErr
				return nil, &DecodeError{Method: req.Method, URL: req.URL.String(), Err: readErr}
			}
			*v = string(bodyBytes)
			return v, nil
		} else if v, ok := resultDef.(io.WriteCloser); ok {
			// Stream response to io.WriteCloser
			if _, copyErr := io.Copy(v, counted); copyErr != nil {
				parseErr = copyErr
				return nil, &DecodeError{Method: req.Method, URL: req.URL.String(), Err: copyErr}
			}
			if closeErr := v.Close(); closeErr != nil {
				parseErr = closeErr
				return nil, &DecodeError{Method: req.Method, URL: req.URL.String(), Err: closeErr}
			}
			return nil, nil
		} else if v, ok := resultDef.(io.Writer); ok {
			// Stream response to io.Writer
			if _, copyErr := io.Copy(v, counted); copyErr != nil {
				parseErr = copyErr
				return nil, &DecodeError{Method: req.Method, URL: req.URL.String(), Err: copyErr}
			}
			return nil, nil
		} else if resultDef != nil && isJSONContentType(res.Header.Get("Content-Type")) {
			// Map JSON response to the result target, an empty body keeps the zero value
			if jsonErr := json.NewDecoder(counted).Decode(resultDef); jsonErr != nil && !errors.Is(jsonErr, io.EOF) {
				parseErr = fmt.Errorf(`cannot decode JSON result: %w`, jsonErr)
				return nil, &DecodeError{Method: req.Method, URL: req.URL.String(), Err: parseErr}
			}
			return resultDef, nil
		}
		return nil, nil
	}

	// Status not accepted
	statusErr := &StatusError{Method: req.Method, URL: req.URL.String(), StatusCode: res.StatusCode, Status: res.Status}

	// Map the body to a fresh copy of the error target, the definition value is shared by all sends
	if errDef := spec.ErrorDef(); errDef != nil && isJSONContentType(res.Header.Get("Content-Type")) {
		body, decodeErr := decode.Decode(res.Body, res.Header.Get("Content-Encoding"))
		if decodeErr != nil {
			parseErr = decodeErr
			statusErr.Err = decodeErr
			return nil, statusErr
		}
		counted := counter.NewReadCloser(body, func(bytes int64, _ error) {
			parsed = bytes
		})
		defer counted.Close()

		target := reflect.New(reflect.TypeOf(errDef).Elem()).Interface().(error) //nolint:forcetypeassert // enforced by WithError
		jsonErr := json.NewDecoder(counted).Decode(target)
		switch {
		case jsonErr == nil:
			// Attach the HTTP request/response, if the error type wants them
			if v, ok := target.(errorWithRequest); ok {
				v.SetRequest(req)
			}
			if v, ok := target.(errorWithResponse); ok {
				v.SetResponse(res)
			}
			statusErr.Err = target
		case errors.Is(jsonErr, io.EOF):
			// Empty body, keep the generic status message
		default:
			parseErr = fmt.Errorf(`cannot decode JSON error: %w`, jsonErr)
			statusErr.Err = parseErr
		}
	}
	return nil, statusErr
}

func normalizeTransportError(startedAt time.Time, clientTimeout time.Duration, req *http.Request, err error) *TransportError {
	method := req.Method
	reqURL := req.URL.String()

	// Unwrap the url.Error envelope of the native client
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		method = strings.ToUpper(urlErr.Op)
		reqURL = urlErr.URL
		err = urlErr.Err
	}

	elapsed := time.Since(startedAt)
	var netErr net.Error
	switch {
	case errors.As(err, &netErr) && netErr.Timeout() && strings.Contains(err.Error(), "Client.Timeout exceeded"):
		elapsed = clientTimeout
		err = context.DeadlineExceeded
	case errors.Is(err, context.DeadlineExceeded):
		if deadline, ok := req.Context().Deadline(); ok {
			elapsed = deadline.Sub(startedAt)
		}
	case errors.Is(err, context.Canceled):
		// time from start to the cancellation
	case errors.As(err, &netErr) && netErr.Timeout():
		err = context.DeadlineExceeded
	}

	return &TransportError{Method: method, URL: reqURL, Elapsed: elapsed, Err: err}
}

// roundTripper wraps a http.RoundTripper and adds trace and retry functionality.
type roundTripper struct {
	ctx     context.Context
	trace   *Trace
	retry   RetryConfig
	wrapped http.RoundTripper
}

func (rt roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	state := rt.retry.NewBackoff()
	attempt := 0
	for {
		// Mark a repeated delivery in the request context
		attemptReq := req
		if attempt > 0 {
			attemptReq = req.WithContext(contextWithRetryAttempt(req.Context(), attempt))
		}

		// Trace request start
		if rt.trace != nil && rt.trace.HTTPRequestStart != nil {
			rt.trace.HTTPRequestStart(attemptReq)
		}

		// Send
		res, err := rt.wrapped.RoundTrip(attemptReq)

		// Trace request done
		if rt.trace != nil && rt.trace.HTTPRequestDone != nil {
			rt.trace.HTTPRequestDone(res, err)
		}

		// Check if we should retry
		if rt.retry.Condition == nil || !rt.retry.Condition(res, err) || attempt >= rt.retry.Count {
			// No retry
			return res, err
		}

		// Get next delay
		delay := state.NextBackOff()
		if delay == backoff.Stop {
			// Stop
			return res, err
		}

		// Trace retry
		attempt++
		if rt.trace != nil && rt.trace.HTTPRequestRetry != nil {
			rt.trace.HTTPRequestRetry(attempt, delay)
		}

		// The body of the failed attempt is not used anymore
		if res != nil && res.Body != nil {
			_, _ = io.Copy(io.Discard, res.Body)
			_ = res.Body.Close()
		}

		// Rewind body before retry
		if req.GetBody != nil {
			req.Body, err = req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("cannot rewind body: %w", err)
			}
		}

		// Wait
		select {
		case <-req.Context().Done():
			// context is canceled
			return nil, req.Context().Err()
		case <-time.NewTimer(delay).C:
			// time elapsed, retry
		}
	}
}

type errorWithRequest interface {
	error
	SetRequest(request *http.Request)
}

type errorWithResponse interface {
	error
	SetResponse(response *http.Response)
}

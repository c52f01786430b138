package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/sdkforge/go-client/pkg/header"
	"github.com/sdkforge/go-client/pkg/supply"
)

// HeaderEntry is one header in a request definition, in declaration order.
// A static entry carries Values, a dynamic entry carries a Supplier that is
// resolved at send time. When entries are merged into the outgoing request,
// a later entry overrides earlier entries with a case-insensitively equal name.
type HeaderEntry struct {
	Name     string
	Values   []string
	Supplier supply.Supplier[[]string]
}

type requestSpecReadOnly interface {
	// Method returns HTTP method.
	Method() string
	// URL method returns HTTP URL.
	URL() string
	// RequestHeader method returns the static HTTP request headers.
	// Dynamic headers are not included, they are resolved at send time, see HeaderEntries.
	RequestHeader() http.Header
	// HeaderEntries method returns all header entries in declaration order, including dynamic ones.
	HeaderEntries() []HeaderEntry
	// QueryParams method returns HTTP query parameters.
	QueryParams() url.Values
	// PathParams method returns HTTP path parameters mapped to a {placeholder} in the URL.
	PathParams() map[string]string
	// RequestBody method returns a definition of HTTP request body.
	// Supported request body data types are:
	// `*string`, `*[]byte`, `*struct`, `*map`, `*slice`, `io.ReadSeeker` and `io.ReadSeekCloser`.
	// Automatic marshaling for JSON is provided, if it is `*struct`, `*map`, or `*slice`.
	RequestBody() any
	// Timeout method returns the total timeout of the request, 0 means the Client default.
	Timeout() time.Duration
	// MaxRetries method returns the retry count limit, the boolean reports whether it was set.
	MaxRetries() (int, bool)
	// AcceptedStatus method returns the status acceptance predicate, nil means 2xx.
	AcceptedStatus() func(statusCode int) bool
	// ErrorDef method returns a target value for error result mapping.
	ErrorDef() error
	// ResultDef method returns a target value for result mapping.
	ResultDef() any
}

// RequestSpec is an immutable HTTP request definition.
//
// Values that are not known at definition time, typically credentials, are
// attached as supply.Supplier values, see AndHeaderFrom. They are resolved
// in parallel at send time, before the transport is invoked.
type RequestSpec interface {
	requestSpecReadOnly
	// WithGet is shortcut for WithMethod(http.MethodGet).WithURL(url)
	WithGet(url string) RequestSpec
	// WithPost is shortcut for WithMethod(http.MethodPost).WithURL(url)
	WithPost(url string) RequestSpec
	// WithPut is shortcut for WithMethod(http.MethodPut).WithURL(url)
	WithPut(url string) RequestSpec
	// WithPatch is shortcut for WithMethod(http.MethodPatch).WithURL(url)
	WithPatch(url string) RequestSpec
	// WithDelete is shortcut for WithMethod(http.MethodDelete).WithURL(url)
	WithDelete(url string) RequestSpec
	// WithHead is shortcut for WithMethod(http.MethodHead).WithURL(url)
	WithHead(url string) RequestSpec
	// WithMethod method sets the HTTP method.
	WithMethod(method string) RequestSpec
	// WithBaseURL method sets the base URL.
	WithBaseURL(baseURL string) RequestSpec
	// WithURL method sets the URL.
	WithURL(url string) RequestSpec
	// AndHeader method sets a single header field and its value.
	AndHeader(header string, value string) RequestSpec
	// AndHeaderValues method sets a single header field with multiple values.
	AndHeaderValues(header string, values []string) RequestSpec
	// AndHeaderFrom method sets a single header field with a value resolved at send time.
	// An empty resolved value sets the header with an empty value.
	AndHeaderFrom(header string, value supply.Supplier[string]) RequestSpec
	// AndHeaderValuesFrom method sets a single header field with values resolved at send time.
	// A nil or empty resolved slice omits the header.
	AndHeaderValuesFrom(header string, values supply.Supplier[[]string]) RequestSpec
	// AndHeaders method sets all entries of the container, in the container order.
	AndHeaders(headers header.Container) RequestSpec
	// AndQueryParam method sets single parameter and its value.
	AndQueryParam(param, value string) RequestSpec
	// WithQueryParams method sets multiple parameters and its values.
	WithQueryParams(params map[string]string) RequestSpec
	// AndPathParam method sets single URL path key-value pair.
	AndPathParam(param, value string) RequestSpec
	// WithPathParams method sets multiple URL path key-value pairs.
	WithPathParams(params map[string]string) RequestSpec
	// WithFormBody method sets Form parameters and Content-Type header to "application/x-www-form-urlencoded".
	WithFormBody(form map[string]string) RequestSpec
	// WithJSONBody method sets request body to the JSON value and Content-Type header to "application/json".
	WithJSONBody(body any) RequestSpec
	// WithBody method sets request body.
	// The body is passed through for any method, a GET or HEAD request with a body is sent as defined.
	WithBody(body any) RequestSpec
	// WithContentType method sets custom content type.
	WithContentType(contentType string) RequestSpec
	// WithTimeout method sets the total timeout of the request, retries included.
	WithTimeout(timeout time.Duration) RequestSpec
	// WithMaxRetries method limits the number of retries for this request, 0 disables retries.
	WithMaxRetries(count int) RequestSpec
	// WithAcceptedStatus method overrides the default acceptance of 2xx status codes.
	WithAcceptedStatus(fn func(statusCode int) bool) RequestSpec
	// WithError method registers the request `Error` value for automatic mapping.
	// The response is decoded into a fresh copy of the value, the definition stays shared.
	WithError(err error) RequestSpec
	// WithResult method registers the request `Result` value for automatic mapping.
	WithResult(result any) RequestSpec
	// WithOnComplete method registers callback to be executed when the request is completed.
	WithOnComplete(func(ctx context.Context, f Fetcher, response *Response, err error) error) RequestSpec
	// WithOnSuccess method registers callback to be executed when the request is completed and the status is accepted.
	WithOnSuccess(func(ctx context.Context, f Fetcher, response *Response) error) RequestSpec
	// WithOnError method registers callback to be executed when the request is completed with an error.
	WithOnError(func(ctx context.Context, f Fetcher, response *Response, err error) error) RequestSpec
	// Send method sends defined request and returns the untyped response.
	Send(ctx context.Context, f Fetcher) (response *Response, err error)
	SendOrErr(ctx context.Context, f Fetcher) error
}

// NewRequest creates immutable HTTP request definition.
func NewRequest() RequestSpec {
	return requestSpec{}
}

// requestSpec implements the RequestSpec interface.
type requestSpec struct {
	method      string
	baseURL     *url.URL
	url         *url.URL
	headers     []HeaderEntry
	queryParams url.Values
	pathParams  map[string]string
	body        any
	timeout     time.Duration
	maxRetries  *int
	accepted    func(statusCode int) bool
	resultDef   any
	errorDef    error
	listeners   []func(ctx context.Context, f Fetcher, response *Response, err error) error
}

func (r requestSpec) Method() string {
	if r.method == "" {
		panic(fmt.Errorf("request method is not set"))
	}
	return r.method
}

func (r requestSpec) URL() string {
	if r.url == nil {
		panic(fmt.Errorf("request url is not set"))
	}
	var outURL *url.URL
	if r.baseURL == nil {
		outURL = r.url
	} else if v, err := url.Parse(r.baseURL.String() + "/" + strings.TrimLeft(r.url.String(), "/")); err == nil {
		outURL = v
	} else {
		panic(fmt.Errorf(`cannot parse url: %w`, err))
	}
	return outURL.String()
}

func (r requestSpec) RequestHeader() http.Header {
	out := make(http.Header)
	for _, e := range r.headers {
		if e.Supplier != nil {
			continue
		}
		// Later entry wins, clear values of earlier entries with the same name
		out.Del(e.Name)
		for _, v := range e.Values {
			out.Add(e.Name, v)
		}
	}
	return out
}

func (r requestSpec) HeaderEntries() []HeaderEntry {
	out := make([]HeaderEntry, len(r.headers))
	copy(out, r.headers)
	return out
}

func (r requestSpec) QueryParams() url.Values {
	return r.queryParams
}

func (r requestSpec) PathParams() map[string]string {
	return r.pathParams
}

func (r requestSpec) RequestBody() any {
	return r.body
}

func (r requestSpec) Timeout() time.Duration {
	return r.timeout
}

func (r requestSpec) MaxRetries() (int, bool) {
	if r.maxRetries == nil {
		return 0, false
	}
	return *r.maxRetries, true
}

func (r requestSpec) AcceptedStatus() func(statusCode int) bool {
	return r.accepted
}

func (r requestSpec) ErrorDef() error {
	return r.errorDef
}

func (r requestSpec) ResultDef() any {
	return r.resultDef
}

func (r requestSpec) WithGet(url string) RequestSpec {
	return r.WithMethod(http.MethodGet).WithURL(url)
}

func (r requestSpec) WithPost(url string) RequestSpec {
	return r.WithMethod(http.MethodPost).WithURL(url)
}

func (r requestSpec) WithPut(url string) RequestSpec {
	return r.WithMethod(http.MethodPut).WithURL(url)
}

func (r requestSpec) WithPatch(url string) RequestSpec {
	return r.WithMethod(http.MethodPatch).WithURL(url)
}

func (r requestSpec) WithDelete(url string) RequestSpec {
	return r.WithMethod(http.MethodDelete).WithURL(url)
}

func (r requestSpec) WithHead(url string) RequestSpec {
	return r.WithMethod(http.MethodHead).WithURL(url)
}

func (r requestSpec) WithMethod(method string) RequestSpec {
	r.method = method
	return r
}

func (r requestSpec) WithURL(urlStr string) RequestSpec {
	if v, err := url.Parse(urlStr); err == nil {
		r.url = v
	} else {
		panic(fmt.Errorf(`url "%s" is not valid: %w`, urlStr, err))
	}
	return r
}

func (r requestSpec) WithBaseURL(baseURL string) RequestSpec {
	if v, err := url.Parse(strings.TrimRight(baseURL, "/")); err == nil {
		r.baseURL = v
	} else {
		panic(fmt.Errorf(`base url "%s" is not valid: %w`, baseURL, err))
	}
	return r
}

func (r requestSpec) AndHeader(name string, value string) RequestSpec {
	return r.andHeaderEntry(HeaderEntry{Name: name, Values: []string{value}})
}

func (r requestSpec) AndHeaderValues(name string, values []string) RequestSpec {
	return r.andHeaderEntry(HeaderEntry{Name: name, Values: values})
}

func (r requestSpec) AndHeaderFrom(name string, value supply.Supplier[string]) RequestSpec {
	if value == nil {
		panic(fmt.Errorf(`supplier of header "%s" cannot be nil`, name))
	}
	values := supply.ContextFunc(func(ctx context.Context) ([]string, error) {
		v, err := value.Resolve(ctx)
		if err != nil {
			return nil, err
		}
		return []string{v}, nil
	})
	return r.andHeaderEntry(HeaderEntry{Name: name, Supplier: values})
}

func (r requestSpec) AndHeaderValuesFrom(name string, values supply.Supplier[[]string]) RequestSpec {
	if values == nil {
		panic(fmt.Errorf(`supplier of header "%s" cannot be nil`, name))
	}
	return r.andHeaderEntry(HeaderEntry{Name: name, Supplier: values})
}

func (r requestSpec) AndHeaders(headers header.Container) RequestSpec {
	for _, e := range headers.Entries() {
		r = r.andHeaderEntry(HeaderEntry{Name: e.Name, Values: []string{e.Value}})
	}
	return r
}

func (r requestSpec) andHeaderEntry(e HeaderEntry) requestSpec {
	headers := make([]HeaderEntry, len(r.headers), len(r.headers)+1)
	copy(headers, r.headers)
	r.headers = append(headers, e)
	return r
}

func (r requestSpec) AndQueryParam(key, value string) RequestSpec {
	r.queryParams = cloneURLValues(r.queryParams)
	r.queryParams.Set(key, value)
	return r
}

func (r requestSpec) WithQueryParams(params map[string]string) RequestSpec {
	r.queryParams = make(url.Values)
	for k, v := range params {
		r.queryParams.Set(k, v)
	}
	return r
}

func (r requestSpec) AndPathParam(key, value string) RequestSpec {
	r.pathParams = cloneParams(r.pathParams)
	r.pathParams[key] = value
	return r
}

func (r requestSpec) WithPathParams(params map[string]string) RequestSpec {
	r.pathParams = make(map[string]string)
	for k, v := range params {
		r.pathParams[k] = v
	}
	return r
}

func (r requestSpec) WithFormBody(form map[string]string) RequestSpec {
	formData := make(url.Values)
	for k, v := range form {
		formData.Set(k, v)
	}
	r.body = formData.Encode()
	return r.AndHeader("Content-Type", "application/x-www-form-urlencoded")
}

func (r requestSpec) WithJSONBody(body any) RequestSpec {
	r.body = body
	return r.AndHeader("Content-Type", ContentTypeApplicationJSON)
}

func (r requestSpec) WithBody(body any) RequestSpec {
	r.body = body
	return r
}

func (r requestSpec) WithContentType(contentType string) RequestSpec {
	return r.AndHeader("Content-Type", contentType)
}

func (r requestSpec) WithTimeout(timeout time.Duration) RequestSpec {
	r.timeout = timeout
	return r
}

func (r requestSpec) WithMaxRetries(count int) RequestSpec {
	if count < 0 {
		panic(fmt.Errorf("retries count cannot be negative"))
	}
	r.maxRetries = &count
	return r
}

func (r requestSpec) WithAcceptedStatus(fn func(statusCode int) bool) RequestSpec {
	r.accepted = fn
	return r
}

func (r requestSpec) WithError(err error) RequestSpec {
	if reflect.ValueOf(err).Kind() != reflect.Ptr {
		panic(fmt.Errorf(`error must be defined by a pointer`))
	}
	r.errorDef = err
	return r
}

func (r requestSpec) WithResult(result any) RequestSpec {
	_, ok1 := result.(io.Writer)
	_, ok2 := result.(io.WriteCloser)
	if !ok1 && !ok2 && reflect.ValueOf(result).Kind() != reflect.Ptr {
		panic(fmt.Errorf(`result must be defined by a pointer`))
	}
	r.resultDef = result
	return r
}

func (r requestSpec) WithOnComplete(fn func(ctx context.Context, f Fetcher, response *Response, err error) error) RequestSpec {
	return r.andListener(fn)
}

func (r requestSpec) WithOnSuccess(fn func(ctx context.Context, f Fetcher, response *Response) error) RequestSpec {
	return r.andListener(func(ctx context.Context, f Fetcher, response *Response, err error) error {
		if err == nil {
			return fn(ctx, f, response)
		}
		return err
	})
}

func (r requestSpec) WithOnError(fn func(ctx context.Context, f Fetcher, response *Response, err error) error) RequestSpec {
	return r.andListener(func(ctx context.Context, f Fetcher, response *Response, err error) error {
		if err != nil {
			return fn(ctx, f, response, err)
		}
		return err
	})
}

func (r requestSpec) andListener(fn func(ctx context.Context, f Fetcher, response *Response, err error) error) requestSpec {
	listeners := make([]func(ctx context.Context, f Fetcher, response *Response, err error) error, len(r.listeners), len(r.listeners)+1)
	copy(listeners, r.listeners)
	r.listeners = append(listeners, fn)
	return r
}

func (r requestSpec) Send(ctx context.Context, f Fetcher) (*Response, error) {
	// Stop if context has been cancelled
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Send request
	meta, result, err := f.Execute(ctx, r)
	out := &Response{spec: r, meta: meta, result: result, err: err}

	// Invoke listeners
	for _, fn := range r.listeners {
		// Stop if context has been cancelled
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out.err = fn(ctx, f, out, out.err)
	}

	return out, out.err
}

func (r requestSpec) SendOrErr(ctx context.Context, f Fetcher) error {
	_, err := r.Send(ctx, f)
	return err
}

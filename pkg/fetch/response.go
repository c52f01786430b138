package fetch

import (
	"net/http"

	"github.com/sdkforge/go-client/pkg/header"
)

// ResponseMeta captures the transport-level facts of a received response,
// detached from the body stream: the status, the headers and the effective
// URL after redirects. It is nil whenever no response was obtained, for
// example on a network failure or when resolution of a header value failed.
type ResponseMeta struct {
	// StatusCode is the numeric HTTP status, e.g. 404.
	StatusCode int
	// Status is the status text, e.g. "404 Not Found".
	Status string
	// Header contains the response headers.
	Header http.Header
	// URL is the effective request URL, after all redirects.
	URL string
}

func newResponseMeta(res *http.Response) *ResponseMeta {
	meta := &ResponseMeta{StatusCode: res.StatusCode, Status: res.Status, Header: res.Header.Clone()}
	if res.Request != nil && res.Request.URL != nil {
		meta.URL = res.Request.URL.String()
	}
	return meta
}

// Headers returns the response headers as a lookup container.
func (m *ResponseMeta) Headers() header.Container {
	if m == nil {
		return header.Container{}
	}
	return header.FromHTTP(m.Header)
}

// Response is the untyped outcome of a sent request, as seen by listeners.
// For the typed envelope see APIResponse and the Send function.
type Response struct {
	spec   RequestSpec
	meta   *ResponseMeta
	result any
	err    error
}

// Spec method returns the request definition the response belongs to.
func (r *Response) Spec() RequestSpec {
	return r.spec
}

// Meta method returns the response metadata, nil when no response was received.
func (r *Response) Meta() *ResponseMeta {
	return r.meta
}

// StatusCode method returns HTTP status code, 0 when no response was received.
func (r *Response) StatusCode() int {
	if r.meta == nil {
		return 0
	}
	return r.meta.StatusCode
}

// ResponseHeader method returns HTTP response headers, nil when no response was received.
func (r *Response) ResponseHeader() http.Header {
	if r.meta == nil {
		return nil
	}
	return r.meta.Header
}

// IsSuccess method returns true if the request finished without an error.
func (r *Response) IsSuccess() bool {
	return r.err == nil
}

// IsError method returns true if the request finished with an error.
func (r *Response) IsError() bool {
	return r.err != nil
}

// Result method returns the response mapped as a data type, if any.
func (r *Response) Result() any {
	return r.result
}

// Err method returns the request error, if any.
func (r *Response) Err() error {
	return r.err
}

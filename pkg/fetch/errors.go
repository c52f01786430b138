package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// Every failure surfaced by the Client is one of the error kinds below, so
// SDK code can branch with errors.As instead of matching message strings.
// The kinds also drive the default retry decision, see Retryable.

// ResolveError reports a dynamic header value that could not be resolved
// while the request was being assembled. The transport is not invoked and
// the request is never retried, a failing credential producer will not heal
// by repeating it.
type ResolveError struct {
	// Name of the header being resolved.
	Name string
	Err  error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf(`cannot resolve value of header "%s": %s`, e.Name, e.Err)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

// TransportError reports a request that produced no response at all:
// a dial, TLS, timeout or cancellation failure. Response metadata is not
// available for this kind.
type TransportError struct {
	Method string
	URL    string
	// Elapsed is the time from the first transport attempt to the failure.
	Elapsed time.Duration
	Err     error
}

func (e *TransportError) Error() string {
	switch {
	case errors.Is(e.Err, context.DeadlineExceeded):
		return fmt.Sprintf(`request %s "%s" failed: timeout after %s`, e.Method, e.URL, e.Elapsed)
	case errors.Is(e.Err, context.Canceled):
		return fmt.Sprintf(`request %s "%s" failed: canceled after %s`, e.Method, e.URL, e.Elapsed)
	default:
		return fmt.Sprintf(`request %s "%s" failed: %s`, e.Method, e.URL, e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was caused by a timeout.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// StatusError reports a received response whose status code the request
// definition does not accept. Response metadata is always available.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	// Status is the status text, e.g. "404 Not Found".
	Status string
	// Err is the error body mapped to a fresh copy of the value registered
	// by WithError. If the mapping itself failed, Err describes that failure.
	// Err is nil when no error mapping applies to the response.
	Err error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf(`request %s "%s" failed: %s`, e.Method, e.URL, e.Err)
	}
	return fmt.Sprintf(`request %s "%s" failed: %d %s`, e.Method, e.URL, e.StatusCode, statusText(e.Status, e.StatusCode))
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// DecodeError reports a response that was accepted by status, but whose body
// could not be mapped to the result target. It is not retried by default:
// the transport already succeeded, repeating the request will not fix the body.
type DecodeError struct {
	Method string
	URL    string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf(`cannot process body of %s "%s" response: %s`, e.Method, e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Retryable reports whether a new attempt of the failed request may succeed.
//
// Transport errors are retryable, unless the host cannot be resolved at all
// or the request was canceled. Status errors are retryable for the statuses
// of the DefaultRetryCondition set. Resolution and decode failures are not
// retryable. The Client applies the same rules through RetryConfig.Condition,
// which can override them per client.
func Retryable(err error) bool {
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		if errors.Is(transportErr.Err, context.Canceled) {
			return false
		}
		return !isPermanentNetworkErr(transportErr.Err)
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return isRetryableStatus(statusErr.StatusCode)
	}

	return false
}

func isPermanentNetworkErr(err error) bool {
	switch {
	case err == nil:
		return false
	case strings.Contains(err.Error(), "No address associated with hostname"):
		return true
	case strings.Contains(err.Error(), "no such host"):
		return true
	default:
		return false
	}
}

func statusText(status string, statusCode int) string {
	// The status line usually starts with the code, e.g. "404 Not Found"
	if v := strings.TrimPrefix(status, fmt.Sprintf("%d ", statusCode)); v != "" && v != status {
		return v
	}
	// Responses built by hand, e.g. in tests, often have an empty status line
	if v := http.StatusText(statusCode); v != "" {
		return v
	}
	return status
}

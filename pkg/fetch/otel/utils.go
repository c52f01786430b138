package otel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

func isSuccess(r *http.Response, err error) bool {
	if err != nil {
		return false
	}
	return r != nil && r.StatusCode < http.StatusBadRequest
}

func isRedirection(r *http.Response) bool {
	return r != nil && r.StatusCode >= http.StatusMultipleChoices && r.StatusCode < http.StatusBadRequest
}

// errorType classifies the request outcome for the "http.error_type" attribute.
// It returns an empty string for a success or a redirection.
func errorType(r *http.Response, err error) string {
	var netErr net.Error
	switch {
	case err == nil:
		if r != nil && r.StatusCode >= http.StatusBadRequest {
			return fmt.Sprintf("http_%dxx_code", r.StatusCode/100)
		}
		return ""
	case errors.Is(err, context.Canceled):
		return "context_canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	case errors.As(err, &netErr):
		return "net"
	default:
		return "other"
	}
}

package fetch_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"

	"github.com/sdkforge/go-client/pkg/fetch"
	"github.com/sdkforge/go-client/pkg/supply"
)

type testStruct struct {
	Foo string `json:"foo"`
}

type testError struct {
	ErrorMsg string `json:"error"`
}

type testWriteCloser struct {
	io.Writer
}

func (v testWriteCloser) Close() error {
	_, err := v.Write([]byte("<CLOSE>"))
	return err
}

func (e testError) Error() string {
	return e.ErrorMsg
}

func TestNew(t *testing.T) {
	t.Parallel()
	c := fetch.New()
	assert.NotNil(t, c)
}

func TestRequest(t *testing.T) {
	t.Parallel()

	// Mocked response
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", `https://example.com`, httpmock.NewStringResponder(200, "test"))

	ctx := context.Background()
	c := fetch.New().WithTransport(transport).WithRetry(fetch.TestingRetry())
	response, err := fetch.NewRequest().WithGet("https://example.com").Send(ctx, c)
	assert.NoError(t, err)
	assert.True(t, response.IsSuccess())
	assert.Equal(t, 200, response.StatusCode())
	assert.Equal(t, 1, transport.GetCallCountInfo()["GET https://example.com"])
}

func TestBytesResult(t *testing.T) {
	t.Parallel()

	// Mocked response
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "https://example.com", httpmock.NewJsonResponderOrPanic(200, map[string]any{"foo": "bar"}))

	ctx := context.Background()
	c := fetch.New().WithTransport(transport).WithRetry(fetch.TestingRetry())
	var resultDef []byte
	response, err := fetch.NewRequest().WithGet("https://example.com").WithResult(&resultDef).Send(ctx, c)
	assert.NoError(t, err)
	assert.Same(t, &resultDef, response.Result())
	assert.Equal(t, []byte(`{"foo":"bar"}`), resultDef)
	assert.Equal(t, 1, transport.GetCallCountInfo()["GET https://example.com"])
}

func TestStringResult(t *testing.T) {
	t.Parallel()

	// Mocked response
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "https://example.com", httpmock.NewStringResponder(200, "some text"))

	ctx := context.Background()
	c := fetch.New().WithTransport(transport).WithRetry(fetch.TestingRetry())
	str := ""
	response, err := fetch.NewRequest().WithGet("https://example.com").WithResult(&str).Send(ctx, c)
	assert.NoError(t, err)
	assert.Same(t, &str, response.Result())
	assert.Equal(t, "some text", str)
}

func TestWriterResult(t *testing.T) {
	t.Parallel()

	// Mocked response
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "https://example.com", httpmock.NewJsonResponderOrPanic(200, map[string]any{"foo": "bar"}))

	ctx := context.Background()
	c := fetch.New().WithTransport(transport).WithRetry(fetch.TestingRetry())
	var out strings.Builder
	_, err := fetch.NewRequest().WithGet("https://example.com").WithResult(io.Writer(&out)).Send(ctx, c)
	assert.NoError(t, err)
	assert.Equal(t, `{"foo":"bar"}`, out.String())
	assert.Equal(t, 1, transport.GetCallCountInfo()["GET https://example.com"])
}

func TestWriteCloserResult(t *testing.T) {
	t.Parallel()

	// Mocked response
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "https://example.com", httpmock.NewJsonResponderOrPanic(200, map[string]any{"foo": "bar"}))

	ctx := context.Background()
	c := fetch.New().WithTransport(transport).WithRetry(fetch.TestingRetry())
	var out strings.Builder
	_, err := fetch.NewRequest().WithGet("https://example.com").WithResult(testWriteCloser{Writer: &out}).Send(ctx, c)
	assert.NoError(t, err)
	assert.Equal(t, `{"foo":"bar"}<CLOSE>`, out.String())
	assert.Equal(t, 1, transport.GetCallCountInfo()["GET https://example.com"])
}

func TestJsonMapResult(t *testing.T) {
	t.Parallel()

	// Mocked response
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", `https://example.com`, httpmock.NewJsonResponderOrPanic(200, map[string]any{"foo": "bar"}))

	ctx := context.Background()
	c := fetch.New().WithTransport(transport).WithRetry(fetch.TestingRetry())
	resultDef := make(map[string]any)
	response, err := fetch.NewRequest().WithGet("https://example.com").WithResult(&resultDef).Send(ctx, c)
	assert.NoError(t, err)
	assert.Same(t, &resultDef, response.Result())
	assert.Equal(t, &map[string]any{"foo": "bar"}, response.Result())
	assert.Equal(t, 1, transport.GetCallCountInfo()["GET https://example.com"])
}

func TestJsonStructResult(t *testing.T) {
	t.Parallel()

	// Mocked response
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", `https://example.com`, httpmock.NewJsonResponderOrPanic(200, map[string]any{"foo": "bar"}))

	ctx := context.Background()
	c := fetch.New().WithTransport(transport).WithRetry(fetch.TestingRetry())
	resultDef := &testStruct{}
	response, err := fetch.NewRequest().WithGet("https://example.com").WithResult(resultDef).Send(ctx, c)
	assert.NoError(t, err)
	assert.Same(t, resultDef, response.Result())
	assert.Equal(t, &testStruct{Foo: "bar"}, response.Result())
	assert.Equal(t, 1, transport.GetCallCountInfo()["GET https://example.com"])
}

func TestJsonErrorResult(t *testing.T) {
	t.Parallel()

	// Mocked response
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", `https://example.com`, httpmock.NewJsonResponderOrPanic(400, map[string]any{"error": "error message"}))

	ctx := context.Background()
	c := fetch.New().WithTransport(transport).WithRetry(fetch.TestingRetry())
	errDef := &testError{}
	response, err := fetch.NewRequest().WithGet("https://example.com").WithError(errDef).Send(ctx, c)
	assert.Error(t, err)
	assert.Equal(t, `request GET "https://example.com" failed: error message`, err.Error())
	assert.Equal(t, 400, response.StatusCode())

	// The status is part of the error
	var statusErr *fetch.StatusError
	if assert.True(t, errors.As(err, &statusErr)) {
		assert.Equal(t, 400, statusErr.StatusCode)
	}

	// The body is mapped to a fresh copy, the definition value is not modified
	var apiErr *testError
	if assert.True(t, errors.As(err, &apiErr)) {
		assert.Equal(t, "error message", apiErr.ErrorMsg)
		assert.NotSame(t, errDef, apiErr)
	}
	assert.Equal(t, &testError{}, errDef)
	assert.Equal(t, 1, transport.GetCallCountInfo()["GET https://example.com"])
}

func TestJsonErrorResult_EmptyBody(t *testing.T) {
	t.Parallel()

	// Mocked response
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", `https://example.com`, func(request *http.Request) (*http.Response, error) {
		response := httpmock.NewStringResponse(400, "")
		response.Header.Set("Content-Type", "application/json")
		return response, nil
	})

	ctx := context.Background()
	c := fetch.New().WithTransport(transport).WithRetry(fetch.TestingRetry())
	errDef := &testError{}
	_, err := fetch.NewRequest().WithGet("https://example.com").WithError(errDef).Send(ctx, c)
	assert.Error(t, err)

	// An empty error body keeps the generic status message
	assert.Equal(t, `request GET "https://example.com" failed: 400 Bad Request`, err.Error())
}

func TestDefaultAcceptedStatus(t *testing.T) {
	t.Parallel()

	// Mocked response
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", `https://example.com`, httpmock.NewStringResponder(404, "not found"))

	ctx := context.Background()
	c := fetch.New().WithTransport(transport).WithRetry(fetch.TestingRetry())
	response, err := fetch.NewRequest().WithGet("https://example.com").Send(ctx, c)
	assert.Error(t, err)
	assert.Equal(t, `request GET "https://example.com" failed: 404 Not Found`, err.Error())
	assert.True(t, response.IsError())
	assert.Equal(t, 404, response.StatusCode())
}

func TestWithAcceptedStatus(t *testing.T) {
	t.Parallel()

	// Mocked response
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", `https://example.com`, httpmock.NewJsonResponderOrPanic(404, map[string]any{"foo": "missing"}))

	ctx := context.Background()
	c := fetch.New().WithTransport(transport).WithRetry(fetch.TestingRetry())

	// A 404 response is accepted and mapped to the result
	resultDef := &testStruct{}
	response, err := fetch.NewRequest().
		WithGet("https://example.com").
		WithResult(resultDef).
		WithAcceptedStatus(func(statusCode int) bool {
			return statusCode == http.StatusOK || statusCode == http.StatusNotFound
		}).
		Send(ctx, c)
	assert.NoError(t, err)
	assert.True(t, response.IsSuccess())
	assert.Equal(t, &testStruct{Foo: "missing"}, response.Result())
}

func TestNoContent(t *testing.T) {
	t.Parallel()

	// Mocked response
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("DELETE", `https://example.com`, httpmock.NewStringResponder(204, ""))

	ctx := context.Background()
	c := fetch.New().WithTransport(transport).WithRetry(fetch.TestingRetry())
	resultDef := &testStruct{}
	response, err := fetch.NewRequest().WithDelete("https://example.com").WithResult(resultDef).Send(ctx, c)
	assert.NoError(t, err)
	assert.True(t, response.IsSuccess())
	assert.Equal(t, 204, response.StatusCode())

	// No content, no result mapping
	assert.Nil(t, response.Result())
	assert.Equal(t, &testStruct{}, resultDef)
}

func TestEmptyBodyResult(t *testing.T) {
	t.Parallel()

	// Mocked response
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", `https://example.com`, func(request *http.Request) (*http.Response, error) {
		response := httpmock.NewStringResponse(200, "")
		response.Header.Set("Content-Type", "application/json")
		return response, nil
	})

	ctx := context.Background()
	c := fetch.New().WithTransport(transport).WithRetry(fetch.TestingRetry())
	resultDef := &testStruct{}
	response, err := fetch.NewRequest().WithGet("https://example.com").WithResult(resultDef).Send(ctx, c)
	assert.NoError(t, err)

	// An empty body keeps the zero value
	assert.Same(t, resultDef, response.Result())
	assert.Equal(t, &testStruct{}, resultDef)
}

func TestDecodeError(t *testing.T) {
	t.Parallel()

	// Mocked response
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", `https://example.com`, func(request *http.Request) (*http.Response, error) {
		response := httpmock.NewStringResponse(200, "{invalid json")
		response.Header.Set("Content-Type", "application/json")
		return response, nil
	})

	ctx := context.Background()
	c := fetch.New().WithTransport(transport).WithRetry(fetch.TestingRetry())
	response, err := fetch.NewRequest().WithGet("https://example.com").WithResult(&testStruct{}).Send(ctx, c)
	assert.Error(t, err)

	var decodeErr *fetch.DecodeError
	assert.True(t, errors.As(err, &decodeErr))
	assert.Contains(t, err.Error(), `cannot process body of GET "https://example.com" response`)

	// Metadata is available even if the body processing failed
	assert.Equal(t, 200, response.StatusCode())
}

func TestGzipResponse(t *testing.T) {
	t.Parallel()

	// Mocked response with gzip encoded body
	var buf bytes.Buffer
	wr := gzip.NewWriter(&buf)
	_, err := wr.Write([]byte(`{"foo":"bar"}`))
	assert.NoError(t, err)
	assert.NoError(t, wr.Close())

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", `https://example.com`, func(request *http.Request) (*http.Response, error) {
		response := httpmock.NewBytesResponse(200, buf.Bytes())
		response.Header.Set("Content-Type", "application/json")
		response.Header.Set("Content-Encoding", "gzip")
		return response, nil
	})

	ctx := context.Background()
	c := fetch.New().WithTransport(transport).WithRetry(fetch.TestingRetry())
	resultDef := &testStruct{}
	_, err = fetch.NewRequest().WithGet("https://example.com").WithResult(resultDef).Send(ctx, c)
	assert.NoError(t, err)
	assert.Equal(t, &testStruct{Foo: "bar"}, resultDef)
}

func TestBrotliResponse(t *testing.T) {
	t.Parallel()

	// Mocked response with brotli encoded body
	var buf bytes.Buffer
	wr := brotli.NewWriter(&buf)
	_, err := wr.Write([]byte(`{"foo":"bar"}`))
	assert.NoError(t, err)
	assert.NoError(t, wr.Close())

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", `https://example.com`, func(request *http.Request) (*http.Response, error) {
		response := httpmock.NewBytesResponse(200, buf.Bytes())
		response.Header.Set("Content-Type", "application/json")
		response.Header.Set("Content-Encoding", "br")
		return response, nil
	})

	ctx := context.Background()
	c := fetch.New().WithTransport(transport).WithRetry(fetch.TestingRetry())
	resultDef := &testStruct{}
	_, err = fetch.NewRequest().WithGet("https://example.com").WithResult(resultDef).Send(ctx, c)
	assert.NoError(t, err)
	assert.Equal(t, &testStruct{Foo: "bar"}, resultDef)
}

func TestWithBaseUrl(t *testing.T) {
	t.Parallel()

	// Mocked response
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "https://example.com/baz", httpmock.NewStringResponder(200, "test"))

	ctx := context.Background()
	c := fetch.New().WithTransport(transport).WithRetry(fetch.TestingRetry()).WithBaseURL("https://example.com")
	_, err := fetch.NewRequest().WithGet("baz").Send(ctx, c)
	assert.NoError(t, err)
	assert.Equal(t, 1, transport.GetCallCountInfo()["GET https://example.com/baz"])
}

func TestPathParams(t *testing.T) {
	t.Parallel()

	// Mocked response
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "https://example.com/branch/123/config/my-config", func(request *http.Request) (*http.Response, error) {
		assert.Equal(t, "sort=name", request.URL.RawQuery)
		return httpmock.NewStringResponse(200, "test"), nil
	})

	ctx := context.Background()
	c := fetch.New().WithTransport(transport).WithRetry(fetch.TestingRetry())
	_, err := fetch.NewRequest().
		WithGet("https://example.com/branch/{branchId}/config/{configId}").
		AndPathParam("branchId", "123").
		AndPathParam("configId", "my-config").
		AndQueryParam("sort", "name").
		Send(ctx, c)
	assert.NoError(t, err)
	assert.Equal(t, 1, transport.GetCallCountInfo()["GET https://example.com/branch/123/config/my-config"])
}

func TestRequestContext(t *testing.T) {
	t.Parallel()

	// Mocked response
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", `https://example.com`, func(request *http.Request) (*http.Response, error) {
		// Request context should be used by HTTP request
		assert.Equal(t, "testValue", request.Context().Value("testKey"))
		return httpmock.NewStringResponse(200, "test"), nil
	})
	//lint:ignore SA1029 it is ok to use "testKey" without custom type in this test
	ctx := context.WithValue(context.Background(), "testKey", "testValue")
	c := fetch.New().WithTransport(transport).WithRetry(fetch.TestingRetry())
	_, err := fetch.NewRequest().WithGet("https://example.com").Send(ctx, c)
	assert.NoError(t, err)
	assert.Equal(t, 1, transport.GetCallCountInfo()["GET https://example.com"])
}

func TestDefaultUserAgent(t *testing.T) {
	t.Parallel()

	// Mocked response
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "https://example.com", func(request *http.Request) (*http.Response, error) {
		assert.Equal(t, http.Header{
			"User-Agent":      []string{"sdkforge-go-client"},
			"Accept-Encoding": []string{"gzip, br"},
		}, request.Header)
		return httpmock.NewStringResponse(200, "test"), nil
	})

	ctx := context.Background()
	c := fetch.New().WithTransport(transport).WithRetry(fetch.TestingRetry())
	_, err := fetch.NewRequest().WithGet("https://example.com").Send(ctx, c)
	assert.NoError(t, err)
	assert.Equal(t, 1, transport.GetCallCountInfo()["GET https://example.com"])
}

func TestWithUserAgent(t *testing.T) {
	t.Parallel()

	// Mocked response
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", `https://example.com`, func(request *http.Request) (*http.Response, error) {
		assert.Equal(t, http.Header{
			"User-Agent":      []string{"my-user-agent"},
			"Accept-Encoding": []string{"gzip, br"},
		}, request.Header)
		return httpmock.NewStringResponse(200, "test"), nil
	})

	ctx := context.Background()
	c := fetch.New().WithTransport(transport).WithRetry(fetch.TestingRetry()).WithUserAgent("my-user-agent")
	_, err := fetch.NewRequest().WithGet("https://example.com").Send(ctx, c)
	assert.NoError(t, err)
	assert.Equal(t, 1, transport.GetCallCountInfo()["GET https://example.com"])
}

func TestWithHeader(t *testing.T) {
	t.Parallel()

	// Mocked response
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", `https://example.com`, func(request *http.Request) (*http.Response, error) {
		assert.Equal(t, http.Header{
			"User-Agent":      []string{"sdkforge-go-client"},
			"Accept-Encoding": []string{"gzip, br"},
			"My-Header":       []string{"my-value"},
		}, request.Header)
		return httpmock.NewStringResponse(200, "test"), nil
	})

	ctx := context.Background()
	c := fetch.New().WithTransport(transport).WithRetry(fetch.TestingRetry()).WithHeader("my-header", "my-value")
	_, err := fetch.NewRequest().WithGet("https://example.com").Send(ctx, c)
	assert.NoError(t, err)
	assert.Equal(t, 1, transport.GetCallCountInfo()["GET https://example.com"])
}

func TestWithHeaders(t *testing.T) {
	t.Parallel()

	// Mocked response
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", `https://example.com`, func(request *http.Request) (*http.Response, error) {
		assert.Equal(t, http.Header{
			"User-Agent":      []string{"sdkforge-go-client"},
			"Accept-Encoding": []string{"gzip, br"},
			"Key1":            []string{"value1"},
			"Key2":            []string{"value2"},
		}, request.Header)
		return httpmock.NewStringResponse(200, "test"), nil
	})

	ctx := context.Background()
	c := fetch.New().WithTransport(transport).WithRetry(fetch.TestingRetry()).WithHeaders(map[string]string{
		"key1": "value1",
		"key2": "value2",
	})
	_, err := fetch.NewRequest().WithGet("https://example.com").Send(ctx, c)
	assert.NoError(t, err)
	assert.Equal(t, 1, transport.GetCallCountInfo()["GET https://example.com"])
}

func TestDynamicHeader(t *testing.T) {
	t.Parallel()

	// Mocked response
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", `https://example.com`, func(request *http.Request) (*http.Response, error) {
		assert.Equal(t, "Bearer my-token", request.Header.Get("Authorization"))
		return httpmock.NewStringResponse(200, "test"), nil
	})

	// The value is produced at send time
	resolved := int64(0)
	tokenSupplier := supply.Func(func() (string, error) {
		atomic.AddInt64(&resolved, 1)
		return "Bearer my-token", nil
	})

	ctx := context.Background()
	c := fetch.New().WithTransport(transport).WithRetry(fetch.TestingRetry())
	r := fetch.NewRequest().WithGet("https://example.com").AndHeaderFrom("Authorization", tokenSupplier)

	// The definition alone resolves nothing
	assert.Equal(t, int64(0), atomic.LoadInt64(&resolved))

	// Each send resolves the value again
	_, err := r.Send(ctx, c)
	assert.NoError(t, err)
	_, err = r.Send(ctx, c)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), atomic.LoadInt64(&resolved))
	assert.Equal(t, 2, transport.GetCallCountInfo()["GET https://example.com"])
}

func TestDynamicHeaderError(t *testing.T) {
	t.Parallel()

	// Mocked response
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", `https://example.com`, httpmock.NewStringResponder(200, "test"))

	ctx := context.Background()
	c := fetch.New().WithTransport(transport).WithRetry(fetch.TestingRetry())
	response, err := fetch.NewRequest().
		WithGet("https://example.com").
		AndHeaderFrom("Authorization", supply.Func(func() (string, error) {
			return "", errors.New("token source is empty")
		})).
		Send(ctx, c)
	assert.Error(t, err)
	assert.Equal(t, `cannot resolve value of header "Authorization": token source is empty`, err.Error())

	var resolveErr *fetch.ResolveError
	if assert.True(t, errors.As(err, &resolveErr)) {
		assert.Equal(t, "Authorization", resolveErr.Name)
	}

	// No response was received, the transport was not used at all
	assert.Nil(t, response.Meta())
	assert.Equal(t, 0, transport.GetCallCountInfo()["GET https://example.com"])
}

func TestDynamicHeaderOmitted(t *testing.T) {
	t.Parallel()

	// Mocked response
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", `https://example.com`, func(request *http.Request) (*http.Response, error) {
		_, found := request.Header["X-Optional"]
		assert.False(t, found)
		return httpmock.NewStringResponse(200, "test"), nil
	})

	ctx := context.Background()
	c := fetch.New().WithTransport(transport).WithRetry(fetch.TestingRetry())

	// A dynamic header resolved to no values is omitted from the request
	_, err := fetch.NewRequest().
		WithGet("https://example.com").
		AndHeaderValuesFrom("X-Optional", supply.Of[[]string](nil)).
		Send(ctx, c)
	assert.NoError(t, err)
	assert.Equal(t, 1, transport.GetCallCountInfo()["GET https://example.com"])
}

func TestHeaderPrecedence(t *testing.T) {
	t.Parallel()

	// Mocked response
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", `https://example.com`, func(request *http.Request) (*http.Response, error) {
		// The request entry registered last wins over earlier entries and the client default
		assert.Equal(t, []string{"request-value-2"}, request.Header["X-Common"])
		return httpmock.NewStringResponse(200, "test"), nil
	})

	ctx := context.Background()
	c := fetch.New().WithTransport(transport).WithRetry(fetch.TestingRetry()).WithHeader("X-Common", "client-value")
	_, err := fetch.NewRequest().
		WithGet("https://example.com").
		AndHeader("x-common", "request-value-1").
		AndHeader("X-COMMON", "request-value-2").
		Send(ctx, c)
	assert.NoError(t, err)
	assert.Equal(t, 1, transport.GetCallCountInfo()["GET https://example.com"])
}

func TestOnSuccessListener(t *testing.T) {
	t.Parallel()

	// Mocked response
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", `https://example.com`, httpmock.NewStringResponder(200, "test"))

	var events []string
	ctx := context.Background()
	c := fetch.New().WithTransport(transport).WithRetry(fetch.TestingRetry())
	_, err := fetch.NewRequest().
		WithGet("https://example.com").
		WithOnSuccess(func(ctx context.Context, f fetch.Fetcher, response *fetch.Response) error {
			events = append(events, fmt.Sprintf("success/%d", response.StatusCode()))
			return nil
		}).
		WithOnError(func(ctx context.Context, f fetch.Fetcher, response *fetch.Response, err error) error {
			events = append(events, "error")
			return err
		}).
		WithOnComplete(func(ctx context.Context, f fetch.Fetcher, response *fetch.Response, err error) error {
			events = append(events, "complete")
			return err
		}).
		Send(ctx, c)
	assert.NoError(t, err)
	assert.Equal(t, []string{"success/200", "complete"}, events)
}

func TestOnErrorListener(t *testing.T) {
	t.Parallel()

	// Mocked response
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", `https://example.com`, httpmock.NewStringResponder(404, "test"))

	var events []string
	ctx := context.Background()
	c := fetch.New().WithTransport(transport).WithRetry(fetch.TestingRetry())
	_, err := fetch.NewRequest().
		WithGet("https://example.com").
		WithOnSuccess(func(ctx context.Context, f fetch.Fetcher, response *fetch.Response) error {
			events = append(events, "success")
			return nil
		}).
		WithOnError(func(ctx context.Context, f fetch.Fetcher, response *fetch.Response, err error) error {
			events = append(events, "error")
			return err
		}).
		Send(ctx, c)
	assert.Error(t, err)
	assert.Equal(t, []string{"error"}, events)
}

func TestListenerModifiesError(t *testing.T) {
	t.Parallel()

	// Mocked response
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", `https://example.com`, httpmock.NewStringResponder(404, "test"))

	ctx := context.Background()
	c := fetch.New().WithTransport(transport).WithRetry(fetch.TestingRetry())

	// A 404 is mapped by the listener to a nil error
	response, err := fetch.NewRequest().
		WithGet("https://example.com").
		WithOnError(func(ctx context.Context, f fetch.Fetcher, response *fetch.Response, err error) error {
			var statusErr *fetch.StatusError
			if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
				return nil
			}
			return err
		}).
		Send(ctx, c)
	assert.NoError(t, err)
	assert.True(t, response.IsSuccess())
	assert.Equal(t, 404, response.StatusCode())
}

func TestRequestTimeout(t *testing.T) {
	t.Parallel()

	// Mocked response
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "https://example.com", func(request *http.Request) (*http.Response, error) {
		time.Sleep(100 * time.Millisecond) // <<<<<<<
		return httpmock.NewStringResponse(504, "test"), nil
	})

	// Create client
	ctx := context.Background()
	c := fetch.New().
		WithTransport(transport).
		WithRetry(fetch.RetryConfig{
			Condition:           fetch.DefaultRetryCondition(),
			Count:               10,
			TotalRequestTimeout: 5 * time.Millisecond, // <<<<<<<
		})

	// Get
	_, err := fetch.NewRequest().WithGet("https://example.com").Send(ctx, c)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), `request GET "https://example.com" failed: timeout after`)

	var transportErr *fetch.TransportError
	if assert.True(t, errors.As(err, &transportErr)) {
		assert.True(t, transportErr.Timeout())
	}
}

func TestContext_DeadlineExceeded(t *testing.T) {
	t.Parallel()

	// Mocked response
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "https://example.com", func(request *http.Request) (*http.Response, error) {
		time.Sleep(100 * time.Millisecond) // <<<<<<<
		return httpmock.NewStringResponse(504, "test"), nil
	})

	// Create client
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(50*time.Millisecond))
	defer cancel()
	c := fetch.New().WithTransport(transport)

	wg := fetch.NewWaitGroup(ctx, c)
	wg.Send(fetch.NewRequest().WithGet("https://example.com"))
	err := wg.Wait()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), `request GET "https://example.com" failed: timeout after`)
}

func TestContext_Canceled(t *testing.T) {
	t.Parallel()

	// Mocked response
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "https://example.com", func(request *http.Request) (*http.Response, error) {
		time.Sleep(100 * time.Millisecond) // <<<<<<<
		return httpmock.NewStringResponse(504, "test"), nil
	})

	// Create client
	ctx, cancel := context.WithCancel(context.Background())
	c := fetch.New().WithTransport(transport)

	wg := fetch.NewWaitGroup(ctx, c)
	wg.Send(fetch.NewRequest().WithGet("https://example.com"))

	time.Sleep(50 * time.Millisecond)
	cancel()

	err := wg.Wait()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), `request GET "https://example.com" failed: canceled after`)
}

func TestPanicOnNilTransport(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() {
		fetch.New().WithTransport(nil)
	})
	assert.Panics(t, func() {
		fetch.New().WithFetchFunc(nil)
	})
}

func TestPanicOnEmptyClient(t *testing.T) {
	t.Parallel()
	assert.PanicsWithError(t, "client value is not initialized", func() {
		c := fetch.Client{}
		_, _, _ = c.Execute(context.Background(), fetch.NewRequest().WithGet("https://example.com"))
	})
}

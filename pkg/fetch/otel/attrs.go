package otel

import (
	"net/http"
	"net/url"
	"reflect"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sdkforge/go-client/pkg/fetch"
)

const (
	// maskedAttrValue replaces the value of a redacted header or parameter.
	maskedAttrValue = "****"
	// maskedURLPart replaces a dynamic URL part, to keep the metric cardinality low.
	maskedURLPart = "...."
)

type attributes struct {
	config config
	// pathParams of the definition, to mask their resolved values in the sent URLs
	pathParams map[string]string
	// definitionURL is the unresolved URL of the request definition
	definitionURL *url.URL
	// httpURL is the masked URL of the last sent HTTP request
	httpURL *url.URL
	// definition attributes for span and metrics
	definition []attribute.KeyValue
	// definitionExtra attributes for span only
	definitionExtra []attribute.KeyValue
	// httpRequest attributes for span and metrics
	httpRequest []attribute.KeyValue
	// httpRequestExtra attributes for span only
	httpRequestExtra []attribute.KeyValue
	// httpResponse attributes for span and metrics
	httpResponse []attribute.KeyValue
	// httpResponseExtra attributes for span only
	httpResponseExtra []attribute.KeyValue
	// httpResponseError attributes for span and metrics
	httpResponseError []attribute.KeyValue
}

func newAttributes(cfg config, spec fetch.RequestSpec) *attributes {
	out := &attributes{config: cfg, pathParams: spec.PathParams()}

	defURL, err := url.Parse(spec.URL())
	if err != nil {
		defURL = &url.URL{Path: spec.URL()}
	}
	out.definitionURL = defURL

	var resultType string
	if v := reflect.TypeOf(spec.ResultDef()); v != nil {
		resultType = v.String()
	}

	// Definition base
	out.definition = []attribute.KeyValue{
		attribute.String("http.result_type", resultType),
		attribute.String("http.method", spec.Method()),
		attribute.String("http.url", mustURLPathUnescape(defURL.String())),
		attribute.String("http.url_details.scheme", defURL.Scheme),
		attribute.String("http.url_details.path", mustURLPathUnescape(defURL.Path)),
		attribute.String("http.url_details.host", defURL.Host),
	}
	out.definition = append(out.definition, hostParts(defURL.Host)...)

	// Definition headers
	var headerAttrs []attribute.KeyValue
	for k, v := range spec.RequestHeader() {
		value := strings.Join(v, ";")
		if _, found := cfg.redactedHeaders[strings.ToLower(k)]; found {
			value = maskedAttrValue
		}
		headerAttrs = append(headerAttrs, attribute.String("http.header."+k, value))
	}
	sortAttrs(headerAttrs)
	out.definitionExtra = append(out.definitionExtra, headerAttrs...)

	// Definition path parameters
	var pathAttrs []attribute.KeyValue
	for k, v := range spec.PathParams() {
		value := v
		if _, found := cfg.redactedPathParams[strings.ToLower(k)]; found {
			value = maskedAttrValue
		}
		pathAttrs = append(pathAttrs, attribute.String("http.url.path_params."+k, value))
	}
	sortAttrs(pathAttrs)
	out.definitionExtra = append(out.definitionExtra, pathAttrs...)

	// Definition query parameters
	var queryAttrs []attribute.KeyValue
	for k, v := range spec.QueryParams() {
		value := strings.Join(v, ";")
		if _, found := cfg.redactedQueryParams[strings.ToLower(k)]; found {
			value = maskedAttrValue
		}
		queryAttrs = append(queryAttrs, attribute.String("http.query."+k, value))
	}
	sortAttrs(queryAttrs)
	out.definitionExtra = append(out.definitionExtra, queryAttrs...)

	return out
}

func (v *attributes) SetFromRequest(req *http.Request) {
	if req == nil {
		v.httpURL = nil
		v.httpRequest = nil
		v.httpRequestExtra = nil
		return
	}

	maskedURL := v.maskURL(req.URL)
	v.httpURL = maskedURL

	// Base
	v.httpRequest = []attribute.KeyValue{
		attribute.String("http.method", req.Method),
		attribute.String("http.flavor", strings.TrimPrefix(req.Proto, "HTTP/")),
		attribute.String("http.url", mustURLPathUnescape(maskedURL.String())),
		attribute.String("net.peer.name", req.URL.Hostname()),
		attribute.String("http.user_agent", req.UserAgent()),
		attribute.String("http.url_details.scheme", maskedURL.Scheme),
		attribute.String("http.url_details.path", mustURLPathUnescape(maskedURL.Path)),
		attribute.String("http.url_details.host", maskedURL.Host),
	}
	v.httpRequest = append(v.httpRequest, hostParts(maskedURL.Host)...)

	// Extra
	var attrs []attribute.KeyValue
	for key, values := range req.Header {
		key = strings.ToLower(key)
		value := strings.Join(values, ";")
		if key == "user-agent" {
			// Skip, it is already present in the base attributes
			continue
		}
		if _, found := v.config.redactedHeaders[key]; found {
			value = maskedAttrValue
		}
		attrs = append(attrs, attribute.String("http.header."+key, value))
	}
	sortAttrs(attrs)
	v.httpRequestExtra = attrs
}

func (v *attributes) SetFromResponse(res *http.Response, err error) {
	v.httpResponse = nil
	v.httpResponseExtra = nil
	if res != nil {
		// Base
		v.httpResponse = append(v.httpResponse, attribute.Int("http.status_code", res.StatusCode))
		if isRedirection(res) {
			v.httpResponse = append(v.httpResponse, attribute.Bool("http.is_redirection", true))
		}

		// Extra
		var attrs []attribute.KeyValue
		for key, values := range res.Header {
			key = strings.ToLower(key)
			value := strings.Join(values, ";")
			if _, found := v.config.redactedHeaders[key]; found {
				value = maskedAttrValue
			}
			attrs = append(attrs, attribute.String("http.response.header."+key, value))
		}
		sortAttrs(attrs)
		v.httpResponseExtra = attrs
	}

	// Error
	v.httpResponseError = nil
	if errType := errorType(res, err); errType != "" {
		v.httpResponseError = []attribute.KeyValue{attribute.String("http.error_type", errType)}
	}
}

// maskURL replaces the resolved path parameters and all query values with a placeholder.
// The result is used in metric dimensions, dynamic URL parts would explode their cardinality.
func (v *attributes) maskURL(u *url.URL) *url.URL {
	out := *u
	out.User = nil

	// Mask resolved path parameters
	if len(v.pathParams) > 0 {
		segments := strings.Split(out.Path, "/")
		for i, segment := range segments {
			for _, paramValue := range v.pathParams {
				if segment == paramValue {
					segments[i] = maskedURLPart
					break
				}
			}
		}
		out.Path = strings.Join(segments, "/")
		out.RawPath = ""
	}

	// Mask query values
	if query := out.Query(); len(query) > 0 {
		for key := range query {
			query[key] = []string{maskedURLPart}
		}
		out.RawQuery = query.Encode()
	}

	return &out
}

func hostParts(host string) []attribute.KeyValue {
	if dotPos := strings.IndexByte(host, '.'); dotPos > 0 {
		// Host parts: to trace service name (host prefix) and stack (host suffix).
		return []attribute.KeyValue{
			// Host prefix, e.g. "api"
			attribute.String("http.url_details.host_prefix", host[:dotPos]),
			// Host suffix, e.g. "example.com"
			attribute.String("http.url_details.host_suffix", strings.TrimLeft(host[dotPos:], ".")),
		}
	}
	return nil
}

func sortAttrs(attrs []attribute.KeyValue) {
	sort.SliceStable(attrs, func(i, j int) bool {
		return attrs[i].Key < attrs[j].Key
	})
}

func mustURLPathUnescape(in string) string {
	out, err := url.PathUnescape(in)
	if err != nil {
		return in
	}
	return out
}

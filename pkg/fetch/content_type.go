package fetch

import (
	"strings"

	"github.com/umisama/go-regexpcache"
)

const (
	// ContentTypeApplicationJSON is the content type set by WithJSONBody and expected for decoded results.
	ContentTypeApplicationJSON = "application/json"
	// ContentTypeApplicationJSONRegexp matches "application/json" and structured variants, e.g. "application/vnd.foo.api+json".
	ContentTypeApplicationJSONRegexp = `^application/([a-zA-Z0-9\.\-]+\+)?json$`
)

// isJSONContentType reports whether the value of a Content-Type header denotes a JSON body.
// Media type parameters, e.g. "; charset=utf-8", are ignored.
func isJSONContentType(contentType string) bool {
	mediaType, _, _ := strings.Cut(contentType, ";")
	return regexpcache.MustCompile(ContentTypeApplicationJSONRegexp).MatchString(strings.TrimSpace(mediaType))
}

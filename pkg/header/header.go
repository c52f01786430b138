// Package header provides a uniform, case-insensitive view over the header
// container shapes that appear in request and response definitions.
//
// Generated code passes headers around in several shapes: a plain name to
// value map, a name to values map, an ordered sequence of pairs, a native
// http.Header, or an ordered map. Each shape has one constructor that
// normalizes it to a Container, all lookups then share the same rules.
package header

import (
	"net/http"
	"sort"
	"strings"

	"github.com/keboola/go-utils/pkg/orderedmap"
	"github.com/spf13/cast"
)

// Entry is one header name/value pair.
type Entry struct {
	Name  string
	Value string
}

// Container is an immutable, normalized sequence of header entries.
//
// Map-backed shapes have no declaration order, their keys are sorted during
// normalization, so iteration and merging stay deterministic.
type Container struct {
	entries []Entry
}

// FromPairs creates a Container from an ordered sequence of pairs.
// The declaration order is kept, duplicate names are kept too.
func FromPairs(pairs ...Entry) Container {
	entries := make([]Entry, len(pairs))
	copy(entries, pairs)
	return Container{entries: entries}
}

// FromMap creates a Container from a plain name to value map.
func FromMap(m map[string]string) Container {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]Entry, 0, len(m))
	for _, name := range names {
		entries = append(entries, Entry{Name: name, Value: m[name]})
	}
	return Container{entries: entries}
}

// FromValues creates a Container from a name to values map.
// The order of values under one name is kept.
func FromValues(m map[string][]string) Container {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	var entries []Entry
	for _, name := range names {
		for _, value := range m[name] {
			entries = append(entries, Entry{Name: name, Value: value})
		}
	}
	return Container{entries: entries}
}

// FromHTTP creates a Container from a native http.Header.
// Names are already canonicalized by the http package.
func FromHTTP(h http.Header) Container {
	return FromValues(h)
}

// FromOrderedMap creates a Container from an ordered map.
// Values may be a string, a slice, or any value convertible to a string.
func FromOrderedMap(m *orderedmap.OrderedMap) Container {
	if m == nil {
		return Container{}
	}

	var entries []Entry
	for _, name := range m.Keys() {
		value, _ := m.Get(name)
		switch v := value.(type) {
		case []string:
			for _, item := range v {
				entries = append(entries, Entry{Name: name, Value: item})
			}
		case []any:
			for _, item := range v {
				entries = append(entries, Entry{Name: name, Value: cast.ToString(item)})
			}
		default:
			entries = append(entries, Entry{Name: name, Value: cast.ToString(v)})
		}
	}
	return Container{entries: entries}
}

// Get returns the value of the first entry whose name matches
// case-insensitively, in normalized order.
//
// The boolean reports whether the header is present at all, so a header
// present with an empty value is distinguishable from an absent one.
// A lookup on an empty Container is valid and returns ("", false).
func (c Container) Get(name string) (string, bool) {
	for _, e := range c.entries {
		if strings.EqualFold(e.Name, name) {
			return e.Value, true
		}
	}
	return "", false
}

// Values returns all values whose name matches case-insensitively,
// in normalized order. It returns nil when the header is absent.
func (c Container) Values(name string) []string {
	var out []string
	for _, e := range c.entries {
		if strings.EqualFold(e.Name, name) {
			out = append(out, e.Value)
		}
	}
	return out
}

// Has reports whether the header is present, even with an empty value.
func (c Container) Has(name string) bool {
	_, ok := c.Get(name)
	return ok
}

// Len returns the number of entries.
func (c Container) Len() int {
	return len(c.entries)
}

// Entries returns a copy of the normalized entries.
func (c Container) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// AddTo adds all entries to the target header, existing values are kept.
func (c Container) AddTo(h http.Header) {
	for _, e := range c.entries {
		h.Add(e.Name, e.Value)
	}
}

// SetTo sets all entries to the target header, existing values under the
// same names are replaced. A name repeated in the container keeps all its
// values.
func (c Container) SetTo(h http.Header) {
	set := make(map[string]bool)
	for _, e := range c.entries {
		key := http.CanonicalHeaderKey(e.Name)
		if set[key] {
			h.Add(e.Name, e.Value)
		} else {
			h.Set(e.Name, e.Value)
			set[key] = true
		}
	}
}

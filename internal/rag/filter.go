package rag

import (
	"fmt"
	"sort"
	"strings"
)

// Filterable metadata keys.
const (
	FilterCategory       = "category"
	FilterContentType    = "content_type"
	FilterTargetAudience = "target_audience"
	FilterLanguage       = "language"
)

// FilterKeys lists the metadata keys a Filter may constrain.
var FilterKeys = []string{FilterCategory, FilterContentType, FilterTargetAudience, FilterLanguage}

// Filter is a conjunction of exact-match constraints keyed by metadata
// field name. A nil or empty Filter matches everything.
type Filter map[string]string

// Validate rejects keys outside FilterKeys.
func (f Filter) Validate() error {
	for _, k := range f.Keys() {
		if _, ok := (Metadata{}).Field(k); !ok {
			return fmt.Errorf("%w: unknown key %q (allowed: %s)",
				ErrInvalidFilter, k, strings.Join(FilterKeys, ", "))
		}
	}
	return nil
}

// Matches reports whether m satisfies every constraint in f.
// Unknown keys never match.
func (f Filter) Matches(m Metadata) bool {
	for k, want := range f {
		got, ok := m.Field(k)
		if !ok || got != want {
			return false
		}
	}
	return true
}

// Keys returns the constrained keys in sorted order so backends build
// identical queries for identical filters.
func (f Filter) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ParseFilter parses "key=value,key=value" as used by the CLI.
func ParseFilter(s string) (Filter, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	f := Filter{}
	for _, part := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(part, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: malformed constraint %q, want key=value", ErrInvalidFilter, part)
		}
		f[k] = strings.TrimSpace(v)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

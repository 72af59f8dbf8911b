package pager

import (
	"encoding/json"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// SortOrder is the direction of a sort.
type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// Descriptor identifies one logical list request.
type Descriptor struct {
	Page      int // 1-based
	PageSize  int
	Search    string
	Filters   map[string]any
	SortBy    string
	SortOrder SortOrder
}

// Clone returns a copy whose Filters map is not shared with d.
func (d Descriptor) Clone() Descriptor {
	d.Filters = maps.Clone(d.Filters)
	return d
}

// keySeparator joins key segments. Every key starts with namespace+":" so a
// prefix invalidation drops every page of one list.
const keySeparator = ":"

// Key builds the cache key for d under namespace. Filters are serialised
// with sorted keys, so two descriptors with the same content always map to
// the same key regardless of map iteration order.
func Key(namespace string, d Descriptor) string {
	parts := []string{
		namespace,
		"page=" + strconv.Itoa(d.Page),
		"size=" + strconv.Itoa(d.PageSize),
	}
	if d.Search != "" {
		parts = append(parts, "q="+url.QueryEscape(d.Search))
	}
	if d.SortBy != "" {
		parts = append(parts, "sort="+url.QueryEscape(d.SortBy)+","+string(d.SortOrder))
	}
	if len(d.Filters) > 0 {
		parts = append(parts, "f="+serializeFilters(d.Filters))
	}
	return strings.Join(parts, keySeparator)
}

// Prefix returns the key prefix shared by every descriptor of namespace.
func Prefix(namespace string) string {
	return namespace + keySeparator
}

// serializeFilters renders filters deterministically. encoding/json sorts
// map keys; values it cannot encode fall back to %v per key.
func serializeFilters(filters map[string]any) string {
	if b, err := json.Marshal(filters); err == nil {
		return string(b)
	}
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%q:%v", k, filters[k])
	}
	sb.WriteByte('}')
	return sb.String()
}

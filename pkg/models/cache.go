package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// CacheValue is a cached generation result. Audio and video results are a
// single URL or path; image results are an ordered list of URLs.
type CacheValue struct {
	items    []string
	multiple bool
}

// Single returns a CacheValue holding one URL or path.
func Single(v string) CacheValue {
	return CacheValue{items: []string{v}}
}

// Multiple returns a CacheValue holding an ordered list of URLs or paths.
func Multiple(vs []string) CacheValue {
	items := make([]string, len(vs))
	copy(items, vs)
	return CacheValue{items: items, multiple: true}
}

// IsMultiple reports whether the value is a list.
func (v CacheValue) IsMultiple() bool { return v.multiple }

// IsZero reports whether the value holds nothing.
func (v CacheValue) IsZero() bool { return len(v.items) == 0 }

// First returns the first item, or "" when empty.
func (v CacheValue) First() string {
	if len(v.items) == 0 {
		return ""
	}
	return v.items[0]
}

// Items returns a copy of all items in order.
func (v CacheValue) Items() []string {
	out := make([]string, len(v.items))
	copy(out, v.items)
	return out
}

// Equal reports whether two values have the same shape and items.
func (v CacheValue) Equal(o CacheValue) bool {
	if v.multiple != o.multiple || len(v.items) != len(o.items) {
		return false
	}
	for i := range v.items {
		if v.items[i] != o.items[i] {
			return false
		}
	}
	return true
}

// MarshalJSON encodes Single as a JSON string and Multiple as an array.
func (v CacheValue) MarshalJSON() ([]byte, error) {
	if v.multiple {
		if v.items == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.items)
	}
	return json.Marshal(v.First())
}

// UnmarshalJSON accepts either a JSON string or an array of strings.
func (v *CacheValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = Single(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("cache value: %w", errors.Join(ErrInvalidCacheValue, err))
	}
	*v = Multiple(list)
	return nil
}

// ErrInvalidCacheValue is returned when a stored value is neither a string nor a list.
var ErrInvalidCacheValue = errors.New("cache value must be a string or a list of strings")

// CacheStats reports cache size and effectiveness for one namespace.
type CacheStats struct {
	Kind    string `json:"kind"`
	Backend string `json:"backend"`
	Entries int    `json:"entries"`
	Hits    int64  `json:"hits"`
	Misses  int64  `json:"misses"`
}

package provider

import (
	"errors"

	"github.com/tidwall/gjson"

	"github.com/sa-platform/sa/pkg/models"
)

// ErrEmptyOutput is wrapped when a provider returns nothing usable.
var ErrEmptyOutput = errors.New("empty output")

// Output is a normalized provider result: one URL, or an ordered list.
type Output struct {
	urls     []string
	multiple bool
}

// SingleOutput wraps one URL.
func SingleOutput(url string) Output {
	return Output{urls: []string{url}}
}

// MultipleOutput wraps an ordered list of URLs.
func MultipleOutput(urls []string) Output {
	cp := make([]string, len(urls))
	copy(cp, urls)
	return Output{urls: cp, multiple: true}
}

// URLs returns every URL in order. A single output yields a one-element list.
func (o Output) URLs() []string {
	cp := make([]string, len(o.urls))
	copy(cp, o.urls)
	return cp
}

// First returns the first URL or "".
func (o Output) First() string {
	if len(o.urls) == 0 {
		return ""
	}
	return o.urls[0]
}

// IsMultiple reports whether the provider returned a list.
func (o Output) IsMultiple() bool { return o.multiple }

// Empty reports whether there is no URL at all.
func (o Output) Empty() bool { return len(o.urls) == 0 }

// ParseOutput normalizes a raw JSON "output" value. A string becomes a
// single output and an array becomes a list of its string elements.
// Anything else, including an empty result, is rejected.
func ParseOutput(name string, raw []byte) (Output, error) {
	if !gjson.ValidBytes(raw) {
		return Output{}, Rejected(name, errors.New("output is not valid JSON"))
	}
	res := gjson.ParseBytes(raw)
	switch {
	case res.Type == gjson.String:
		if res.Str == "" {
			return Output{}, Rejected(name, ErrEmptyOutput)
		}
		return SingleOutput(res.Str), nil
	case res.IsArray():
		var urls []string
		for _, item := range res.Array() {
			if item.Type == gjson.String && item.Str != "" {
				urls = append(urls, item.Str)
			}
		}
		if len(urls) == 0 {
			return Output{}, Rejected(name, ErrEmptyOutput)
		}
		return MultipleOutput(urls), nil
	default:
		return Output{}, Rejected(name, errors.New("unexpected output shape: "+res.Type.String()))
	}
}

// ImageValue converts an output into the list-shaped cache value used for images.
func (o Output) ImageValue() models.CacheValue {
	return models.Multiple(o.urls)
}

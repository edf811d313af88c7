package encode

import (
	"strings"

	"github.com/keboola/go-fetch/pkg/params"
)

// listSuffix is an escaped "[]", it is appended to the key for each list item.
const listSuffix = "%5B%5D"

// pairFn is called for each scalar value.
// The name is the parameter key, the key is the escaped form including list suffixes.
type pairFn func(name, key string, value params.Value) error

// walkPairs flattens the map to key/value pairs, lists are expanded to repeated "key[]" pairs, recursively.
func walkPairs(p *params.Map, allowed *charset, fn pairFn) error {
	for _, name := range p.Keys() {
		value, _ := p.Get(name)
		if err := walkValue(name, escape(name, allowed), value, fn); err != nil {
			return err
		}
	}
	return nil
}

func walkValue(name, key string, value params.Value, fn pairFn) error {
	if list, ok := value.(params.List); ok {
		for _, item := range list {
			if err := walkValue(name, key+listSuffix, item, fn); err != nil {
				return err
			}
		}
		return nil
	}
	return fn(name, key, value)
}

// Query encodes parameters to a query string, without the leading "?".
// Files and blobs cannot be represented in a query string, they are skipped.
func Query(p *params.Map) string {
	var pairs []string
	_ = walkPairs(p, queryChars, func(_, key string, value params.Value) error {
		switch value.(type) {
		case params.File, params.Blob:
			return nil
		}
		if text, ok := params.Text(value); ok {
			pairs = append(pairs, key+"="+escape(text, queryChars))
		}
		return nil
	})
	return strings.Join(pairs, "&")
}

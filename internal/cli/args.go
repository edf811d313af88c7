package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"github.com/keboola/go-fetch/pkg/params"
)

const listSuffix = "[]"

// parseParams converts flag values to parameters, string flags first, then numbers, then files.
// Keys with the "[]" suffix are collected to a list, for example "tags[]=a" and "tags[]=b", or "ids[]=1" and "ids[]=2".
// A key cannot be used both as a single value and as a list.
func parseParams(strs, numbers, files []string) (*params.Map, error) {
	out := params.NewMap()

	for _, raw := range strs {
		key, value, err := splitPair(raw, "=")
		if err == nil {
			err = addParam(out, key, params.String(value))
		}
		if err != nil {
			return nil, fmt.Errorf(`invalid parameter "%s": %w`, raw, err)
		}
	}

	for _, raw := range numbers {
		key, value, err := splitPair(raw, "=")
		if err == nil {
			var number params.Value
			if number, err = parseNumber(value); err == nil {
				err = addParam(out, key, number)
			}
		}
		if err != nil {
			return nil, fmt.Errorf(`invalid numeric parameter "%s": %w`, raw, err)
		}
	}

	for _, raw := range files {
		key, value, err := splitPair(raw, "=")
		if err == nil {
			err = addParam(out, key, params.File(value))
		}
		if err != nil {
			return nil, fmt.Errorf(`invalid file parameter "%s": %w`, raw, err)
		}
	}

	return out, nil
}

// addParam sets the value, or appends it to the list, if the key has the "[]" suffix.
func addParam(out *params.Map, key string, value params.Value) error {
	name, hasSuffix := strings.CutSuffix(key, listSuffix)
	if !hasSuffix || name == "" {
		if existing, found := out.Get(key); found && isList(existing) {
			return fmt.Errorf(`key "%s" is already used as a list "%s%s"`, key, key, listSuffix)
		}
		out.Set(key, value)
		return nil
	}

	var list params.List
	if existing, found := out.Get(name); found {
		if !isList(existing) {
			return fmt.Errorf(`key "%s" is already used as a single value "%s"`, key, name)
		}
		list = existing.(params.List)
	}
	// The list stored in the map is not modified
	out.Set(name, append(list[:len(list):len(list)], value))
	return nil
}

func isList(v params.Value) bool {
	_, ok := v.(params.List)
	return ok
}

func parseNumber(value string) (params.Value, error) {
	if v, err := cast.ToInt64E(value); err == nil {
		return params.Int(v), nil
	}
	if v, err := cast.ToFloat64E(value); err == nil {
		return params.Float(v), nil
	}
	return nil, fmt.Errorf(`"%s" is not a number`, value)
}

func parseHeader(raw string) (key, value string, err error) {
	key, value, err = splitPair(raw, ":")
	if err != nil {
		return "", "", fmt.Errorf(`invalid header "%s": %w`, raw, err)
	}
	return key, strings.TrimSpace(value), nil
}

func splitPair(raw, sep string) (key, value string, err error) {
	key, value, found := strings.Cut(raw, sep)
	key = strings.TrimSpace(key)
	if !found || key == "" {
		return "", "", fmt.Errorf(`expected "key%svalue"`, sep)
	}
	return key, value, nil
}

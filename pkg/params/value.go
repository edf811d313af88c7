// Package params defines request parameter values and the ordered parameter map.
//
// Value is a closed set of types: String, Int, Float, File, Blob and List.
// Dynamic Go values are converted by FromAny, unsupported types are rejected with *UnsupportedTypeError.
// Whether a particular Value kind can be encoded depends on the target encoding, see the encode package.
package params

import (
	"fmt"
	"net/url"
	"reflect"
	"strconv"

	"github.com/spf13/cast"
)

// Kind identifies a Value type.
type Kind int

const (
	KindString Kind = iota + 1
	KindInt
	KindFloat
	KindFile
	KindBlob
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindFile:
		return "file"
	case KindBlob:
		return "blob"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

// Value is a request parameter value.
type Value interface {
	Kind() Kind
	// Native returns the plain Go representation, used for JSON encoding.
	Native() any
	sealed()
}

// String parameter.
type String string

// Int parameter.
type Int int64

// Float parameter.
type Float float64

// File is a reference to a file, a local path or a URL, its content is read at encode time.
type File string

// Blob is raw binary content.
type Blob []byte

// List of values, it can be nested.
type List []Value

func (String) Kind() Kind { return KindString }
func (Int) Kind() Kind    { return KindInt }
func (Float) Kind() Kind  { return KindFloat }
func (File) Kind() Kind   { return KindFile }
func (Blob) Kind() Kind   { return KindBlob }
func (List) Kind() Kind   { return KindList }

func (v String) Native() any { return string(v) }
func (v Int) Native() any    { return int64(v) }
func (v Float) Native() any  { return float64(v) }
func (v File) Native() any   { return string(v) }
func (v Blob) Native() any   { return []byte(v) }
func (v List) Native() any {
	out := make([]any, len(v))
	for i, item := range v {
		out[i] = item.Native()
	}
	return out
}

func (String) sealed() {}
func (Int) sealed()    {}
func (Float) sealed()  {}
func (File) sealed()   {}
func (Blob) sealed()   {}
func (List) sealed()   {}

// Text returns the textual form of a scalar value.
// Ints are formatted as decimal, floats in the shortest representation, files as the reference itself.
// Blob and List have no textual form, ok is false.
func Text(v Value) (s string, ok bool) {
	switch v := v.(type) {
	case String:
		return string(v), true
	case Int:
		return strconv.FormatInt(int64(v), 10), true
	case Float:
		return cast.ToString(float64(v)), true
	case File:
		return string(v), true
	default:
		return "", false
	}
}

// Strings creates a List of String values.
func Strings(items ...string) List {
	out := make(List, len(items))
	for i, item := range items {
		out[i] = String(item)
	}
	return out
}

// UnsupportedTypeError is returned when a Go value cannot be converted to a Value.
type UnsupportedTypeError struct {
	Key   string
	Value any
}

func (e *UnsupportedTypeError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf(`unsupported parameter type %T`, e.Value)
	}
	return fmt.Sprintf(`parameter "%s": unsupported type %T`, e.Key, e.Value)
}

// FromAny converts a Go value to a Value.
//
// Supported are: Value, string, signed and unsigned integers, floats, []byte, *url.URL (as File)
// and slices or arrays of the supported types (as List).
func FromAny(v any) (Value, error) {
	switch v := v.(type) {
	case nil:
		return nil, &UnsupportedTypeError{Value: v}
	case Value:
		return v, nil
	case string:
		return String(v), nil
	case []byte:
		return Blob(v), nil
	case *url.URL:
		if v == nil {
			return nil, &UnsupportedTypeError{Value: v}
		}
		return File(v.String()), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32:
		return Int(cast.ToInt64(v)), nil
	case uint64:
		if v > 1<<63-1 {
			return nil, &UnsupportedTypeError{Value: v}
		}
		return Int(int64(v)), nil
	case float32, float64:
		return Float(cast.ToFloat64(v)), nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make(List, rv.Len())
		for i := range rv.Len() {
			item, err := FromAny(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = item
		}
		return out, nil
	}

	return nil, &UnsupportedTypeError{Value: v}
}

package encode

import (
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"github.com/keboola/go-fetch/pkg/params"
)

const encodingForm = "form-urlencoded"

// Form encodes parameters to an "application/x-www-form-urlencoded" body.
// Files are encoded as the reference itself, blobs are not supported.
func Form(p *params.Map) ([]byte, error) {
	var pairs []string
	err := walkPairs(p, formChars, func(name, key string, value params.Value) error {
		text, ok := formText(value)
		if !ok {
			return &UnsupportedParameterTypeError{Key: name, Kind: value.Kind(), Encoding: encodingForm}
		}
		pairs = append(pairs, key+"="+escape(text, formChars))
		return nil
	})
	if err != nil {
		return nil, &EncodeError{Encoding: encodingForm, Err: err}
	}
	return []byte(strings.Join(pairs, "&")), nil
}

// formText converts a scalar to string, strings pass through, ints are decimal, the rest is cast.
func formText(value params.Value) (string, bool) {
	switch v := value.(type) {
	case params.String:
		return string(v), true
	case params.Int:
		return strconv.FormatInt(int64(v), 10), true
	case params.Float, params.File:
		s, err := cast.ToStringE(v.Native())
		return s, err == nil
	default:
		return "", false
	}
}

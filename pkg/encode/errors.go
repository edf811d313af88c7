package encode

import (
	"errors"
	"fmt"

	"github.com/keboola/go-fetch/pkg/params"
)

// ErrUnsupportedMethod is returned for a method other than GET, HEAD, OPTIONS, POST, PUT, PATCH and DELETE.
var ErrUnsupportedMethod = errors.New("unsupported method")

// UnsupportedParameterTypeError is returned if a parameter kind cannot be represented by the body encoding.
type UnsupportedParameterTypeError struct {
	Key      string
	Kind     params.Kind
	Encoding string
}

func (e *UnsupportedParameterTypeError) Error() string {
	return fmt.Sprintf(`parameter "%s": %s value is not supported by %s encoding`, e.Key, e.Kind, e.Encoding)
}

// EncodeError wraps any failure of encoding the request body.
type EncodeError struct { //nolint:revive
	Encoding string
	Err      error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf(`cannot encode %s body: %s`, e.Encoding, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// URLError is returned if the endpoint, including the query string, is not a valid absolute URL.
type URLError struct {
	URL string
	Err error
}

func (e *URLError) Error() string {
	return fmt.Sprintf(`invalid url "%s": %s`, e.URL, e.Err)
}

func (e *URLError) Unwrap() error {
	return e.Err
}

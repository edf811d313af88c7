package request

import (
	"fmt"
	"net/http"
)

// NoStatus is the status code of a Result, if no HTTP response has been received.
const NoStatus = -1

// Result of a request, it is a success if Err is nil.
type Result struct {
	Body       []byte
	StatusCode int
	Header     http.Header
	Err        error
}

// Success creates a successful Result.
func Success(body []byte, statusCode int) Result {
	if body == nil {
		body = []byte{}
	}
	return Result{Body: body, StatusCode: statusCode}
}

// Failure creates a failed Result, use NoStatus if no HTTP response has been received.
func Failure(err error, statusCode int) Result {
	return Result{Err: err, StatusCode: statusCode}
}

// IsSuccess returns true if the request succeeded.
func (r Result) IsSuccess() bool {
	return r.Err == nil
}

// HasStatus returns true if an HTTP response has been received.
func (r Result) HasStatus() bool {
	return r.StatusCode != NoStatus
}

// resultOf maps the output of a Sender to a Result.
func resultOf(response *Response, err error) Result {
	if response == nil || response.StatusCode <= 0 {
		if err == nil {
			err = ErrBadResponse
		}
		return Failure(err, NoStatus)
	}

	var out Result
	code := response.StatusCode
	switch {
	case err != nil:
		out = Failure(err, code)
	case code < 200 || code > 299:
		out = Failure(fmt.Errorf("%w: %d %s", ErrServerError, code, http.StatusText(code)), code)
	default:
		out = Success(response.Body, code)
	}
	if out.Body == nil {
		out.Body = response.Body
	}
	out.Header = response.Header
	return out
}

package request

import "errors"

var (
	// ErrEndpointIsNil is returned if the request has no endpoint.
	ErrEndpointIsNil = errors.New("endpoint is not set")
	// ErrIncompleteRequest is returned if the request cannot be encoded, it wraps the cause.
	ErrIncompleteRequest = errors.New("incomplete request")
	// ErrBadResponse is returned if no HTTP status has been received and the sender reported no error.
	ErrBadResponse = errors.New("bad response")
	// ErrServerError is returned for a status outside the 2xx range.
	ErrServerError = errors.New("server error")
	// ErrNilSender is returned by Execute if no sender is provided.
	ErrNilSender = errors.New("sender is nil")
)

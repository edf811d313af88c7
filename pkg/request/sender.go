package request

import (
	"context"
	"net/http"

	"github.com/keboola/go-fetch/pkg/encode"
)

// Sender represents an HTTP transport, the client.Client is a default implementation using the standard net/http package.
type Sender interface {
	// Send sends the request and returns the response.
	// A nil response means that no HTTP status has been received.
	Send(ctx context.Context, request *encode.WireRequest) (*Response, error)
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, request *encode.WireRequest) (*Response, error)

func (f SenderFunc) Send(ctx context.Context, request *encode.WireRequest) (*Response, error) {
	return f(ctx, request)
}

// Response received by a Sender, the body is fully read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Sendable is a Spec or a group of Specs, see Parallel.
type Sendable interface {
	SendOrErr(ctx context.Context, sender Sender) error
}

package request

import (
	"context"

	"github.com/keboola/go-fetch/pkg/encode"
)

// Handle represents an in-flight request started by Spec.Execute.
type Handle struct {
	request *encode.WireRequest
	cancel  context.CancelFunc
	done    chan struct{}
	result  Result
}

func newHandle(request *encode.WireRequest, cancel context.CancelFunc) *Handle {
	return &Handle{request: request, cancel: cancel, done: make(chan struct{})}
}

// Request returns the encoded request.
func (h *Handle) Request() *encode.WireRequest {
	return h.request
}

// Done returns a channel which is closed when the request is completed.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Result returns the result of the completed request.
// It blocks until the request is completed.
func (h *Handle) Result() Result {
	<-h.done
	return h.result
}

// Wait for the result.
// If the context is done first, waiting stops with a failure, the request is not cancelled.
func (h *Handle) Wait(ctx context.Context) Result {
	select {
	case <-h.done:
		return h.result
	case <-ctx.Done():
		return Failure(ctx.Err(), NoStatus)
	}
}

// Cancel the request, the completion handler is still called, with the cancellation failure.
func (h *Handle) Cancel() {
	h.cancel()
}

func (h *Handle) finish(result Result) {
	h.result = result
	close(h.done)
}

package request

import (
	"context"
)

// Execute encodes the request and sends it asynchronously by the sender.
//
// If the request cannot be built, or the sender is nil, the failure with NoStatus is delivered
// to the completion handler, if any, and the error is returned without a Handle.
// Otherwise, the request is sent in a new goroutine. The completion handler is called first,
// then the Result is available from the Handle. Both happen exactly once.
func (s Spec) Execute(ctx context.Context, sender Sender) (*Handle, error) {
	request, err := s.Build(ctx)
	if err != nil {
		s.complete(ctx, Failure(err, NoStatus))
		return nil, err
	}
	if sender == nil {
		s.complete(ctx, Failure(ErrNilSender, NoStatus))
		return nil, ErrNilSender
	}

	sendCtx, cancel := context.WithCancel(ctx)
	handle := newHandle(request, cancel)
	go func() {
		defer cancel()
		result := resultOf(sender.Send(sendCtx, request))
		s.complete(ctx, result)
		handle.finish(result)
	}()
	return handle, nil
}

// ExecuteAndWait executes the request and waits for the Result, see Execute.
func (s Spec) ExecuteAndWait(ctx context.Context, sender Sender) Result {
	handle, err := s.Execute(ctx, sender)
	if err != nil {
		return Failure(err, NoStatus)
	}
	return handle.Wait(ctx)
}

func (s Spec) complete(ctx context.Context, result Result) {
	if s.onComplete != nil {
		s.onComplete(ctx, result)
	}
}

// Package counter provides a body wrapper which counts read bytes and optionally limits them.
package counter

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// ReadCloser wraps an io.ReadCloser (request/response body) to count bytes read from the reader.
// Optionally, an OnClose callback can be registered, it is called once, on the first Close.
type ReadCloser struct {
	wrapped   io.ReadCloser
	onClose   OnClose
	limit     int64
	closeOnce sync.Once
	bytes     int64
	readErr   error
}

// OnClose callback receives the number of read bytes and the read or close error, if any.
type OnClose func(bytes int64, err error)

// LimitError is returned by Read if the body is longer than the limit.
type LimitError struct {
	Limit int64
}

func (e *LimitError) Error() string {
	return fmt.Sprintf(`body exceeds the limit of %d bytes`, e.Limit)
}

func NewReadCloser(wrapped io.ReadCloser, onClose OnClose) *ReadCloser {
	return &ReadCloser{wrapped: wrapped, onClose: onClose}
}

// NewLimitedReadCloser returns a reader which fails with the LimitError after limit bytes, if more data follows.
// Zero or negative limit means no limit.
func NewLimitedReadCloser(wrapped io.ReadCloser, limit int64, onClose OnClose) *ReadCloser {
	return &ReadCloser{wrapped: wrapped, limit: limit, onClose: onClose}
}

func (w *ReadCloser) Bytes() int64 {
	return w.bytes
}

func (w *ReadCloser) Read(b []byte) (int, error) {
	if w.limit <= 0 {
		n, err := w.wrapped.Read(b)
		w.bytes += int64(n)
		w.setReadErr(err)
		return n, err
	}

	if w.readErr != nil {
		return 0, w.readErr
	}

	// Read one byte over the limit, to detect more data
	if remaining := w.limit - w.bytes + 1; int64(len(b)) > remaining {
		b = b[:remaining]
	}
	n, err := w.wrapped.Read(b)
	if w.bytes+int64(n) > w.limit {
		n = int(w.limit - w.bytes)
		err = &LimitError{Limit: w.limit}
	}
	w.bytes += int64(n)
	w.setReadErr(err)
	return n, err
}

func (w *ReadCloser) Close() error {
	closeErr := w.wrapped.Close()
	w.closeOnce.Do(func() {
		if w.onClose == nil {
			return
		}
		// The read error is reported in favour of the close error
		var onCloseErr error
		if w.readErr != nil && !errors.Is(w.readErr, io.EOF) {
			onCloseErr = w.readErr
		} else if closeErr != nil {
			onCloseErr = closeErr
		}
		w.onClose(w.bytes, onCloseErr)
	})
	return closeErr
}

func (w *ReadCloser) setReadErr(err error) {
	if err != nil {
		w.readErr = err
	}
}

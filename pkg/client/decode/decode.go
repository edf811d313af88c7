// Package decode decompresses response bodies by the Content-Encoding header.
package decode

import (
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
)

// Supported returns the Accept-Encoding header value with all supported encodings.
func Supported() string {
	return "gzip, deflate, br"
}

// Decode wraps the body with a decoder for the content encoding.
// The body is returned unchanged for the "identity" and an empty encoding.
// Closing the returned reader closes the body.
func Decode(body io.ReadCloser, contentEncoding string) (io.ReadCloser, error) {
	contentEncoding = strings.ToLower(strings.TrimSpace(contentEncoding))
	switch contentEncoding {
	case "", "identity":
		return body, nil
	case "gzip", "x-gzip":
		v, err := gzip.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("cannot decode gzip: %w", err)
		}
		return readCloser{Reader: v, closers: []io.Closer{v, body}}, nil
	case "deflate":
		v, err := zlib.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("cannot decode deflate: %w", err)
		}
		return readCloser{Reader: v, closers: []io.Closer{v, body}}, nil
	case "br":
		return readCloser{Reader: brotli.NewReader(body), closers: []io.Closer{body}}, nil
	default:
		return nil, fmt.Errorf(`unsupported content encoding "%s"`, contentEncoding)
	}
}

// readCloser closes the decoder and the underlying body.
type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (r readCloser) Close() error {
	var firstErr error
	for _, c := range r.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

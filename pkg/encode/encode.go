// Package encode converts a method, an endpoint, a header and parameters to a wire request.
//
// Parameters of GET, HEAD and OPTIONS requests are encoded to the query string.
// Parameters of POST, PUT, PATCH and DELETE requests are encoded to the body,
// the encoding is selected by the Content-Type header:
//   - contains "json": JSON object, it is the default,
//   - contains "form-urlencoded": "key=value" pairs joined by "&",
//   - anything else: multipart/form-data, the Content-Type is replaced to include the boundary.
//
// Encoding is pure except for reading file references of multipart parts.
package encode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/keboola/go-fetch/pkg/params"
	"github.com/keboola/go-fetch/pkg/source"
)

// WireRequest is a fully encoded request, ready to be sent.
// It should be treated as immutable, use Clone to get a modifiable copy.
type WireRequest struct {
	Method string
	URL    *url.URL
	Header http.Header
	// Body is nil for bodyless methods.
	Body []byte
}

// Clone returns a deep copy.
func (r *WireRequest) Clone() *WireRequest {
	out := *r
	u := *r.URL
	out.URL = &u
	out.Header = r.Header.Clone()
	if r.Body != nil {
		out.Body = bytes.Clone(r.Body)
	}
	return &out
}

// HTTPRequest converts the request to the net/http form.
func (r *WireRequest) HTTPRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}
	out, err := http.NewRequestWithContext(ctx, r.Method, r.URL.String(), body)
	if err != nil {
		return nil, err
	}
	out.Header = r.Header.Clone()
	return out, nil
}

type config struct {
	source   source.Source
	boundary string
}

// Option for Encode.
type Option func(c *config)

// WithSource sets the source of multipart file references, source.Default() is used by default.
func WithSource(src source.Source) Option {
	return func(c *config) {
		c.source = src
	}
}

// WithBoundary sets a fixed multipart boundary, a unique one is generated for each request by default.
func WithBoundary(boundary string) Option {
	return func(c *config) {
		c.boundary = boundary
	}
}

// IsBodyless returns true for methods whose parameters are encoded to the query string.
func IsBodyless(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// Encode converts the request definition to a WireRequest.
// The header and the parameters are not modified.
func Encode(ctx context.Context, method, endpoint string, header http.Header, p *params.Map, opts ...Option) (*WireRequest, error) {
	cfg := config{}
	for _, o := range opts {
		o(&cfg)
	}

	out := &WireRequest{Method: method, Header: finalizeHeader(header)}
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		u, err := parseEndpoint(endpoint, Query(p))
		if err != nil {
			return nil, err
		}
		out.URL = u
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		u, err := parseEndpoint(endpoint, "")
		if err != nil {
			return nil, err
		}
		out.URL = u
		if err := encodeBody(ctx, out, p, cfg); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf(`%w "%s"`, ErrUnsupportedMethod, method)
	}
	return out, nil
}

// Get is a shortcut for Encode with http.MethodGet.
func Get(ctx context.Context, endpoint string, header http.Header, p *params.Map) (*WireRequest, error) {
	return Encode(ctx, http.MethodGet, endpoint, header, p)
}

// Head is a shortcut for Encode with http.MethodHead.
func Head(ctx context.Context, endpoint string, header http.Header, p *params.Map) (*WireRequest, error) {
	return Encode(ctx, http.MethodHead, endpoint, header, p)
}

// Options is a shortcut for Encode with http.MethodOptions.
func Options(ctx context.Context, endpoint string, header http.Header, p *params.Map) (*WireRequest, error) {
	return Encode(ctx, http.MethodOptions, endpoint, header, p)
}

// Post is a shortcut for Encode with http.MethodPost.
func Post(ctx context.Context, endpoint string, header http.Header, p *params.Map, opts ...Option) (*WireRequest, error) {
	return Encode(ctx, http.MethodPost, endpoint, header, p, opts...)
}

// Put is a shortcut for Encode with http.MethodPut.
func Put(ctx context.Context, endpoint string, header http.Header, p *params.Map, opts ...Option) (*WireRequest, error) {
	return Encode(ctx, http.MethodPut, endpoint, header, p, opts...)
}

// Patch is a shortcut for Encode with http.MethodPatch.
func Patch(ctx context.Context, endpoint string, header http.Header, p *params.Map, opts ...Option) (*WireRequest, error) {
	return Encode(ctx, http.MethodPatch, endpoint, header, p, opts...)
}

// Delete is a shortcut for Encode with http.MethodDelete.
func Delete(ctx context.Context, endpoint string, header http.Header, p *params.Map, opts ...Option) (*WireRequest, error) {
	return Encode(ctx, http.MethodDelete, endpoint, header, p, opts...)
}

func encodeBody(ctx context.Context, out *WireRequest, p *params.Map, cfg config) (err error) {
	switch bodyEncodingOf(out.Header.Get(HeaderContentType)) {
	case bodyJSON:
		out.Body, err = JSON(p)
	case bodyForm:
		out.Body, err = Form(p)
	case bodyMultipart:
		boundary := cfg.boundary
		if boundary == "" {
			boundary = NewBoundary()
		}
		src := cfg.source
		if src == nil {
			src = source.Default()
		}
		out.Body, err = Multipart(ctx, p, boundary, src)
		out.Header.Set(HeaderContentType, ContentTypeMultipart+"; boundary="+boundary)
	}
	return err
}

// parseEndpoint appends the query to the endpoint and checks that the result is an absolute URL.
func parseEndpoint(endpoint, query string) (*url.URL, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, &URLError{URL: endpoint, Err: unwrapURLError(err)}
	}
	if query != "" {
		if u.RawQuery == "" {
			u.RawQuery = query
		} else {
			u.RawQuery += "&" + query
		}
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, &URLError{URL: u.String(), Err: errors.New("absolute URL with a host expected")}
	}
	return u, nil
}

func unwrapURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}

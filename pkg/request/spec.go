package request

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/keboola/go-fetch/pkg/encode"
	"github.com/keboola/go-fetch/pkg/params"
	"github.com/keboola/go-fetch/pkg/source"
)

// Spec is an immutable definition of an HTTP request.
// Each With* and And* method returns a modified copy, the original value is never changed.
type Spec struct {
	method     string
	endpoint   string
	header     http.Header
	params     *params.Map
	paramErrs  map[string]error // unsupported values by the key, a later valid value of the key clears the error
	onComplete func(ctx context.Context, result Result)
	encodeOpts []encode.Option
}

// New creates a request definition, the method must be one of GET, HEAD, OPTIONS, POST, PUT, PATCH and DELETE.
// An empty endpoint is allowed, Build and Execute then fail with ErrEndpointIsNil.
func New(method, endpoint string) Spec {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		panic(fmt.Errorf(`method "%s" is not supported`, method))
	}
	return Spec{method: method, endpoint: endpoint, header: make(http.Header), params: params.NewMap()}
}

// Get is shortcut for New(http.MethodGet, endpoint).
func Get(endpoint string) Spec {
	return New(http.MethodGet, endpoint)
}

// Head is shortcut for New(http.MethodHead, endpoint).
func Head(endpoint string) Spec {
	return New(http.MethodHead, endpoint)
}

// Options is shortcut for New(http.MethodOptions, endpoint).
func Options(endpoint string) Spec {
	return New(http.MethodOptions, endpoint)
}

// Post is shortcut for New(http.MethodPost, endpoint).
func Post(endpoint string) Spec {
	return New(http.MethodPost, endpoint)
}

// Put is shortcut for New(http.MethodPut, endpoint).
func Put(endpoint string) Spec {
	return New(http.MethodPut, endpoint)
}

// Patch is shortcut for New(http.MethodPatch, endpoint).
func Patch(endpoint string) Spec {
	return New(http.MethodPatch, endpoint)
}

// Delete is shortcut for New(http.MethodDelete, endpoint).
func Delete(endpoint string) Spec {
	return New(http.MethodDelete, endpoint)
}

func (s Spec) Method() string {
	return s.method
}

func (s Spec) Endpoint() string {
	return s.endpoint
}

// Header returns a copy of the request header.
func (s Spec) Header() http.Header {
	return s.header.Clone()
}

// Params returns a copy of the request parameters.
func (s Spec) Params() *params.Map {
	return s.params.Clone()
}

// WithAuth sets the "Authorization: Bearer <token>" header, an empty token is ignored.
func (s Spec) WithAuth(token string) Spec {
	if token == "" {
		return s
	}
	return s.AndHeader("Authorization", "Bearer "+token)
}

// AndParam sets a single parameter, the value is converted by params.FromAny.
// A nil value is ignored. An unsupported value replaces the previous value of the key and is reported by Build,
// unless the key is set again to a supported value.
func (s Spec) AndParam(key string, value any) Spec {
	if value == nil {
		return s
	}
	v, err := params.FromAny(value)
	if err != nil {
		s.params = s.params.Clone()
		s.params.Delete(key)
		s.paramErrs = cloneErrs(s.paramErrs)
		s.paramErrs[key] = &params.UnsupportedTypeError{Key: key, Value: value}
		return s
	}
	return s.AndParamValue(key, v)
}

// AndParamValue sets a single parameter.
func (s Spec) AndParamValue(key string, value params.Value) Spec {
	if value == nil {
		return s
	}
	s.params = s.params.Clone().Set(key, value)
	s.paramErrs = withoutErrs(s.paramErrs, key)
	return s
}

// WithParams merges the parameters, values of existing keys are overwritten.
// Keys are set in the sorted order. Nil values are ignored, an unsupported value is reported by Build.
func (s Spec) WithParams(in map[string]any) Spec {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s = s.AndParam(k, in[k])
	}
	return s
}

// WithParamMap merges the parameters, values of existing keys are overwritten.
func (s Spec) WithParamMap(m *params.Map) Spec {
	s.params = s.params.Extend(m)
	s.paramErrs = withoutErrs(s.paramErrs, m.Keys()...)
	return s
}

// AndHeader sets a single header field and its value.
func (s Spec) AndHeader(key, value string) Spec {
	s.header = cloneHeader(s.header)
	s.header.Set(key, value)
	return s
}

// WithHeaders merges the header fields, values of existing fields are overwritten.
func (s Spec) WithHeaders(in map[string]string) Spec {
	s.header = cloneHeader(s.header)
	for k, v := range in {
		s.header.Set(k, v)
	}
	return s
}

// WithContentType sets the Content-Type header, it selects the body encoding.
func (s Spec) WithContentType(contentType string) Spec {
	return s.AndHeader(encode.HeaderContentType, contentType)
}

// WithJSONBody encodes parameters of a request with body to JSON, it is the default.
func (s Spec) WithJSONBody() Spec {
	return s.WithContentType(encode.ContentTypeJSON)
}

// WithFormBody encodes parameters of a request with body to "application/x-www-form-urlencoded".
func (s Spec) WithFormBody() Spec {
	return s.WithContentType(encode.ContentTypeForm)
}

// WithMultipartBody encodes parameters of a request with body to "multipart/form-data".
func (s Spec) WithMultipartBody() Spec {
	return s.WithContentType(encode.ContentTypeMultipart)
}

// WithSource sets the source of file parameters, source.Default() is used by default.
func (s Spec) WithSource(src source.Source) Spec {
	return s.WithEncodeOptions(encode.WithSource(src))
}

// WithEncodeOptions appends options for encode.Encode.
func (s Spec) WithEncodeOptions(opts ...encode.Option) Spec {
	s.encodeOpts = append(append([]encode.Option(nil), s.encodeOpts...), opts...)
	return s
}

// WithOnComplete registers the completion handler, it replaces the previous one.
// The handler is called exactly once for each executed request.
func (s Spec) WithOnComplete(fn func(ctx context.Context, result Result)) Spec {
	s.onComplete = fn
	return s
}

// Build encodes the request.
// It fails with ErrEndpointIsNil if the endpoint is not set,
// or with an error wrapping ErrIncompleteRequest and the cause if the request cannot be encoded.
func (s Spec) Build(ctx context.Context) (*encode.WireRequest, error) {
	if s.endpoint == "" {
		return nil, ErrEndpointIsNil
	}
	if err := s.paramErr(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIncompleteRequest, err)
	}
	out, err := encode.Encode(ctx, s.method, s.endpoint, s.header, s.params, s.encodeOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIncompleteRequest, err)
	}
	return out, nil
}

// SendOrErr executes the request and waits for the result, see Execute.
func (s Spec) SendOrErr(ctx context.Context, sender Sender) error {
	if err := s.ExecuteAndWait(ctx, sender).Err; err != nil {
		return fmt.Errorf(`request %s "%s" failed: %w`, s.method, s.endpoint, err)
	}
	return nil
}

// paramErr returns the error of the first key, in the sorted order, with an unsupported value.
func (s Spec) paramErr() error {
	if len(s.paramErrs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(s.paramErrs))
	for k := range s.paramErrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return s.paramErrs[keys[0]]
}

func cloneErrs(in map[string]error) map[string]error {
	out := make(map[string]error, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}

func withoutErrs(in map[string]error, keys ...string) map[string]error {
	if len(in) == 0 {
		return in
	}
	out := cloneErrs(in)
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

func cloneHeader(in http.Header) http.Header {
	if in == nil {
		return make(http.Header)
	}
	return in.Clone()
}

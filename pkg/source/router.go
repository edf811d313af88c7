package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"gocloud.dev/blob"
)

// Router dispatches a reference to a Source by the scheme of the reference.
// A reference without a scheme is handled by the "" route.
type Router struct {
	routes   map[string]Source
	fallback Source
}

// NewRouter creates an empty Router, fallback handles references with no matching route, it may be nil.
func NewRouter(fallback Source) Router {
	return Router{routes: make(map[string]Source), fallback: fallback}
}

// Default resolves local paths and "file://" URLs from the local file system,
// other schemes registered in the gocloud.dev/blob default URL mux are read by BucketURL.
func Default() Source {
	bucketURL := BucketURL()
	mux := blob.DefaultURLMux()
	return NewRouter(Func(func(ctx context.Context, ref string) (*Content, error) {
		if scheme := schemeOf(ref); mux.ValidBucketScheme(scheme) {
			return bucketURL.Read(ctx, ref)
		}
		return nil, &ReadError{Ref: ref, Err: fmt.Errorf(`unsupported scheme "%s"`, schemeOf(ref))}
	})).
		With("", Local()).
		With("file", Local())
}

// With returns a copy of the router with the scheme routed to the source.
func (r Router) With(scheme string, source Source) Router {
	routes := make(map[string]Source, len(r.routes)+1)
	for k, v := range r.routes {
		routes[k] = v
	}
	routes[strings.ToLower(scheme)] = source
	r.routes = routes
	return r
}

func (r Router) Read(ctx context.Context, ref string) (*Content, error) {
	if source, found := r.routes[schemeOf(ref)]; found {
		return source.Read(ctx, ref)
	}
	if r.fallback != nil {
		return r.fallback.Read(ctx, ref)
	}
	return nil, &ReadError{Ref: ref, Err: fmt.Errorf(`unsupported scheme "%s"`, schemeOf(ref))}
}

// schemeOf returns lower-cased scheme of the reference.
// Windows drive letters, for example "C:\file.txt", are not considered to be a scheme.
func schemeOf(ref string) string {
	i := strings.Index(ref, ":")
	if i <= 1 {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme)
}

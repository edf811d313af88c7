package otel

import (
	"strings"

	"go.opentelemetry.io/otel/propagation"
)

type config struct {
	propagators         propagation.TextMapPropagator
	queryParamAttrs     bool
	redactedQueryParams keySet
	redactedHeaders     keySet
}

type Option func(*config)

// keySet is a set of lower-cased keys.
type keySet map[string]struct{}

func newKeySet(keys ...string) keySet {
	return make(keySet).add(keys...)
}

func (s keySet) add(keys ...string) keySet {
	for _, k := range keys {
		s[strings.ToLower(k)] = struct{}{}
	}
	return s
}

func (s keySet) has(key string) bool {
	_, found := s[strings.ToLower(key)]
	return found
}

// WithPropagators injects the trace context to headers of each sent HTTP request.
func WithPropagators(v propagation.TextMapPropagator) Option {
	return func(c *config) {
		c.propagators = v
	}
}

// WithRedactedQueryParam masks values of the query parameters, in span and metric attributes.
// A list parameter is matched by its name without the "[]" suffix.
func WithRedactedQueryParam(params ...string) Option {
	return func(c *config) {
		c.redactedQueryParams.add(params...)
	}
}

// WithRedactedHeaders masks values of the headers in span attributes.
// Authorization, cookie and proxy headers are always masked.
func WithRedactedHeaders(headers ...string) Option {
	return func(c *config) {
		c.redactedHeaders.add(headers...)
	}
}

// WithQueryParamAttributes enables or disables "fetch.params.query.*" span attributes, they are enabled by default.
// The "fetch.url.full" attribute is not affected.
func WithQueryParamAttributes(enabled bool) Option {
	return func(c *config) {
		c.queryParamAttrs = enabled
	}
}

func newConfig(opts []Option) config {
	cfg := config{
		queryParamAttrs:     true,
		redactedQueryParams: newKeySet(),
		// Same list as in the otelhttptrace package
		redactedHeaders: newKeySet(
			"Authorization",
			"Www-Authenticate",
			"Proxy-Authenticate",
			"Proxy-Authorization",
			"Cookie",
			"Set-Cookie",
		),
	}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

func (c config) isRedactedHeader(key string) bool {
	return c.redactedHeaders.has(key)
}

func (c config) isRedactedQueryParam(key string) bool {
	return c.redactedQueryParams.has(strings.TrimSuffix(key, "[]"))
}

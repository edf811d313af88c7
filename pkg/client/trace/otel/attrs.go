package otel

import (
	"context"
	"errors"
	"mime"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/keboola/go-fetch/pkg/encode"
)

const (
	maskedAttrValue   = "****"
	requestAttrPrefix = "fetch."
)

// attributes of the request, each HTTP request and each response.
// Attributes without the "Extra" suffix are used also as metric dimensions.
type attributes struct {
	config config

	resourceName string
	request      []attribute.KeyValue
	requestExtra []attribute.KeyValue

	httpResourceName  string
	httpRequest       []attribute.KeyValue
	httpRequestExtra  []attribute.KeyValue
	httpResponse      []attribute.KeyValue
	httpResponseExtra []attribute.KeyValue
	httpResponseError []attribute.KeyValue
}

func newAttributes(cfg config, wireReq *encode.WireRequest) *attributes {
	out := &attributes{config: cfg}
	u := wireReq.URL
	out.resourceName = unescapePath(u.Path)

	out.request = []attribute.KeyValue{
		attribute.String(requestAttrPrefix+"method", wireReq.Method),
		attribute.String(requestAttrPrefix+"url.full", unescapePath(out.redactURL(u))),
		attribute.String(requestAttrPrefix+"url.path", out.resourceName),
		attribute.String(requestAttrPrefix+"url.host.full", u.Host),
	}
	// Service name is the host prefix, the domain is the rest.
	if service, domain, found := strings.Cut(u.Host, "."); found && service != "" {
		out.request = append(out.request,
			attribute.String(requestAttrPrefix+"url.host.prefix", service),
			attribute.String(requestAttrPrefix+"url.host.suffix", domain),
		)
	}

	out.requestExtra = out.headerAttrs(requestAttrPrefix+"header.", wireReq.Header, false)
	if wireReq.Body != nil {
		mediaType, _, _ := mime.ParseMediaType(wireReq.Header.Get(encode.HeaderContentType))
		out.requestExtra = append(out.requestExtra,
			attribute.String(requestAttrPrefix+"body.content_type", mediaType),
			attribute.Int(requestAttrPrefix+"body.bytes", len(wireReq.Body)),
		)
	}
	if cfg.queryParamAttrs {
		out.requestExtra = append(out.requestExtra, out.queryAttrs(u.RawQuery)...)
	}
	return out
}

func (v *attributes) SetFromRequest(req *http.Request) {
	if req == nil {
		v.httpRequest, v.httpRequestExtra = nil, nil
		return
	}

	v.httpResourceName = unescapePath(req.URL.Path)
	v.httpRequest = []attribute.KeyValue{
		semconv.HTTPMethodKey.String(req.Method),
		semconv.HTTPURLKey.String(v.redactURL(req.URL)),
		semconv.NetPeerNameKey.String(req.URL.Hostname()),
	}
	if userAgent := req.UserAgent(); userAgent != "" {
		v.httpRequest = append(v.httpRequest, semconv.HTTPUserAgentKey.String(userAgent))
	}
	v.httpRequestExtra = v.headerAttrs("http.header.", req.Header, true)
}

func (v *attributes) SetFromResponse(res *http.Response, err error) {
	if res == nil {
		v.httpResponse, v.httpResponseExtra = nil, nil
	} else {
		v.httpResponse = []attribute.KeyValue{semconv.HTTPStatusCodeKey.Int(res.StatusCode)}
		v.httpResponseExtra = v.headerAttrs("http.response.header.", res.Header, false)
	}

	var netErr net.Error
	isNetErr := errors.As(err, &netErr)
	v.httpResponseError = []attribute.KeyValue{
		attribute.Bool("http.response.isSuccess", err == nil && res != nil && res.StatusCode < http.StatusBadRequest),
		attribute.Bool("http.response.error.has", err != nil),
		attribute.Bool("http.response.error.net", isNetErr),
		attribute.Bool("http.response.error.timeout", isNetErr && netErr.Timeout()),
		attribute.Bool("http.response.error.cancelled", errors.Is(err, context.Canceled)),
		attribute.Bool("http.response.error.deadline_exceeded", errors.Is(err, context.DeadlineExceeded)),
	}
}

// headerAttrs converts the header to attributes sorted by the key, multiple values are joined by ";".
func (v *attributes) headerAttrs(prefix string, header http.Header, skipUserAgent bool) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(header))
	for key, values := range header {
		key = strings.ToLower(key)
		if skipUserAgent && key == "user-agent" {
			continue
		}
		value := strings.Join(values, ";")
		if v.config.isRedactedHeader(key) {
			value = maskedAttrValue
		}
		attrs = append(attrs, attribute.String(prefix+key, value))
	}
	slices.SortStableFunc(attrs, func(a, b attribute.KeyValue) int {
		return strings.Compare(string(a.Key), string(b.Key))
	})
	return attrs
}

// queryAttrs converts the query to "fetch.params.query.<key>" attributes, list keys keep the "[]" suffix.
func (v *attributes) queryAttrs(rawQuery string) []attribute.KeyValue {
	if rawQuery == "" {
		return nil
	}
	var attrs []attribute.KeyValue
	for _, pair := range strings.Split(rawQuery, "&") {
		key, value, _ := strings.Cut(pair, "=")
		key, value = unescapeQuery(key), unescapeQuery(value)
		if v.config.isRedactedQueryParam(key) {
			value = maskedAttrValue
		}
		attrs = append(attrs, attribute.String(requestAttrPrefix+"params.query."+key, value))
	}
	return attrs
}

// redactURL masks the password and values of redacted query parameters, the order of the parameters is kept.
func (v *attributes) redactURL(in *url.URL) string {
	u := *in

	// The url.Userinfo would escape the mask
	var userInfo string
	if u.User != nil {
		if _, hasPassword := u.User.Password(); hasPassword {
			userInfo = url.User(u.User.Username()).String() + ":" + maskedAttrValue + "@"
			u.User = nil
		}
	}
	if u.RawQuery != "" {
		pairs := strings.Split(u.RawQuery, "&")
		for i, pair := range pairs {
			if key, _, hasValue := strings.Cut(pair, "="); hasValue && v.config.isRedactedQueryParam(unescapeQuery(key)) {
				pairs[i] = key + "=" + maskedAttrValue
			}
		}
		u.RawQuery = strings.Join(pairs, "&")
	}

	out := u.String()
	if userInfo != "" {
		if scheme, rest, found := strings.Cut(out, "//"); found {
			out = scheme + "//" + userInfo + rest
		}
	}
	return out
}

func unescapeQuery(s string) string {
	if out, err := url.QueryUnescape(s); err == nil {
		return out
	}
	return s
}

func unescapePath(s string) string {
	if out, err := url.PathUnescape(s); err == nil {
		return out
	}
	return s
}

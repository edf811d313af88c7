// Package client provides the default transport for requests defined by the request package.
//
// Client is a default implementation of the request.Sender interface.
// Client is based on the standard net/http package and contains retry, response decoding and tracing/telemetry support.
// It is easy to implement your custom transport, by implementing the request.Sender interface.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	otelMetric "go.opentelemetry.io/otel/metric"
	otelTrace "go.opentelemetry.io/otel/trace"

	"github.com/keboola/go-fetch/pkg/client/counter"
	"github.com/keboola/go-fetch/pkg/client/decode"
	"github.com/keboola/go-fetch/pkg/client/trace"
	"github.com/keboola/go-fetch/pkg/client/trace/otel"
	"github.com/keboola/go-fetch/pkg/encode"
	"github.com/keboola/go-fetch/pkg/request"
)

// DefaultUserAgent is sent if the request and the Client have no User-Agent header.
const DefaultUserAgent = "go-fetch"

//nolint:gochecknoglobals
var (
	shared     Client
	sharedOnce sync.Once
)

// Client is a default and configurable implementation of the request.Sender interface by Go native http.Client.
// It supports retry and tracing/telemetry.
type Client struct {
	transport    http.RoundTripper
	header       http.Header
	retry        RetryConfig
	traceFactory trace.Factory
	maxBodySize  int64
}

// New creates new HTTP Client.
func New() Client {
	c := Client{transport: DefaultTransport(), header: make(http.Header), retry: DefaultRetry()}
	c.header.Set("User-Agent", DefaultUserAgent)
	c.header.Set("Accept-Encoding", decode.Supported())
	return c
}

// Shared returns the process-wide Client with the default configuration.
// It is created on the first call and lives until the end of the process.
func Shared() Client {
	sharedOnce.Do(func() {
		shared = New()
	})
	return shared
}

// WithUserAgent returns a clone of the Client with user agent set.
func (c Client) WithUserAgent(v string) Client {
	return c.WithHeader("User-Agent", v)
}

// WithHeader returns a clone of the Client with common header set.
// The common header is used only if the request does not define the same header.
func (c Client) WithHeader(key, value string) Client {
	c.header = c.header.Clone()
	c.header.Set(key, value)
	return c
}

// WithHeaders returns a clone of the Client with common headers set.
func (c Client) WithHeaders(headers map[string]string) Client {
	c.header = c.header.Clone()
	for k, v := range headers {
		c.header.Set(k, v)
	}
	return c
}

// Transport returns the HTTP transport of the Client.
func (c Client) Transport() http.RoundTripper {
	return c.transport
}

// WithTransport returns a clone of the Client with a HTTP transport set.
func (c Client) WithTransport(transport http.RoundTripper) Client {
	if transport == nil {
		panic(fmt.Errorf("transport cannot be nil"))
	}
	c.transport = transport
	return c
}

// WithMaxBodySize returns a clone of the Client with the limit of the decoded response body set, zero means no limit.
// A longer body fails with the counter.LimitError.
func (c Client) WithMaxBodySize(bytes int64) Client {
	c.maxBodySize = bytes
	return c
}

// WithRetry returns a clone of the Client with retry config set.
func (c Client) WithRetry(retry RetryConfig) Client {
	c.retry = retry
	return c
}

// WithTrace returns a clone of the Client with Trace hooks set.
// It replaces all previously registered traces.
func (c Client) WithTrace(fn trace.Factory) Client {
	c.traceFactory = fn
	return c
}

// AndTrace returns a clone of the Client with Trace hooks added.
// Hooks of the previously registered traces are called first.
func (c Client) AndTrace(fn trace.Factory) Client {
	oldFactory := c.traceFactory
	if oldFactory == nil {
		return c.WithTrace(fn)
	}
	c.traceFactory = func(ctx context.Context, wireReq *encode.WireRequest) (context.Context, *trace.ClientTrace) {
		ctx, oldTrace := oldFactory(ctx, wireReq)
		ctx, newTrace := fn(ctx, wireReq)
		if newTrace == nil {
			return ctx, oldTrace
		}
		newTrace.Compose(oldTrace)
		return ctx, newTrace
	}
	return c
}

// WithTelemetry returns a clone of the Client with OpenTelemetry tracing and metrics added, see the otel package.
// Nil providers are replaced by noop implementations.
func (c Client) WithTelemetry(tracerProvider otelTrace.TracerProvider, meterProvider otelMetric.MeterProvider, opts ...otel.Option) Client {
	return c.AndTrace(otel.NewTrace(tracerProvider, meterProvider, opts...))
}

// Send method sends the request and returns the response with fully read and decoded body.
// It implements the request.Sender interface.
func (c Client) Send(ctx context.Context, wireReq *encode.WireRequest) (res *request.Response, err error) {
	// Method cannot be called on an empty value
	if c.transport == nil {
		panic(fmt.Errorf("client value is not initialized"))
	}

	// Init trace
	var tc *trace.ClientTrace
	if c.traceFactory != nil {
		ctx, tc = c.traceFactory(ctx, wireReq)
		if tc != nil {
			ctx = httptrace.WithClientTrace(ctx, &tc.ClientTrace)
		}
	}

	// Trace request processed
	if tc != nil && tc.RequestProcessed != nil {
		defer func() {
			tc.RequestProcessed(res, err)
		}()
	}

	// Create request
	req, err := wireReq.HTTPRequest(ctx)
	if err != nil {
		return nil, err
	}

	// Common headers
	for k, values := range c.header {
		if _, found := req.Header[k]; !found {
			req.Header[k] = append([]string(nil), values...)
		}
	}

	// Setup native client
	nativeClient := http.Client{
		Timeout:   c.retry.TotalRequestTimeout,
		Transport: roundTripper{retry: c.retry, trace: tc, wrapped: c.transport}, // wrapped transport for trace/retry
	}

	// Send request
	startedAt := time.Now()
	httpRes, err := nativeClient.Do(req)
	if err != nil {
		return nil, handleSendError(startedAt, c.retry.TotalRequestTimeout, req, err)
	}

	// Read body
	body, err := readBody(httpRes, tc, c.maxBodySize)
	res = &request.Response{StatusCode: httpRes.StatusCode, Header: httpRes.Header, Body: body}
	if err != nil {
		return res, fmt.Errorf(`cannot read response body %s "%s": %w`, req.Method, req.URL.String(), err)
	}
	return res, nil
}

func readBody(res *http.Response, tc *trace.ClientTrace, limit int64) ([]byte, error) {
	var onClose counter.OnClose
	if tc != nil && tc.BodyReadDone != nil {
		onClose = tc.BodyReadDone
	}
	raw := counter.NewReadCloser(res.Body, onClose)
	defer raw.Close()

	decoded, err := decode.Decode(raw, res.Header.Get("Content-Encoding"))
	if err != nil {
		return nil, err
	}
	limited := counter.NewLimitedReadCloser(decoded, limit, nil)
	defer limited.Close()

	return io.ReadAll(limited)
}

func handleSendError(startedAt time.Time, clientTimeout time.Duration, req *http.Request, err error) error {
	// Timeout
	var netErr net.Error
	if deadline, ok := req.Context().Deadline(); ok && errors.Is(err, context.DeadlineExceeded) {
		err = urlError(req, fmt.Errorf("timeout after %s: %w", deadline.Sub(startedAt), context.DeadlineExceeded))
	} else if errors.Is(err, context.Canceled) {
		err = urlError(req, fmt.Errorf("%w after %s", context.Canceled, time.Since(startedAt)))
	} else if errors.As(err, &netErr) && netErr.Timeout() {
		if strings.Contains(err.Error(), "Client.Timeout exceeded") {
			err = urlError(req, fmt.Errorf("timeout after %s: %w", clientTimeout, context.DeadlineExceeded))
		} else {
			err = urlError(req, fmt.Errorf("timeout after %s: %w", time.Since(startedAt), context.DeadlineExceeded))
		}
	}

	// Url error
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = fmt.Errorf(`request %s "%s" failed: %w`, strings.ToUpper(urlErr.Op), urlErr.URL, urlErr.Err)
	}

	return err
}

func urlError(req *http.Request, err error) *url.Error {
	return &url.Error{Op: req.Method, URL: req.URL.String(), Err: err}
}

type retryAttemptCtxKey struct{}

// ContextRetryAttempt returns the retry attempt number of the HTTP request, 0 means the first attempt.
func ContextRetryAttempt(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(retryAttemptCtxKey{}).(int)
	return v, ok
}

// roundTripper wraps a http.RoundTripper and adds trace and retry functionality.
type roundTripper struct {
	trace   *trace.ClientTrace
	retry   RetryConfig
	wrapped http.RoundTripper
}

func (rt roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	state := rt.retry.NewBackoff()
	ctx := req.Context()
	attempt := 0
	for {
		req = req.WithContext(context.WithValue(ctx, retryAttemptCtxKey{}, attempt))

		// Trace request start
		if rt.trace != nil && rt.trace.HTTPRequestStart != nil {
			rt.trace.HTTPRequestStart(req)
		}

		// Send
		res, err := rt.wrapped.RoundTrip(req)

		// Trace request done
		if rt.trace != nil && rt.trace.HTTPRequestDone != nil {
			rt.trace.HTTPRequestDone(res, err)
		}

		// Check if we should retry
		if rt.retry.Condition == nil || !rt.retry.Condition(res, err) || attempt >= rt.retry.Count {
			// No retry
			return res, err
		}

		// Get next delay
		delay := state.NextBackOff()
		if delay == backoff.Stop {
			// Stop
			return res, err
		}

		delay = rt.retry.delay(res, delay)

		// Discard the response, a new one will be received
		if res != nil && res.Body != nil {
			_, _ = io.Copy(io.Discard, res.Body)
			_ = res.Body.Close()
		}

		// Trace retry
		attempt++
		if rt.trace != nil && rt.trace.HTTPRequestRetry != nil {
			rt.trace.HTTPRequestRetry(attempt, delay)
		}

		// Rewind body before retry
		if req.GetBody != nil {
			req.Body, err = req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("cannot rewind body: %w", err)
			}
		}

		// Wait
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			// context is canceled
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
			// time elapsed, retry
		}
	}
}

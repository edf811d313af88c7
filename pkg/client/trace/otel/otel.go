// Package otel provides OpenTelemetry tracing and metrics for requests sent by the client.Client.
//
// Each request passed to the Client.Send method is recorded on two levels:
//
// 1. Request level:
//   - Root span "fetch.request" wraps all redirects, retries and the body read.
//   - Span "fetch.retry.delay" covers the wait before a retry.
//   - Attributes of the wire request are prefixed by "fetch.", for example "fetch.url.full" or "fetch.params.query.<key>".
//   - Metrics names start with "fetch.client.", see the meters struct.
//
// 2. HTTP level:
//   - Span "http.request" for each sent HTTP request, including redirects and retries.
//   - Child spans of the connection phases, for example "http.dns", "http.tls", "http.getconn".
//   - Metrics names start with "fetch.http.".
package otel

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelMetric "go.opentelemetry.io/otel/metric"
	metricNoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	otelTrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/keboola/go-fetch/pkg/client/trace"
	"github.com/keboola/go-fetch/pkg/encode"
	"github.com/keboola/go-fetch/pkg/request"
)

const (
	instrumentationName = "github.com/keboola/go-fetch"

	requestSpanName    = "fetch.request"
	retryDelaySpanName = "fetch.retry.delay"
	httpSpanName       = "http.request"
	httpReceiveSpan    = "http.receive"

	attrResourceName      = attribute.Key("resource.name")
	attrRetryAttempt      = attribute.Key("http.retry.attempt")
	attrRetryDelayMs      = attribute.Key("http.retry.delay_ms")
	attrRetryDelay        = attribute.Key("http.retry.delay_string")
	attrReadBytes         = attribute.Key("http.read_bytes")
	attrResponseBodyBytes = attribute.Key("http.response.body.bytes")

	// DataDog maps these to the span kind and type.
	attrSpanKind = attribute.Key("span.kind")
	attrSpanType = attribute.Key("span.type")
)

// NewTrace creates a trace.Factory which records spans and metrics by the providers.
// Nil providers are replaced by noop implementations.
func NewTrace(tracerProvider otelTrace.TracerProvider, meterProvider otelMetric.MeterProvider, opts ...Option) trace.Factory {
	cfg := newConfig(opts)
	if tracerProvider == nil {
		tracerProvider = noop.NewTracerProvider()
	}
	if meterProvider == nil {
		meterProvider = metricNoop.NewMeterProvider()
	}
	tracer := tracerProvider.Tracer(instrumentationName)
	m := newMeters(meterProvider.Meter(instrumentationName))

	return func(ctx context.Context, wireReq *encode.WireRequest) (context.Context, *trace.ClientTrace) {
		t := &requestTrace{
			cfg:    cfg,
			tracer: tracer,
			meters: m,
			attrs:  newAttributes(cfg, wireReq),
		}
		return t.start(ctx), t.hooks()
	}
}

// requestTrace holds spans of one Client.Send call.
// Hooks are called sequentially by the client, so no locking is needed.
type requestTrace struct {
	cfg    config
	tracer otelTrace.Tracer
	meters *meters
	attrs  *attributes

	ctx       context.Context
	startTime time.Time
	bodyBytes int64
	rootSpan  otelTrace.Span

	// Current HTTP request
	httpCtx     context.Context
	httpStart   time.Time
	httpSpan    otelTrace.Span
	receiveSpan otelTrace.Span
	retrySpan   otelTrace.Span
}

func (t *requestTrace) start(ctx context.Context) context.Context {
	t.startTime = time.Now()
	t.meters.requestsInFlight.Add(ctx, 1, otelMetric.WithAttributes(t.attrs.request...))
	t.ctx, t.rootSpan = t.tracer.Start(
		ctx,
		requestSpanName,
		otelTrace.WithSpanKind(otelTrace.SpanKindClient),
		otelTrace.WithAttributes(attrResourceName.String(t.attrs.resourceName)),
		otelTrace.WithAttributes(clientSpanAttrs()...),
		otelTrace.WithAttributes(t.attrs.request...),
		otelTrace.WithAttributes(t.attrs.requestExtra...),
	)
	return t.ctx
}

func (t *requestTrace) hooks() *trace.ClientTrace {
	tc := &trace.ClientTrace{
		HTTPRequestStart: t.httpRequestStart,
		HTTPRequestDone:  t.httpRequestDone,
		HTTPRequestRetry: t.httpRequestRetry,
		BodyReadDone:     t.bodyReadDone,
		RequestProcessed: t.requestProcessed,
	}
	tc.GotFirstResponseByte = t.gotFirstResponseByte
	t.connectionHooks(tc)
	return tc
}

func (t *requestTrace) httpRequestStart(req *http.Request) {
	// The previous response, if any, has been discarded
	endSpan(&t.retrySpan, nil)
	endSpan(&t.receiveSpan, nil)

	t.httpStart = time.Now()
	t.attrs.SetFromRequest(req)
	t.httpCtx, t.httpSpan = t.tracer.Start(
		t.ctx,
		httpSpanName,
		otelTrace.WithSpanKind(otelTrace.SpanKindClient),
		otelTrace.WithAttributes(clientSpanAttrs()...),
	)
	if t.cfg.propagators != nil {
		t.cfg.propagators.Inject(t.httpCtx, propagation.HeaderCarrier(req.Header))
	}

	t.meters.httpInFlight.Add(t.ctx, 1, otelMetric.WithAttributes(t.attrs.httpRequest...))
	t.httpSpan.SetAttributes(attrResourceName.String(t.attrs.httpResourceName))
	t.httpSpan.SetAttributes(t.attrs.httpRequest...)
	t.httpSpan.SetAttributes(t.attrs.httpRequestExtra...)
}

func (t *requestTrace) gotFirstResponseByte() {
	// Ended on the body read, or when the response is discarded
	_, t.receiveSpan = t.tracer.Start(t.httpCtx, httpReceiveSpan, otelTrace.WithSpanKind(otelTrace.SpanKindClient))
}

func (t *requestTrace) httpRequestDone(res *http.Response, err error) {
	elapsed := sinceMs(t.httpStart)
	t.attrs.SetFromResponse(res, err)

	// The in-flight counter must be decremented with the same attributes as it was incremented.
	t.meters.httpInFlight.Add(t.ctx, -1, otelMetric.WithAttributes(t.attrs.httpRequest...))
	t.meters.httpDuration.Record(
		t.ctx,
		elapsed,
		otelMetric.WithAttributes(t.attrs.httpRequest...),
		otelMetric.WithAttributes(t.attrs.httpResponse...),
		otelMetric.WithAttributes(t.attrs.httpResponseError...),
	)

	if t.httpSpan != nil {
		t.httpSpan.SetAttributes(t.attrs.httpResponse...)
		t.httpSpan.SetAttributes(t.attrs.httpResponseExtra...)
	}
	var statusErr error
	if res != nil {
		statusErr = statusError(res.StatusCode)
	}
	endSpan(&t.httpSpan, firstErr(err, statusErr))
	if err != nil {
		endSpan(&t.receiveSpan, err)
	}
}

func (t *requestTrace) httpRequestRetry(attempt int, delay time.Duration) {
	// Ended by the next HTTP request, or by RequestProcessed, if the retry has been interrupted.
	_, t.retrySpan = t.tracer.Start(
		t.ctx,
		retryDelaySpanName,
		otelTrace.WithSpanKind(otelTrace.SpanKindClient),
		otelTrace.WithAttributes(t.attrs.httpRequest...),
		otelTrace.WithAttributes(t.attrs.httpResponse...),
		otelTrace.WithAttributes(
			attrRetryAttempt.Int(attempt),
			attrRetryDelayMs.Int64(delay.Milliseconds()),
			attrRetryDelay.String(delay.String()),
		),
	)
}

func (t *requestTrace) bodyReadDone(bytes int64, err error) {
	t.bodyBytes = bytes
	t.meters.bodyBytes.Add(t.ctx, bytes, otelMetric.WithAttributes(t.attrs.request...))
	if t.receiveSpan != nil {
		t.receiveSpan.SetAttributes(attrReadBytes.Int64(bytes))
	}
	endSpan(&t.receiveSpan, err)
}

func (t *requestTrace) requestProcessed(res *request.Response, err error) {
	elapsed := sinceMs(t.startTime)
	metricAttrs := append(append([]attribute.KeyValue(nil), t.attrs.request...), t.attrs.httpResponse...)
	t.meters.requestsInFlight.Add(t.ctx, -1, otelMetric.WithAttributes(t.attrs.request...))
	t.meters.requestDuration.Record(t.ctx, elapsed, otelMetric.WithAttributes(metricAttrs...))

	endSpan(&t.retrySpan, nil)
	endSpan(&t.receiveSpan, nil)
	if t.rootSpan == nil {
		return
	}

	// Attributes of the last response
	t.rootSpan.SetAttributes(t.attrs.httpResponse...)
	t.rootSpan.SetAttributes(t.attrs.httpResponseExtra...)
	t.rootSpan.SetAttributes(attrResponseBodyBytes.Int64(t.bodyBytes))
	if err != nil {
		endSpan(&t.rootSpan, err, otelTrace.WithStackTrace(true))
		return
	}
	var statusErr error
	if res != nil {
		statusErr = statusError(res.StatusCode)
	}
	endSpan(&t.rootSpan, statusErr)
}

// endSpan records the error, if any, ends the span and clears the reference.
func endSpan(span *otelTrace.Span, err error, opts ...otelTrace.SpanEndOption) {
	if *span == nil {
		return
	}
	if err != nil {
		(*span).RecordError(err)
		(*span).SetStatus(codes.Error, err.Error())
	}
	(*span).End(opts...)
	*span = nil
}

func statusError(code int) error {
	if code < http.StatusBadRequest {
		return nil
	}
	return fmt.Errorf(`HTTP status code: %d %s`, code, http.StatusText(code))
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func clientSpanAttrs() []attribute.KeyValue {
	return []attribute.KeyValue{attrSpanKind.String("client"), attrSpanType.String("http")}
}

func sinceMs(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}

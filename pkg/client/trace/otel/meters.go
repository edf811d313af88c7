package otel

import (
	global "go.opentelemetry.io/otel"
	otelMetric "go.opentelemetry.io/otel/metric"
)

const (
	clientMeterPrefix = "fetch.client."
	httpMeterPrefix   = "fetch.http."
)

// meters of the requests passed to the Client.Send, and of each sent HTTP request, including redirects and retries.
type meters struct {
	requestsInFlight otelMetric.Int64UpDownCounter
	requestDuration  otelMetric.Float64Histogram
	bodyBytes        otelMetric.Int64Counter
	httpInFlight     otelMetric.Int64UpDownCounter
	httpDuration     otelMetric.Float64Histogram
}

// newMeters creates all instruments.
// An instrument error is reported to the global OpenTelemetry error handler, the returned instrument is still usable.
func newMeters(meter otelMetric.Meter) *meters {
	return &meters{
		requestsInFlight: instrument(meter.Int64UpDownCounter(
			clientMeterPrefix+"request.in_flight",
			otelMetric.WithDescription("Requests in flight."),
		)),
		requestDuration: instrument(meter.Float64Histogram(
			clientMeterPrefix+"request.duration",
			otelMetric.WithDescription("Duration of requests, including redirects, retries and the body read."),
			otelMetric.WithUnit("ms"),
		)),
		bodyBytes: instrument(meter.Int64Counter(
			clientMeterPrefix+"response.body.bytes",
			otelMetric.WithDescription("Decoded bytes of response bodies."),
			otelMetric.WithUnit("By"),
		)),
		httpInFlight: instrument(meter.Int64UpDownCounter(
			httpMeterPrefix+"request.in_flight",
			otelMetric.WithDescription("HTTP requests in flight."),
		)),
		httpDuration: instrument(meter.Float64Histogram(
			httpMeterPrefix+"request.duration",
			otelMetric.WithDescription("Duration of HTTP requests until the response headers are received."),
			otelMetric.WithUnit("ms"),
		)),
	}
}

func instrument[T any](v T, err error) T {
	if err != nil {
		global.Handle(err)
	}
	return v
}

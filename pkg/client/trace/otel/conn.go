package otel

import (
	"crypto/tls"
	"net/http/httptrace"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	otelTrace "go.opentelemetry.io/otel/trace"

	"github.com/keboola/go-fetch/pkg/client/trace"
)

const (
	httpDNSSpanName          = "http.dns"
	httpGetConnSpanName      = "http.getconn"
	httpConnectSpanName      = "http.connect"
	httpTLSHandshakeSpanName = "http.tls"
	httpHeadersSpanName      = "http.headers"
	httpSendSpanName         = "http.send"

	attrDNSAddresses           = attribute.Key("http.dns.addrs")
	attrRemoteAddr             = attribute.Key("http.remote")
	attrLocalAddr              = attribute.Key("http.local")
	attrConnectionReused       = attribute.Key("http.conn.reused")
	attrConnectionWasIdle      = attribute.Key("http.conn.wasidle")
	attrConnectionIdleTime     = attribute.Key("http.conn.idletime")
	attrConnectionStartNetwork = attribute.Key("http.conn.start.network")
	attrConnectionDoneNetwork  = attribute.Key("http.conn.done.network")
	attrConnectionDoneAddr     = attribute.Key("http.conn.done.addr")
)

// connectionHooks registers httptrace hooks, each phase of the current HTTP request gets a child span.
// The "otelhttptrace" package from opentelemetry-go-contrib does not end its spans, see
// https://github.com/open-telemetry/opentelemetry-go-contrib/issues/399
func (t *requestTrace) connectionHooks(tc *trace.ClientTrace) {
	var dnsSpan, getConnSpan, connectSpan, tlsSpan, headersSpan, sendSpan otelTrace.Span

	tc.DNSStart = func(info httptrace.DNSStartInfo) {
		dnsSpan = t.phaseSpan(httpDNSSpanName, semconv.NetHostName(info.Host))
	}
	tc.DNSDone = func(info httptrace.DNSDoneInfo) {
		if dnsSpan != nil {
			addrs := make([]string, 0, len(info.Addrs))
			for _, addr := range info.Addrs {
				addrs = append(addrs, addr.String())
			}
			dnsSpan.SetAttributes(attrDNSAddresses.String(strings.Join(addrs, ";")))
		}
		endSpan(&dnsSpan, info.Err)
	}

	tc.GetConn = func(host string) {
		getConnSpan = t.phaseSpan(httpGetConnSpanName, semconv.NetHostName(host))
	}
	tc.GotConn = func(info httptrace.GotConnInfo) {
		if getConnSpan != nil {
			getConnSpan.SetAttributes(
				attrRemoteAddr.String(info.Conn.RemoteAddr().String()),
				attrLocalAddr.String(info.Conn.LocalAddr().String()),
				attrConnectionReused.Bool(info.Reused),
				attrConnectionWasIdle.Bool(info.WasIdle),
			)
			if info.WasIdle {
				getConnSpan.SetAttributes(attrConnectionIdleTime.String(info.IdleTime.String()))
			}
		}
		endSpan(&getConnSpan, nil)
	}

	tc.ConnectStart = func(network, addr string) {
		connectSpan = t.phaseSpan(httpConnectSpanName, attrRemoteAddr.String(addr), attrConnectionStartNetwork.String(network))
	}
	tc.ConnectDone = func(network, addr string, err error) {
		if connectSpan != nil {
			connectSpan.SetAttributes(attrConnectionDoneAddr.String(addr), attrConnectionDoneNetwork.String(network))
		}
		endSpan(&connectSpan, err)
	}

	// Not reported if the http2.Transport is used directly, without an upgrade from the http.Transport.
	tc.TLSHandshakeStart = func() {
		tlsSpan = t.phaseSpan(httpTLSHandshakeSpanName)
	}
	tc.TLSHandshakeDone = func(_ tls.ConnectionState, err error) {
		endSpan(&tlsSpan, err)
	}

	tc.WroteHeaderField = func(_ string, _ []string) {
		if headersSpan == nil {
			headersSpan = t.phaseSpan(httpHeadersSpanName)
		}
	}
	tc.WroteHeaders = func() {
		endSpan(&headersSpan, nil)
		sendSpan = t.phaseSpan(httpSendSpanName)
	}
	tc.WroteRequest = func(info httptrace.WroteRequestInfo) {
		endSpan(&sendSpan, info.Err)
	}
}

func (t *requestTrace) phaseSpan(name string, attrs ...attribute.KeyValue) otelTrace.Span {
	ctx := t.httpCtx
	if ctx == nil {
		ctx = t.ctx
	}
	_, span := t.tracer.Start(ctx, name, otelTrace.WithSpanKind(otelTrace.SpanKindClient), otelTrace.WithAttributes(attrs...))
	return span
}

package trace

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"strings"
	"time"

	"github.com/keboola/go-fetch/pkg/client/decode"
	"github.com/keboola/go-fetch/pkg/encode"
	"github.com/keboola/go-fetch/pkg/request"
)

// DumpMaxLength is the default maximum length of a dumped request or response body.
const DumpMaxLength = 2000

const redactedValue = "****"

// DumpOption configures DumpTracer.
type DumpOption func(c *dumpConfig)

type dumpConfig struct {
	maxLength       int
	redactedHeaders map[string]bool
}

// WithDumpMaxLength sets the maximum length of a dumped body, zero means no limit.
func WithDumpMaxLength(v int) DumpOption {
	return func(c *dumpConfig) {
		c.maxLength = v
	}
}

// WithDumpRedactedHeaders replaces the list of headers whose values are masked in the dump.
func WithDumpRedactedHeaders(headers ...string) DumpOption {
	return func(c *dumpConfig) {
		c.redactedHeaders = make(map[string]bool, len(headers))
		for _, h := range headers {
			c.redactedHeaders[http.CanonicalHeaderKey(h)] = true
		}
	}
}

func newDumpConfig(opts []DumpOption) dumpConfig {
	cfg := dumpConfig{maxLength: DumpMaxLength}
	WithDumpRedactedHeaders("Authorization", "Proxy-Authorization", "Cookie", "Set-Cookie")(&cfg)
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

type dumpTrace struct {
	ClientTrace
	config dumpConfig
	wr     io.Writer
}

// DumpTracer dumps HTTP requests and responses to a writer.
// Values of sensitive headers are masked, but the body may contain secrets, do not use it in production!
func DumpTracer(wr io.Writer, opts ...DumpOption) Factory {
	cfg := newDumpConfig(opts)
	return func(ctx context.Context, wireReq *encode.WireRequest) (context.Context, *ClientTrace) {
		var requestMethod, requestURI string
		var responseStatusCode int
		var requestDump []byte
		var responseErr error
		var startTime, headersTime time.Time

		t := &dumpTrace{config: cfg, wr: wr}
		t.HTTPRequestStart = func(r *http.Request) {
			startTime = time.Now()
			requestMethod = r.Method
			requestURI = r.URL.RequestURI()

			// The body is not read, it is taken from the encoded request
			clone := r.Clone(r.Context())
			t.redact(clone.Header)
			requestDump, _ = httputil.DumpRequestOut(clone, false)
		}
		t.HTTPRequestDone = func(r *http.Response, err error) {
			// Response is nil on network errors
			if r != nil {
				responseStatusCode = r.StatusCode
				headersTime = time.Now()
			}
			responseErr = err

			t.log()
			t.log(">>>>>> HTTP DUMP")
			t.log(strings.TrimSpace(string(requestDump)))
			if len(wireReq.Body) > 0 {
				t.log()
				t.dump(string(wireReq.Body))
			}

			t.log("------")
			if err != nil {
				t.log("ERROR: ", err)
			} else {
				t.dumpResponse(r)
			}
			t.log("<<<<<< HTTP DUMP END")
		}
		t.HTTPRequestRetry = func(attempt int, delay time.Duration) {
			t.log()
			t.log(">>>>>> HTTP RETRY", "| ATTEMPT:", attempt, "| DELAY:", delay, "| ", requestMethod, requestURI, responseStatusCode, "| ERROR:", responseErr)
		}
		t.RequestProcessed = func(_ *request.Response, err error) {
			if err != nil {
				responseErr = err
			}
			t.log()
			t.log(">>>>>> HTTP REQUEST PROCESSED", "| ", requestMethod, requestURI, responseStatusCode, "| ERROR:", responseErr, "| HEADERS AT:", headersTime.Sub(startTime), "| DONE AT:", time.Since(startTime))
		}
		return ctx, &t.ClientTrace
	}
}

func (t *dumpTrace) dumpResponse(r *http.Response) {
	// Headers
	headers := r.Header.Clone()
	t.redact(headers)
	headersOnly := *r
	headersOnly.Header = headers
	if v, err := httputil.DumpResponse(&headersOnly, false); err == nil {
		t.log(strings.TrimSpace(string(v)))
	} else {
		t.log("cannot dump response headers: ", err)
	}

	if r.Body == nil || r.Body == http.NoBody {
		return
	}

	// The raw body is buffered and set back to the response, the decoded body is dumped
	var rawBody bytes.Buffer
	var decodedBody strings.Builder
	bodyReader, err := decode.Decode(io.NopCloser(io.TeeReader(r.Body, &rawBody)), r.Header.Get("Content-Encoding"))
	if err != nil {
		t.log("cannot read response body: ", err)
	} else if _, err := io.Copy(&decodedBody, bodyReader); err != nil {
		t.log("cannot read response body: ", err)
	}
	r.Body = io.NopCloser(bytes.NewReader(rawBody.Bytes()))

	t.log("------")
	t.dump(decodedBody.String())
}

func (t *dumpTrace) redact(header http.Header) {
	for key, values := range header {
		if t.config.redactedHeaders[key] {
			for i := range values {
				values[i] = redactedValue
			}
		}
	}
}

func (t *dumpTrace) dump(body string) {
	body = strings.TrimSpace(body)
	if limit := t.config.maxLength; limit > 0 && len(body) > limit {
		t.log(body[:limit])
		t.log(fmt.Sprintf("... (%d more bytes)", len(body)-limit))
	} else {
		t.log(body)
	}
}

func (t *dumpTrace) log(a ...any) {
	_, _ = fmt.Fprintln(t.wr, a...)
}

package trace

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"sync/atomic"
	"time"

	"github.com/keboola/go-fetch/pkg/encode"
	"github.com/keboola/go-fetch/pkg/request"
)

// LogTracer prints one line for each phase of a request to the writer, lines of one request share the "FETCH[id]" prefix.
// The request body, if any, is reported by its size and content type, never by its content.
func LogTracer(wr io.Writer) Factory {
	var lastID atomic.Uint64
	return func(ctx context.Context, wireReq *encode.WireRequest) (context.Context, *ClientTrace) {
		l := &requestLog{
			wr:     wr,
			prefix: fmt.Sprintf(`FETCH[%04d]`, lastID.Add(1)),
			target: fmt.Sprintf(`%s "%s"`, wireReq.Method, wireReq.URL),
		}
		if wireReq.Body != nil {
			l.body = fmt.Sprintf(" | %s %dB", wireReq.Header.Get(encode.HeaderContentType), len(wireReq.Body))
		}

		tc := &ClientTrace{
			HTTPRequestStart: func(*http.Request) {
				l.started = time.Now()
				l.printf("START %s%s", l.target, l.body)
			},
			HTTPRequestDone: func(res *http.Response, err error) {
				l.done = time.Now()
				l.printf("DONE  %s | %d | %s%s", l.target, statusOf(res), l.done.Sub(l.started), errSuffix(err))
			},
			HTTPRequestRetry: func(attempt int, delay time.Duration) {
				l.printf("RETRY %s | %dx | %s", l.target, attempt, delay)
			},
			RequestProcessed: func(res *request.Response, err error) {
				var size int
				if res != nil {
					size = len(res.Body)
				}
				l.printf("BODY  %s | %dB | %s%s", l.target, size, time.Since(l.done), errSuffix(err))
			},
		}
		tc.ConnectStart = func(_, _ string) {
			l.connecting = time.Now()
		}
		tc.GotConn = func(info httptrace.GotConnInfo) {
			switch {
			case !info.Reused:
				l.printf("CONN  %s | new conn | %s", l.target, time.Since(l.connecting))
			case info.WasIdle:
				l.printf("CONN  %s | reused conn (was idle %s)", l.target, info.IdleTime)
			default:
				l.printf("CONN  %s | reused conn", l.target)
			}
		}
		return ctx, tc
	}
}

type requestLog struct {
	wr         io.Writer
	prefix     string
	target     string
	body       string
	connecting time.Time
	started    time.Time
	done       time.Time
}

func (l *requestLog) printf(format string, a ...any) {
	_, _ = fmt.Fprintf(l.wr, l.prefix+" "+format+"\n", a...)
}

func statusOf(res *http.Response) int {
	if res == nil {
		return 0
	}
	return res.StatusCode
}

func errSuffix(err error) string {
	if err == nil {
		return ""
	}
	return " | error=" + err.Error()
}

package trace

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/keboola/go-fetch/pkg/encode"
	"github.com/keboola/go-fetch/pkg/request"
)

// ZapTracer logs request phases as structured debug entries, failures are logged as warnings.
// Header values are not logged.
func ZapTracer(logger *zap.Logger) Factory {
	var idGenerator uint64
	return func(ctx context.Context, wireReq *encode.WireRequest) (context.Context, *ClientTrace) {
		log := logger.With(
			zap.Uint64("request.id", atomic.AddUint64(&idGenerator, 1)),
			zap.String("request.method", wireReq.Method),
			zap.String("request.url", wireReq.URL.Redacted()),
		)

		var startTime time.Time
		var attempt int
		var bodyBytes int64

		t := &ClientTrace{}
		t.HTTPRequestStart = func(_ *http.Request) {
			startTime = time.Now()
			log.Debug("http request started", zap.Int("attempt", attempt))
		}
		t.HTTPRequestDone = func(r *http.Response, err error) {
			fields := []zap.Field{zap.Int("attempt", attempt), zap.Duration("duration", time.Since(startTime))}
			if r != nil {
				fields = append(fields, zap.Int("response.status", r.StatusCode))
			}
			if err != nil {
				log.Warn("http request failed", append(fields, zap.Error(err))...)
				return
			}
			log.Debug("http request done", fields...)
		}
		t.HTTPRequestRetry = func(n int, delay time.Duration) {
			attempt = n
			log.Info("http request retry", zap.Int("attempt", n), zap.Duration("delay", delay))
		}
		t.BodyReadDone = func(bytes int64, _ error) {
			bodyBytes = bytes
		}
		t.RequestProcessed = func(response *request.Response, err error) {
			fields := []zap.Field{zap.Int64("response.bytes", bodyBytes)}
			if response != nil {
				fields = append(fields, zap.Int("response.status", response.StatusCode))
			}
			if err != nil {
				log.Warn("request failed", append(fields, zap.Error(err))...)
				return
			}
			log.Debug("request processed", fields...)
		}
		return ctx, t
	}
}

// Package trace extends the httptrace.ClientTrace and adds additional request hooks.
// A custom ClientTrace definition can be registered in the client.Client by the AndTrace method.
package trace

import (
	"context"
	"net/http"
	"net/http/httptrace"
	"reflect"
	"time"

	"github.com/keboola/go-fetch/pkg/encode"
	"github.com/keboola/go-fetch/pkg/request"
)

// Factory creates ClientTrace hooks for a request.
type Factory func(ctx context.Context, request *encode.WireRequest) (context.Context, *ClientTrace)

// ClientTrace is a set of hooks to run at various stages of an outgoing request.
type ClientTrace struct {
	httptrace.ClientTrace // native, low level trace
	// HTTPRequestStart is called when the request begins. It includes redirects and retries.
	HTTPRequestStart func(request *http.Request)
	// HTTPRequestDone is called when the request completes. It includes redirects and retries.
	HTTPRequestDone func(response *http.Response, err error)
	// HTTPRequestRetry is called before retry delay.
	HTTPRequestRetry func(attempt int, delay time.Duration)
	// BodyReadDone is called when the response body has been read and closed.
	BodyReadDone func(bytes int64, err error)
	// RequestProcessed is called when Client.Send method is done.
	RequestProcessed func(response *request.Response, err error)
}

// Compose modifies t such that it respects the previously-registered hooks in old.
// Hooks of the old trace are called first.
func (t *ClientTrace) Compose(old *ClientTrace) {
	if old == nil {
		return
	}
	tv := reflect.ValueOf(t).Elem()
	ov := reflect.ValueOf(old).Elem()
	composeStruct(tv, ov)
}

func composeStruct(tv, ov reflect.Value) {
	structType := tv.Type()
	for i := range structType.NumField() {
		tf := tv.Field(i)
		of := ov.Field(i)

		// Embedded httptrace.ClientTrace
		if tf.Kind() == reflect.Struct {
			composeStruct(tf, of)
			continue
		}

		hookType := tf.Type()
		if hookType.Kind() != reflect.Func {
			continue
		}
		if of.IsNil() {
			continue
		}
		if tf.IsNil() {
			tf.Set(of)
			continue
		}

		// Make a copy of tf for tf to call. (Otherwise it
		// creates a recursive call cycle and stack overflows)
		tfCopy := reflect.ValueOf(tf.Interface())
		ofCopy := reflect.ValueOf(of.Interface())

		// We need to call both tf and of in some order.
		newFunc := reflect.MakeFunc(hookType, func(args []reflect.Value) []reflect.Value {
			ofCopy.Call(args)
			return tfCopy.Call(args)
		})
		tf.Set(newFunc)
	}
}

package encode

import (
	"fmt"
	"math"

	jsoniter "github.com/json-iterator/go"

	"github.com/keboola/go-fetch/pkg/params"
)

const encodingJSON = "json"

// json - replacement of the standard encoding/json library, the body is pretty printed.
var json = jsoniter.Config{ //nolint:gochecknoglobals
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	IndentionStep:          2,
}.Froze()

// JSON encodes parameters to a pretty printed JSON object, keys keep the insertion order.
// Files and blobs have no JSON representation, NaN and infinite floats are rejected.
func JSON(p *params.Map) ([]byte, error) {
	stream := json.BorrowStream(nil)
	if err := writeObject(stream, p); err != nil {
		// The stream stopped inside an object or array, its indentation is not balanced, so it is not reused.
		return nil, &EncodeError{Encoding: encodingJSON, Err: err}
	}
	if stream.Error != nil {
		return nil, &EncodeError{Encoding: encodingJSON, Err: stream.Error}
	}

	// The stream buffer is reused after return
	out := append([]byte(nil), stream.Buffer()...)
	json.ReturnStream(stream)
	return out, nil
}

func writeObject(stream *jsoniter.Stream, p *params.Map) error {
	keys := p.Keys()
	if len(keys) == 0 {
		stream.WriteEmptyObject()
		return nil
	}

	stream.WriteObjectStart()
	for i, key := range keys {
		if i > 0 {
			stream.WriteMore()
		}
		stream.WriteObjectField(key)
		value, _ := p.Get(key)
		if err := writeValue(stream, key, value); err != nil {
			return err
		}
	}
	stream.WriteObjectEnd()
	return nil
}

func writeValue(stream *jsoniter.Stream, key string, value params.Value) error {
	switch v := value.(type) {
	case params.String:
		stream.WriteString(string(v))
	case params.Int:
		stream.WriteInt64(int64(v))
	case params.Float:
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf(`parameter "%s": unsupported float value %v`, key, float64(v))
		}
		stream.WriteFloat64(float64(v))
	case params.List:
		if len(v) == 0 {
			stream.WriteEmptyArray()
			return nil
		}
		stream.WriteArrayStart()
		for i, item := range v {
			if i > 0 {
				stream.WriteMore()
			}
			if err := writeValue(stream, key, item); err != nil {
				return err
			}
		}
		stream.WriteArrayEnd()
	default:
		return &UnsupportedParameterTypeError{Key: key, Kind: value.Kind(), Encoding: encodingJSON}
	}
	return nil
}

package encode_test

import (
	"context"
	"errors"
	"io"
	"math"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keboola/go-fetch/pkg/encode"
	"github.com/keboola/go-fetch/pkg/params"
	"github.com/keboola/go-fetch/pkg/source"
)

func testParams() *params.Map {
	return params.NewMap().
		Set("a", params.Int(1)).
		Set("b", params.String("hello world")).
		Set("tags", params.Strings("a", "b"))
}

func TestEncode_Bodyless(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		p := testParams().Set("file", params.File("/tmp/foo.txt")).Set("blob", params.Blob("abc"))
		req, err := encode.Encode(ctx, method, "https://example.com/api", nil, p)
		require.NoError(t, err, method)

		assert.Equal(t, method, req.Method)
		assert.Nil(t, req.Body, method)
		assert.Equal(t, "https://example.com/api?a=1&b=hello%20world&tags%5B%5D=a&tags%5B%5D=b", req.URL.String(), method)

		// Query string is decodable back to the parameters
		values, err := url.ParseQuery(req.URL.RawQuery)
		require.NoError(t, err)
		assert.Equal(t, url.Values{"a": {"1"}, "b": {"hello world"}, "tags[]": {"a", "b"}}, values, method)

		// Default headers
		assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
		assert.Equal(t, "no-cache", req.Header.Get("Cache-Control"))
	}
}

func TestEncode_Query(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		endpoint string
		params   *params.Map
		expected string
	}{
		{
			name:     "no params",
			endpoint: "https://example.com/api",
			params:   params.NewMap(),
			expected: "https://example.com/api",
		},
		{
			name:     "nil params",
			endpoint: "https://example.com/api",
			expected: "https://example.com/api",
		},
		{
			name:     "existing query",
			endpoint: "https://example.com/api?x=1",
			params:   params.NewMap().Set("y", params.Int(2)),
			expected: "https://example.com/api?x=1&y=2",
		},
		{
			name:     "only skipped values",
			endpoint: "https://example.com/api",
			params:   params.NewMap().Set("file", params.File("foo.txt")),
			expected: "https://example.com/api",
		},
		{
			name:     "colon and slash are kept",
			endpoint: "https://example.com/api",
			params:   params.NewMap().Set("redirect", params.String("https://foo.com/a b")),
			expected: "https://example.com/api?redirect=https://foo.com/a%20b",
		},
		{
			name:     "delimiters are escaped",
			endpoint: "https://example.com/api",
			params:   params.NewMap().Set("k&[]", params.String("a&b=c+d#e")),
			expected: "https://example.com/api?k%26%5B%5D=a%26b%3Dc%2Bd%23e",
		},
		{
			name:     "nested list and float",
			endpoint: "https://example.com/api",
			params:   params.NewMap().Set("m", params.List{params.Float(1.5), params.List{params.Int(2)}}),
			expected: "https://example.com/api?m%5B%5D=1.5&m%5B%5D%5B%5D=2",
		},
		{
			name:     "fragment",
			endpoint: "https://example.com/api#top",
			params:   params.NewMap().Set("x", params.Int(1)),
			expected: "https://example.com/api?x=1#top",
		},
	}

	for _, tc := range cases {
		req, err := encode.Get(context.Background(), tc.endpoint, nil, tc.params)
		require.NoError(t, err, tc.name)
		assert.Equal(t, tc.expected, req.URL.String(), tc.name)
	}
}

func TestEncode_InvalidEndpoint(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	for _, endpoint := range []string{"", "/relative/path", "://missing-scheme", "mailto:foo@example.com"} {
		_, err := encode.Get(ctx, endpoint, nil, testParams())
		var urlErr *encode.URLError
		assert.ErrorAs(t, err, &urlErr, endpoint)

		_, err = encode.Post(ctx, endpoint, nil, testParams())
		assert.ErrorAs(t, err, &urlErr, endpoint)
	}
}

func TestEncode_UnsupportedMethod(t *testing.T) {
	t.Parallel()

	_, err := encode.Encode(context.Background(), http.MethodTrace, "https://example.com", nil, testParams())
	assert.ErrorIs(t, err, encode.ErrUnsupportedMethod)
	assert.EqualError(t, err, `unsupported method "TRACE"`)
}

func TestEncode_Headers(t *testing.T) {
	t.Parallel()

	header := http.Header{}
	header.Set("Cache-Control", "max-age=0")
	header.Set("X-Custom", "foo")

	req, err := encode.Post(context.Background(), "https://example.com", header, testParams())
	require.NoError(t, err)
	assert.Equal(t, "max-age=0", req.Header.Get("Cache-Control"))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, "foo", req.Header.Get("X-Custom"))

	// Input is not modified
	assert.Empty(t, header.Get("Content-Type"))
}

func TestEncode_WithBody(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		req, err := encode.Encode(ctx, method, "https://example.com/api", nil, testParams())
		require.NoError(t, err, method)
		assert.Equal(t, "https://example.com/api", req.URL.String(), method)
		assert.Empty(t, req.URL.RawQuery, method)
		assert.JSONEq(t, `{"a":1,"b":"hello world","tags":["a","b"]}`, string(req.Body), method)
	}
}

func TestEncode_JSON(t *testing.T) {
	t.Parallel()

	p := params.NewMap().Set("x", params.Int(1)).Set("y", params.String("z"))
	req, err := encode.Post(context.Background(), "https://example.com", nil, p)
	require.NoError(t, err)
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"x":1,"y":"z"}`, string(req.Body))
	assert.Contains(t, string(req.Body), "\n  \"x\": 1,")

	// Keys keep the insertion order
	body, err := encode.JSON(params.NewMap().Set("b", params.Int(1)).Set("a", params.Int(2)))
	require.NoError(t, err)
	assert.Less(t, strings.Index(string(body), `"b"`), strings.Index(string(body), `"a"`))

	// Empty
	body, err = encode.JSON(params.NewMap().Set("list", params.List{}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"list":[]}`, string(body))
	body, err = encode.JSON(params.NewMap())
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(body))

	// Custom JSON content type
	header := http.Header{"Content-Type": {"application/vnd.api+json"}}
	req, err = encode.Put(context.Background(), "https://example.com", header, p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1,"y":"z"}`, string(req.Body))
}

func TestEncode_JSON_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, err := encode.Post(ctx, "https://example.com", nil, params.NewMap().Set("data", params.Blob("abc")))
	var encodeErr *encode.EncodeError
	var typeErr *encode.UnsupportedParameterTypeError
	require.ErrorAs(t, err, &encodeErr)
	require.ErrorAs(t, err, &typeErr)
	assert.Equal(t, "data", typeErr.Key)
	assert.Equal(t, params.KindBlob, typeErr.Kind)
	assert.EqualError(t, err, `cannot encode json body: parameter "data": blob value is not supported by json encoding`)

	_, err = encode.Post(ctx, "https://example.com", nil, params.NewMap().Set("files", params.List{params.File("a.txt")}))
	require.ErrorAs(t, err, &typeErr)
	assert.Equal(t, params.KindFile, typeErr.Kind)

	_, err = encode.Post(ctx, "https://example.com", nil, params.NewMap().Set("n", params.Float(math.NaN())))
	require.ErrorAs(t, err, &encodeErr)
	assert.EqualError(t, err, `cannot encode json body: parameter "n": unsupported float value NaN`)
}

func TestEncode_JSON_StableAfterError(t *testing.T) {
	t.Parallel()

	p := params.NewMap().Set("x", params.Int(1))
	expected := "{\n  \"x\": 1\n}"

	body, err := encode.JSON(p)
	require.NoError(t, err)
	assert.Equal(t, expected, string(body))

	// Each encode fails inside a nested object or array
	failing := []*params.Map{
		params.NewMap().Set("a", params.Blob("abc")),
		params.NewMap().Set("a", params.Int(1)).Set("b", params.List{params.Int(1), params.File("a.txt")}),
		params.NewMap().Set("list", params.List{params.List{params.Float(math.Inf(1))}}),
	}
	for i := 0; i < 3; i++ {
		for _, m := range failing {
			_, err := encode.JSON(m)
			require.Error(t, err)
		}
	}

	body, err = encode.JSON(p)
	require.NoError(t, err)
	assert.Equal(t, expected, string(body))
}

func TestEncode_Form(t *testing.T) {
	t.Parallel()

	header := http.Header{"Content-Type": {"application/x-www-form-urlencoded"}}
	p := params.NewMap().Set("a", params.Int(1)).Set("b", params.String("hello world"))
	req, err := encode.Post(context.Background(), "https://example.com", header, p)
	require.NoError(t, err)
	assert.Equal(t, "a=1&b=hello%20world", string(req.Body))
	assert.Equal(t, "application/x-www-form-urlencoded", req.Header.Get("Content-Type"))

	// Lists, floats and files, colon and slash are escaped
	body, err := encode.Form(params.NewMap().
		Set("tags", params.Strings("x", "y")).
		Set("f", params.Float(0.25)).
		Set("file", params.File("/tmp/a:b")))
	require.NoError(t, err)
	assert.Equal(t, "tags%5B%5D=x&tags%5B%5D=y&f=0.25&file=%2Ftmp%2Fa%3Ab", string(body))

	// Blob
	_, err = encode.Form(params.NewMap().Set("data", params.Blob("abc")))
	var typeErr *encode.UnsupportedParameterTypeError
	require.ErrorAs(t, err, &typeErr)
	assert.EqualError(t, err, `cannot encode form-urlencoded body: parameter "data": blob value is not supported by form-urlencoded encoding`)
}

func TestEncode_Multipart(t *testing.T) {
	t.Parallel()

	header := http.Header{"Content-Type": {"multipart/form-data"}}
	p := params.NewMap().Set("field", params.String("value")).Set("_filename", params.String("ignored"))
	req, err := encode.Post(context.Background(), "https://example.com", header, p, encode.WithBoundary("test"))
	require.NoError(t, err)

	assert.Equal(t, "multipart/form-data; boundary=test", req.Header.Get("Content-Type"))
	assert.Equal(t, "--test\r\nContent-Disposition: form-data; name=\"field\"\r\nContent-Type: text/plain\r\n\r\nvalue\r\n--test--\r\n", string(req.Body))

	// Exactly one part
	parts := readParts(t, req)
	require.Len(t, parts, 1)
	assert.Equal(t, "field", parts[0].name)
	assert.Equal(t, "value", parts[0].content)
}

func TestEncode_Multipart_Files(t *testing.T) {
	t.Parallel()

	src := source.Func(func(ctx context.Context, ref string) (*source.Content, error) {
		if ref == "missing.txt" {
			return nil, &source.ReadError{Ref: ref, Err: errors.New("not found")}
		}
		return &source.Content{Data: []byte("content of " + ref), MIMEType: "text/csv"}, nil
	})

	header := http.Header{"Content-Type": {"multipart/form-data"}}
	p := params.NewMap().
		Set("_filename", params.String(`my "photo".png`)).
		Set("photo", params.Blob("\x89PNG\r\n\x1a\n")).
		Set("table", params.File("data.csv")).
		Set("count", params.Int(3))

	req, err := encode.Post(context.Background(), "https://example.com", header, p, encode.WithSource(src))
	require.NoError(t, err)

	parts := readParts(t, req)
	require.Len(t, parts, 3)
	assert.Equal(t, part{name: "photo", filename: `my "photo".png`, contentType: "image/png", content: "\x89PNG\r\n\x1a\n"}, parts[0])
	assert.Equal(t, part{name: "table", filename: `my "photo".png`, contentType: "text/csv", content: "content of data.csv"}, parts[1])
	assert.Equal(t, part{name: "count", contentType: "text/plain", content: "3"}, parts[2])
	assert.Contains(t, string(req.Body), `filename="my \"photo\".png"`)

	// Default filename
	req, err = encode.Post(context.Background(), "https://example.com", header, params.NewMap().Set("data", params.Blob("abc")), encode.WithSource(src))
	require.NoError(t, err)
	assert.Contains(t, string(req.Body), `Content-Disposition: form-data; name="data"; filename="empty"`)

	// Read error is propagated
	_, err = encode.Post(context.Background(), "https://example.com", header, params.NewMap().Set("f", params.File("missing.txt")), encode.WithSource(src))
	var encodeErr *encode.EncodeError
	var readErr *source.ReadError
	require.ErrorAs(t, err, &encodeErr)
	require.ErrorAs(t, err, &readErr)
	assert.EqualError(t, err, `cannot encode multipart body: parameter "f": cannot read file "missing.txt": not found`)

	// List is not supported
	_, err = encode.Post(context.Background(), "https://example.com", header, params.NewMap().Set("l", params.Strings("a")))
	var typeErr *encode.UnsupportedParameterTypeError
	require.ErrorAs(t, err, &typeErr)
	assert.Equal(t, params.KindList, typeErr.Kind)
}

func TestEncode_Multipart_Boundary(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	header := http.Header{"Content-Type": {"text/plain"}}
	p := params.NewMap().Set("field", params.String("value"))

	req1, err := encode.Post(ctx, "https://example.com", header, p)
	require.NoError(t, err)
	req2, err := encode.Post(ctx, "https://example.com", header, p)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(req1.Header.Get("Content-Type"), "multipart/form-data; boundary=Boundary-"))
	assert.NotEqual(t, req1.Header.Get("Content-Type"), req2.Header.Get("Content-Type"))

	// No parts
	req, err := encode.Post(ctx, "https://example.com", header, params.NewMap().Set("_filename", params.String("x")), encode.WithBoundary("b"))
	require.NoError(t, err)
	assert.Equal(t, "--b--\r\n", string(req.Body))
}

func TestWireRequest(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	req, err := encode.Post(ctx, "https://example.com/api", nil, testParams())
	require.NoError(t, err)

	// Clone
	clone := req.Clone()
	clone.Header.Set("X-Foo", "bar")
	clone.URL.Path = "/other"
	clone.Body[0] = 'X'
	assert.Empty(t, req.Header.Get("X-Foo"))
	assert.Equal(t, "/api", req.URL.Path)
	assert.Equal(t, byte('{'), req.Body[0])

	// HTTP request
	httpReq, err := req.HTTPRequest(ctx)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, httpReq.Method)
	assert.Equal(t, "https://example.com/api", httpReq.URL.String())
	assert.Equal(t, "application/json", httpReq.Header.Get("Content-Type"))
	body, err := io.ReadAll(httpReq.Body)
	require.NoError(t, err)
	assert.Equal(t, req.Body, body)
	assert.NotNil(t, httpReq.GetBody)
}

type part struct {
	name        string
	filename    string
	contentType string
	content     string
}

func readParts(t *testing.T, req *encode.WireRequest) (out []part) {
	t.Helper()

	mediaType, mediaParams, err := mime.ParseMediaType(req.Header.Get("Content-Type"))
	require.NoError(t, err)
	require.Equal(t, "multipart/form-data", mediaType)

	reader := multipart.NewReader(strings.NewReader(string(req.Body)), mediaParams["boundary"])
	for {
		p, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		content, err := io.ReadAll(p)
		require.NoError(t, err)
		out = append(out, part{
			name:        p.FormName(),
			filename:    p.FileName(),
			contentType: p.Header.Get("Content-Type"),
			content:     string(content),
		})
	}
}

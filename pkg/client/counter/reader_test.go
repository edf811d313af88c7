package counter_test

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keboola/go-fetch/pkg/client/counter"
)

type closeCall struct {
	bytes int64
	err   error
}

func TestReadCloser(t *testing.T) {
	t.Parallel()

	readErr := errors.New("read error")
	closeErr := errors.New("close error")

	cases := []struct {
		name        string
		content     string
		readErr     error
		closeErr    error
		expectRead  error
		expectClose error
		expectCall  error
	}{
		{name: "empty"},
		{name: "content", content: "abcdef"},
		{name: "close error", content: "abcdef", closeErr: closeErr, expectClose: closeErr, expectCall: closeErr},
		{name: "read error", content: "abcdef", readErr: readErr, expectRead: readErr, expectCall: readErr},
		{name: "read error wins", content: "abcdef", readErr: readErr, closeErr: closeErr, expectRead: readErr, expectClose: closeErr, expectCall: readErr},
	}

	for _, tc := range cases {
		var calls []closeCall
		r := counter.NewReadCloser(
			&testBody{Reader: strings.NewReader(tc.content), readErr: tc.readErr, closeErr: tc.closeErr},
			func(bytes int64, err error) { calls = append(calls, closeCall{bytes: bytes, err: err}) },
		)

		data, err := io.ReadAll(r)
		assert.Equal(t, tc.content, string(data), tc.name)
		assert.Equal(t, int64(len(tc.content)), r.Bytes(), tc.name)
		assert.Equal(t, tc.expectRead, err, tc.name)

		assert.Equal(t, tc.expectClose, r.Close(), tc.name)
		assert.Equal(t, []closeCall{{bytes: int64(len(tc.content)), err: tc.expectCall}}, calls, tc.name)
	}
}

func TestReadCloser_CloseTwice(t *testing.T) {
	t.Parallel()

	calls := 0
	r := counter.NewReadCloser(io.NopCloser(strings.NewReader("abc")), func(bytes int64, err error) {
		calls++
		assert.Equal(t, int64(3), bytes)
		assert.NoError(t, err)
	})

	_, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.NoError(t, r.Close())
	assert.NoError(t, r.Close())
	assert.Equal(t, 1, calls)
}

func TestReadCloser_NoCallback(t *testing.T) {
	t.Parallel()

	r := counter.NewReadCloser(io.NopCloser(strings.NewReader("abc")), nil)
	_, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.NoError(t, r.Close())
	assert.Equal(t, int64(3), r.Bytes())
}

func TestLimitedReadCloser(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		content string
		limit   int64
		read    string
		err     string
	}{
		{name: "no limit", content: "abcdef", limit: 0, read: "abcdef"},
		{name: "under limit", content: "abc", limit: 5, read: "abc"},
		{name: "exact limit", content: "abcde", limit: 5, read: "abcde"},
		{name: "over limit", content: "abcdef", limit: 5, read: "abcde", err: "body exceeds the limit of 5 bytes"},
		{name: "far over limit", content: strings.Repeat("x", 10000), limit: 1, read: "x", err: "body exceeds the limit of 1 bytes"},
	}

	for _, tc := range cases {
		var calls []closeCall
		r := counter.NewLimitedReadCloser(io.NopCloser(strings.NewReader(tc.content)), tc.limit, func(bytes int64, err error) {
			calls = append(calls, closeCall{bytes: bytes, err: err})
		})

		data, err := io.ReadAll(r)
		assert.Equal(t, tc.read, string(data), tc.name)
		assert.Equal(t, int64(len(tc.read)), r.Bytes(), tc.name)
		assert.NoError(t, r.Close(), tc.name)
		require.Len(t, calls, 1, tc.name)
		assert.Equal(t, int64(len(tc.read)), calls[0].bytes, tc.name)

		if tc.err == "" {
			assert.NoError(t, err, tc.name)
			assert.NoError(t, calls[0].err, tc.name)
			continue
		}

		var limitErr *counter.LimitError
		if assert.ErrorAs(t, err, &limitErr, tc.name) {
			assert.Equal(t, tc.limit, limitErr.Limit, tc.name)
			assert.Equal(t, tc.err, err.Error(), tc.name)
		}
		assert.Equal(t, err, calls[0].err, tc.name)

		// Next read fails the same way
		n, err := r.Read(make([]byte, 10))
		assert.Equal(t, 0, n, tc.name)
		assert.ErrorAs(t, err, &limitErr, tc.name)
	}
}

func TestLimitedReadCloser_SmallReads(t *testing.T) {
	t.Parallel()

	// One byte per read
	r := counter.NewLimitedReadCloser(io.NopCloser(iotest.OneByteReader(bytes.NewReader([]byte("abcdef")))), 3, nil)
	data, err := io.ReadAll(r)
	assert.Equal(t, "abc", string(data))
	var limitErr *counter.LimitError
	assert.ErrorAs(t, err, &limitErr)
}

type testBody struct {
	io.Reader
	readErr  error
	closeErr error
}

func (r *testBody) Read(p []byte) (int, error) {
	n, err := r.Reader.Read(p)
	if err == nil && r.readErr != nil {
		err = r.readErr
	}
	return n, err
}

func (r *testBody) Close() error {
	return r.closeErr
}

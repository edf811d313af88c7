package source_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob"
	"gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"

	"github.com/keboola/go-fetch/pkg/source"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestLocal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	filePath := filepath.Join(dir, "data.json")
	require.NoError(t, os.WriteFile(filePath, []byte(`{"foo":"bar"}`), 0o600))

	ctx := context.Background()

	// Path
	content, err := source.Local().Read(ctx, filePath)
	require.NoError(t, err)
	assert.Equal(t, `{"foo":"bar"}`, string(content.Data))
	assert.Equal(t, "application/json", content.MIMEType)

	// URL
	content, err = source.Local().Read(ctx, "file://"+filepath.ToSlash(filePath))
	require.NoError(t, err)
	assert.Equal(t, `{"foo":"bar"}`, string(content.Data))

	// Remote host
	_, err = source.Local().Read(ctx, "file://remote/foo.txt")
	assert.EqualError(t, err, `cannot read file "file://remote/foo.txt": remote host "remote" is not supported`)

	// Missing file
	_, err = source.Local().Read(ctx, filepath.Join(dir, "missing.txt"))
	var readErr *source.ReadError
	require.ErrorAs(t, err, &readErr)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLocal_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := source.Local().Read(ctx, "foo.txt")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDetectMIME(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "application/json", source.DetectMIME("foo.json", nil))
	assert.Equal(t, "image/png", source.DetectMIME("photo", pngHeader))
	assert.Equal(t, "image/png", source.DetectMIME("photo.unknown-extension", pngHeader))
	assert.Equal(t, "text/plain; charset=utf-8", source.DetectMIME("notes", []byte("hello world")))
}

func TestFromBucket(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	require.NoError(t, bucket.WriteAll(ctx, "dir/photo", pngHeader, &blob.WriterOptions{ContentType: "image/png"}))
	require.NoError(t, bucket.WriteAll(ctx, "dir/data.json", []byte(`{}`), &blob.WriterOptions{ContentType: "application/octet-stream"}))

	// Stored content type
	content, err := source.FromBucket(bucket).Read(ctx, "/dir/photo")
	require.NoError(t, err)
	assert.Equal(t, pngHeader, content.Data)
	assert.Equal(t, "image/png", content.MIMEType)

	// Generic content type is replaced by the detected one
	content, err = source.FromBucket(bucket).Read(ctx, "dir/data.json")
	require.NoError(t, err)
	assert.Equal(t, "application/json", content.MIMEType)

	// Missing key
	_, err = source.FromBucket(bucket).Read(ctx, "dir/missing")
	require.Error(t, err)
	assert.Equal(t, gcerrors.NotFound, gcerrors.Code(err))
}

func TestOpenDirBucket(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "data.json"), []byte(`{"foo":"bar"}`), 0o600))

	bucket, err := source.OpenDirBucket(dir)
	require.NoError(t, err)
	defer bucket.Close()

	content, err := source.FromBucket(bucket).Read(context.Background(), "sub/data.json")
	require.NoError(t, err)
	assert.Equal(t, `{"foo":"bar"}`, string(content.Data))

	_, err = source.OpenDirBucket(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestBucketURL_Invalid(t *testing.T) {
	t.Parallel()

	_, err := source.BucketURL().Read(context.Background(), "mem://bucket")
	assert.EqualError(t, err, `cannot read file "mem://bucket": expected "<scheme>://<bucket>/<key>", found "mem://bucket"`)
}

func TestDefault(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	filePath := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(filePath, []byte("hello"), 0o600))

	// Local file
	content, err := source.Default().Read(ctx, filePath)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content.Data))
	assert.Equal(t, "text/plain; charset=utf-8", content.MIMEType)

	// Bucket scheme, memblob is registered by the import, each open creates a new empty bucket
	_, err = source.Default().Read(ctx, "mem://bucket/missing.txt")
	require.Error(t, err)
	assert.Equal(t, gcerrors.NotFound, gcerrors.Code(err))

	// Unknown scheme
	_, err = source.Default().Read(ctx, "ftp://host/file.txt")
	assert.EqualError(t, err, `cannot read file "ftp://host/file.txt": unsupported scheme "ftp"`)
}

func TestRouter(t *testing.T) {
	t.Parallel()

	static := func(data string) source.Source {
		return source.Func(func(ctx context.Context, ref string) (*source.Content, error) {
			return &source.Content{Data: []byte(data), MIMEType: "text/plain"}, nil
		})
	}

	base := source.NewRouter(nil).With("foo", static("foo"))
	extended := base.With("BAR", static("bar"))

	ctx := context.Background()
	content, err := extended.Read(ctx, "bar://x/y")
	require.NoError(t, err)
	assert.Equal(t, "bar", string(content.Data))

	content, err = extended.Read(ctx, "FOO://x/y")
	require.NoError(t, err)
	assert.Equal(t, "foo", string(content.Data))

	// With returns a copy
	_, err = base.Read(ctx, "bar://x/y")
	assert.EqualError(t, err, `cannot read file "bar://x/y": unsupported scheme "bar"`)

	// Fallback
	content, err = source.NewRouter(static("fallback")).Read(ctx, `C:\file.txt`)
	require.NoError(t, err)
	assert.Equal(t, "fallback", string(content.Data))
}

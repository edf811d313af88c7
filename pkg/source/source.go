// Package source resolves file references of multipart parameters to their content.
//
// A reference is a local path, a "file://" URL or a bucket URL supported by gocloud.dev/blob,
// for example "s3://bucket/key", "gs://bucket/key", "azblob://container/key" or "mem://bucket/key".
// Use Default for the standard resolution, or Local, FromBucket and a Router to compose your own.
package source

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Content of a file reference.
type Content struct {
	Data     []byte
	MIMEType string
}

// Source reads content of a file reference.
type Source interface {
	Read(ctx context.Context, ref string) (*Content, error)
}

// Func adapts a function to the Source interface.
type Func func(ctx context.Context, ref string) (*Content, error)

func (f Func) Read(ctx context.Context, ref string) (*Content, error) {
	return f(ctx, ref)
}

// ReadError wraps any failure of reading a file reference.
type ReadError struct {
	Ref string
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf(`cannot read file "%s": %s`, e.Ref, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// Local reads files from the local file system, ref is a path or a "file://" URL.
func Local() Source {
	return Func(func(ctx context.Context, ref string) (*Content, error) {
		if err := ctx.Err(); err != nil {
			return nil, &ReadError{Ref: ref, Err: err}
		}
		filePath, err := localPath(ref)
		if err != nil {
			return nil, &ReadError{Ref: ref, Err: err}
		}
		data, err := os.ReadFile(filePath) //nolint:gosec
		if err != nil {
			return nil, &ReadError{Ref: ref, Err: err}
		}
		return &Content{Data: data, MIMEType: DetectMIME(filePath, data)}, nil
	})
}

// DetectMIME returns MIME type of the content.
// The file extension wins, if it is known. Otherwise, the type is sniffed from the content.
func DetectMIME(name string, data []byte) string {
	if ext := path.Ext(name); ext != "" {
		if v := mime.TypeByExtension(ext); v != "" {
			return v
		}
	}
	return mimetype.Detect(data).String()
}

func localPath(ref string) (string, error) {
	if !strings.HasPrefix(ref, "file:") {
		return filepath.FromSlash(ref), nil
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if u.Host != "" && u.Host != "localhost" {
		return "", fmt.Errorf(`remote host "%s" is not supported`, u.Host)
	}
	return filepath.FromSlash(u.Path), nil
}
